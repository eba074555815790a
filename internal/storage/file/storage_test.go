package file

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/proxymail/internal/storage"
	"github.com/mcoot/proxymail/internal/storage/storagetest"
	"github.com/mcoot/proxymail/internal/testutil"
)

type ContractSuite struct {
	storagetest.ContractSuite
}

func TestContractSuite(t *testing.T) {
	s := new(ContractSuite)
	s.NewStorage = func() storage.Storage {
		return New(Config{Dir: s.T().TempDir()}, testutil.NopLogger())
	}
	suite.Run(t, s)
}
