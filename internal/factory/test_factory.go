package factory

import (
	"context"
	"time"

	"github.com/mcoot/proxymail/internal/dependencies/mocks"
	"github.com/mcoot/proxymail/internal/metrics"
	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/services/mail"
	filestorage "github.com/mcoot/proxymail/internal/storage/file"
	"github.com/mcoot/proxymail/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// FileStorage is the concrete backend, for restart and snapshot checks
	FileStorage *filestorage.Storage
	// Mocks for test control
	MockClock *mocks.MockClock
}

// NewTestApp creates an App backed by file storage in dir with a mocked clock
func NewTestApp(dir string) *TestApp {
	store := filestorage.New(filestorage.Config{Dir: dir, FileName: "data.json"}, testutil.NopLogger())
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	app := newWithDependencies(store, mockClock, metrics.New(), mail.DefaultConfig(), testutil.NopLogger())
	app.Snapshotter = store
	app.closer = store

	return &TestApp{
		App:         app,
		FileStorage: store,
		MockClock:   mockClock,
	}
}

// RegisterPlayers records each name with a fresh identity and returns the
// identities in the same order
func (t *TestApp) RegisterPlayers(names ...string) ([]model.Identity, error) {
	ids := make([]model.Identity, 0, len(names))
	for _, name := range names {
		id := model.NewIdentity()
		if _, err := t.MailService.PlayerJoined(context.Background(), id, name); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
