package bolt

import (
	"bytes"
	"encoding/gob"

	"github.com/mcoot/proxymail/internal/model"
)

// record is the gob form of a stored message
type record struct {
	ID         model.MessageID
	SenderName string
	Sender     model.Identity
	Recipient  model.Identity
	Body       string
	Read       bool
	Time       int64
}

func encodeRecord(r *record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	var r record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
