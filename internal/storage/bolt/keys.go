package bolt

import (
	"encoding/binary"

	"github.com/mcoot/proxymail/internal/model"
)

// Bucket names
var (
	bucketMessages  = []byte("messages")
	bucketMailboxes = []byte("mailboxes")
	bucketDirectory = []byte("directory")
)

// idToKey converts a message id to an 8-byte big-endian key so cursor order
// matches id order.
func idToKey(id model.MessageID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// keyToID converts an 8-byte big-endian key back to a message id
func keyToID(b []byte) model.MessageID {
	return model.MessageID(binary.BigEndian.Uint64(b))
}

func identityKey(id model.Identity) []byte {
	return id[:]
}
