package redis

import (
	"fmt"

	"github.com/mcoot/proxymail/internal/model"
)

// keys builds the Redis keys used by the backend
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = DefaultConfig().KeyPrefix
	}
	return keys{prefix: prefix}
}

// sequence is the INCR counter issuing message ids
func (k keys) sequence() string {
	return fmt.Sprintf("%s:seq", k.prefix)
}

// message holds one JSON-encoded message
func (k keys) message(id model.MessageID) string {
	return fmt.Sprintf("%s:msg:%d", k.prefix, id)
}

// mailbox is the ZSET of message ids for a recipient, scored by id
func (k keys) mailbox(recipient model.Identity) string {
	return fmt.Sprintf("%s:mailbox:%s", k.prefix, recipient)
}

// byTime is the ZSET of all message ids scored by send time
func (k keys) byTime() string {
	return fmt.Sprintf("%s:bytime", k.prefix)
}

// directory is the HASH of username -> identity
func (k keys) directory() string {
	return fmt.Sprintf("%s:directory", k.prefix)
}
