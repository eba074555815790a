package storage

import (
	"context"

	"github.com/mcoot/proxymail/internal/model"
)

// Storage defines the persistence contract consumed by the mail service.
// Every non-nil error returned is, or wraps, a *model.StorageError.
type Storage interface {
	// Message operations

	// GetMessagesFor returns the mailbox of recipient, oldest first.
	// With onlyUnread set, read messages are filtered out.
	GetMessagesFor(ctx context.Context, recipient model.Identity, onlyUnread bool) ([]model.Message, error)
	// SaveMessage stores one message and returns it with its assigned id.
	SaveMessage(ctx context.Context, recipient model.Identity, draft model.Draft) (model.Message, error)
	// SaveMessageToAll stores one copy of draft per identity currently in the
	// directory and returns the number of copies.
	SaveMessageToAll(ctx context.Context, draft model.Draft) (int, error)
	// MarkRead flags a message previously returned by this backend as read.
	MarkRead(ctx context.Context, msg model.Message) error
	// DeleteMessage removes a message previously returned by this backend.
	DeleteMessage(ctx context.Context, msg model.Message) error
	// Delete removes every message matching both id and recipient.
	Delete(ctx context.Context, id model.MessageID, recipient model.Identity) (bool, error)
	// DeleteOlder removes read messages with Time < threshold, and unread
	// ones too when includeUnread is set. It returns the number removed.
	DeleteOlder(ctx context.Context, threshold int64, includeUnread bool) (int, error)

	// Directory operations

	// GetIdentityForName resolves a username: console name, exact key, then
	// a case-insensitive scan.
	GetIdentityForName(ctx context.Context, name string) (model.Identity, bool, error)
	GetAllKnownIdentities(ctx context.Context) ([]model.Identity, error)
	GetKnownUsernames(ctx context.Context) ([]string, error)
	UpdateUserEntry(ctx context.Context, id model.Identity, username string) error
}

// Snapshotter is implemented by backends that persist on a schedule
type Snapshotter interface {
	Save() error
}
