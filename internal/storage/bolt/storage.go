// Package bolt implements the storage interface on an embedded bbolt file.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"

	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/storage"
)

// Config holds bbolt settings
type Config struct {
	// Path is the database file, created if missing
	Path string
	// Timeout bounds how long Open waits for the file lock
	Timeout time.Duration
}

// DefaultConfig returns the default bbolt settings
func DefaultConfig() Config {
	return Config{
		Path:    "data/mail.db",
		Timeout: time.Second,
	}
}

// Storage is a bbolt-backed implementation of the storage interface.
// Messages are keyed by id; each recipient has a nested index bucket under
// mailboxes holding the ids addressed to it.
type Storage struct {
	db     *bbolt.DB
	origin string
}

// errCorrupt marks undecodable data found inside a transaction
var errCorrupt = errors.New("corrupt record")

// Open opens or creates the database file and ensures all buckets exist
func Open(cfg Config) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, model.NewStorageError(model.KindIO, "open", err)
	}
	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, model.NewStorageError(model.KindIO, "open", fmt.Errorf("%s: %w", cfg.Path, err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMessages, bucketMailboxes, bucketDirectory} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, model.NewStorageError(model.KindBackend, "open", fmt.Errorf("create buckets: %w", err))
	}

	return &Storage{
		db:     db,
		origin: uuid.NewString(),
	}, nil
}

// Close closes the underlying bbolt database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database
func (s *Storage) Path() string {
	return s.db.Path()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func wrap(op string, err error) error {
	if errors.Is(err, errCorrupt) {
		return model.NewStorageError(model.KindParse, op, err)
	}
	return model.NewStorageError(model.KindBackend, op, err)
}

func (s *Storage) toMessage(r *record) model.Message {
	return model.Message{
		ID:         r.ID,
		SenderName: r.SenderName,
		Sender:     r.Sender,
		Recipient:  r.Recipient,
		Body:       r.Body,
		Read:       r.Read,
		Time:       r.Time,
		Origin:     s.origin,
	}
}

func getRecord(tx *bbolt.Tx, id model.MessageID) (*record, error) {
	data := tx.Bucket(bucketMessages).Get(idToKey(id))
	if data == nil {
		return nil, nil
	}
	r, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w %d: %v", errCorrupt, id, err)
	}
	return r, nil
}

func putRecord(tx *bbolt.Tx, r *record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMessages).Put(idToKey(r.ID), data)
}

// insert issues an id and stores a message with its mailbox index entry
func insert(tx *bbolt.Tx, recipient model.Identity, draft model.Draft) (*record, error) {
	seq, err := tx.Bucket(bucketMessages).NextSequence()
	if err != nil {
		return nil, err
	}
	r := &record{
		ID:         model.MessageID(seq),
		SenderName: draft.SenderName,
		Sender:     draft.Sender,
		Recipient:  recipient,
		Body:       draft.Body,
		Read:       draft.Read,
		Time:       draft.Time,
	}
	if err := putRecord(tx, r); err != nil {
		return nil, err
	}
	mailbox, err := tx.Bucket(bucketMailboxes).CreateBucketIfNotExists(identityKey(recipient))
	if err != nil {
		return nil, err
	}
	if err := mailbox.Put(idToKey(r.ID), nil); err != nil {
		return nil, err
	}
	return r, nil
}

// remove deletes a message and its mailbox index entry
func remove(tx *bbolt.Tx, r *record) error {
	if err := tx.Bucket(bucketMessages).Delete(idToKey(r.ID)); err != nil {
		return err
	}
	if mailbox := tx.Bucket(bucketMailboxes).Bucket(identityKey(r.Recipient)); mailbox != nil {
		return mailbox.Delete(idToKey(r.ID))
	}
	return nil
}

// Message operations

func (s *Storage) GetMessagesFor(ctx context.Context, recipient model.Identity, onlyUnread bool) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		mailbox := tx.Bucket(bucketMailboxes).Bucket(identityKey(recipient))
		if mailbox == nil {
			return nil
		}
		return mailbox.ForEach(func(k, _ []byte) error {
			r, err := getRecord(tx, keyToID(k))
			if err != nil || r == nil {
				return err
			}
			if onlyUnread && r.Read {
				return nil
			}
			messages = append(messages, s.toMessage(r))
			return nil
		})
	})
	if err != nil {
		return nil, wrap("get messages", err)
	}
	return messages, nil
}

func (s *Storage) SaveMessage(ctx context.Context, recipient model.Identity, draft model.Draft) (model.Message, error) {
	var saved *record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		saved, err = insert(tx, recipient, draft)
		return err
	})
	if err != nil {
		return model.Message{}, wrap("save message", err)
	}
	return s.toMessage(saved), nil
}

func (s *Storage) SaveMessageToAll(ctx context.Context, draft model.Draft) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		directory, err := readDirectory(tx)
		if err != nil {
			return err
		}
		for _, recipient := range storage.UniqueIdentities(directory) {
			if _, err := insert(tx, recipient, draft); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, wrap("save message to all", err)
	}
	return count, nil
}

func (s *Storage) MarkRead(ctx context.Context, msg model.Message) error {
	if msg.Origin != s.origin {
		return wrap("mark read", model.ErrForeignMessage)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		r, err := getRecord(tx, msg.ID)
		if err != nil || r == nil || r.Read {
			return err
		}
		r.Read = true
		return putRecord(tx, r)
	})
	return wrap("mark read", err)
}

func (s *Storage) DeleteMessage(ctx context.Context, msg model.Message) error {
	if msg.Origin != s.origin {
		return wrap("delete message", model.ErrForeignMessage)
	}
	_, err := s.Delete(ctx, msg.ID, msg.Recipient)
	return err
}

func (s *Storage) Delete(ctx context.Context, id model.MessageID, recipient model.Identity) (bool, error) {
	deleted := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		r, err := getRecord(tx, id)
		if err != nil || r == nil || r.Recipient != recipient {
			return err
		}
		deleted = true
		return remove(tx, r)
	})
	if err != nil {
		return false, wrap("delete", err)
	}
	return deleted, nil
}

func (s *Storage) DeleteOlder(ctx context.Context, threshold int64, includeUnread bool) (int, error) {
	var doomed []*record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		// Collect first; bbolt forbids mutating a bucket inside ForEach
		err := tx.Bucket(bucketMessages).ForEach(func(k, v []byte) error {
			r, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("%w %d: %v", errCorrupt, keyToID(k), err)
			}
			if r.Time < threshold && (includeUnread || r.Read) {
				doomed = append(doomed, r)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, r := range doomed {
			if err := remove(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrap("delete older", err)
	}
	return len(doomed), nil
}

// Directory operations

func readDirectory(tx *bbolt.Tx) (map[string]model.Identity, error) {
	directory := make(map[string]model.Identity)
	err := tx.Bucket(bucketDirectory).ForEach(func(k, v []byte) error {
		id, err := uuid.FromBytes(v)
		if err != nil {
			return fmt.Errorf("%w: directory entry %q: %v", errCorrupt, k, err)
		}
		directory[string(k)] = model.Identity(id)
		return nil
	})
	return directory, err
}

func (s *Storage) GetIdentityForName(ctx context.Context, name string) (model.Identity, bool, error) {
	if name == model.ConsoleName {
		return model.ConsoleIdentity, true, nil
	}

	var (
		id model.Identity
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketDirectory).Get([]byte(name)); v != nil {
			u, err := uuid.FromBytes(v)
			if err != nil {
				return fmt.Errorf("%w: directory entry %q: %v", errCorrupt, name, err)
			}
			id, ok = model.Identity(u), true
			return nil
		}
		directory, err := readDirectory(tx)
		if err != nil {
			return err
		}
		id, ok = storage.ResolveName(directory, name)
		return nil
	})
	if err != nil {
		return model.Identity{}, false, wrap("lookup name", err)
	}
	return id, ok, nil
}

func (s *Storage) GetAllKnownIdentities(ctx context.Context) ([]model.Identity, error) {
	var directory map[string]model.Identity
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		directory, err = readDirectory(tx)
		return err
	})
	if err != nil {
		return nil, wrap("list identities", err)
	}
	return storage.UniqueIdentities(directory), nil
}

func (s *Storage) GetKnownUsernames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDirectory).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, wrap("list usernames", err)
	}
	// bbolt iterates keys in byte order, which is the sorted order
	return names, nil
}

func (s *Storage) UpdateUserEntry(ctx context.Context, id model.Identity, username string) error {
	if err := storage.CheckUsername(username); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDirectory).Put([]byte(username), identityKey(id))
	})
	return wrap("update user", err)
}
