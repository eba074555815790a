package file

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/storage"
)

// Storage is an in-memory mail store persisted to a JSON snapshot file.
//
// Three independent locks guard the message collection, the directory and the
// on-disk file state. Only Save and Load hold more than one, and they acquire
// them in the order mailMu, dirMu, fileMu.
type Storage struct {
	path    string
	tmpPath string
	origin  string
	logger  *slog.Logger

	// nextID holds the last issued message id
	nextID atomic.Uint64
	// dirty is set by every mutation and drained by Save
	dirty atomic.Bool

	mailMu   sync.RWMutex
	messages []*model.Message
	byID     map[model.MessageID]*model.Message

	dirMu     sync.RWMutex
	directory map[string]model.Identity

	fileMu sync.RWMutex
}

// New creates an empty file-backed storage. Call Load before serving requests.
func New(cfg Config, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Storage{
		path:      cfg.Path(),
		tmpPath:   cfg.TempPath(),
		origin:    uuid.NewString(),
		logger:    logger.With(slog.String("component", "file-storage")),
		byID:      make(map[model.MessageID]*model.Message),
		directory: make(map[string]model.Identity),
	}
}

// Open creates a file-backed storage and loads any existing snapshot
func Open(cfg Config, logger *slog.Logger) (*Storage, error) {
	s := New(cfg, logger)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close writes any unsaved changes to disk
func (s *Storage) Close() error {
	return s.Save()
}

// Path returns the primary snapshot path
func (s *Storage) Path() string {
	return s.path
}

// Dirty reports whether mutations exist that have not been snapshotted
func (s *Storage) Dirty() bool {
	return s.dirty.Load()
}

// Ensure Storage implements the interfaces
var (
	_ storage.Storage     = (*Storage)(nil)
	_ storage.Snapshotter = (*Storage)(nil)
)

func (s *Storage) markDirty() {
	s.dirty.Store(true)
}

func (s *Storage) checkOrigin(op string, msg model.Message) error {
	if msg.Origin != s.origin {
		return model.NewStorageError(model.KindBackend, op, model.ErrForeignMessage)
	}
	return nil
}

// Message operations

func (s *Storage) GetMessagesFor(ctx context.Context, recipient model.Identity, onlyUnread bool) ([]model.Message, error) {
	s.mailMu.RLock()
	defer s.mailMu.RUnlock()

	var messages []model.Message
	for _, m := range s.messages {
		if m.Recipient != recipient || (onlyUnread && m.Read) {
			continue
		}
		messages = append(messages, *m)
	}
	return messages, nil
}

func (s *Storage) SaveMessage(ctx context.Context, recipient model.Identity, draft model.Draft) (model.Message, error) {
	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	msg := s.appendLocked(recipient, draft)
	s.markDirty()
	return *msg, nil
}

func (s *Storage) SaveMessageToAll(ctx context.Context, draft model.Draft) (int, error) {
	// Directory snapshot is taken before, not while, holding the message lock
	targets, err := s.GetAllKnownIdentities(ctx)
	if err != nil {
		return 0, err
	}

	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	for _, recipient := range targets {
		s.appendLocked(recipient, draft)
	}
	if len(targets) > 0 {
		s.markDirty()
	}
	return len(targets), nil
}

// appendLocked issues an id and stores a new message. mailMu must be held.
func (s *Storage) appendLocked(recipient model.Identity, draft model.Draft) *model.Message {
	id := model.MessageID(s.nextID.Add(1))
	msg := draft.To(id, recipient, s.origin)
	s.messages = append(s.messages, &msg)
	s.byID[id] = &msg
	return &msg
}

func (s *Storage) MarkRead(ctx context.Context, msg model.Message) error {
	if err := s.checkOrigin("mark read", msg); err != nil {
		return err
	}

	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	stored, ok := s.byID[msg.ID]
	if !ok || stored.Read {
		return nil
	}
	stored.Read = true
	s.markDirty()
	return nil
}

func (s *Storage) DeleteMessage(ctx context.Context, msg model.Message) error {
	if err := s.checkOrigin("delete message", msg); err != nil {
		return err
	}

	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	s.removeLocked(func(m *model.Message) bool {
		return m.ID == msg.ID
	})
	return nil
}

func (s *Storage) Delete(ctx context.Context, id model.MessageID, recipient model.Identity) (bool, error) {
	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	n := s.removeLocked(func(m *model.Message) bool {
		return m.ID == id && m.Recipient == recipient
	})
	return n > 0, nil
}

func (s *Storage) DeleteOlder(ctx context.Context, threshold int64, includeUnread bool) (int, error) {
	s.mailMu.Lock()
	defer s.mailMu.Unlock()

	return s.removeLocked(func(m *model.Message) bool {
		return m.Time < threshold && (includeUnread || m.Read)
	}), nil
}

// removeLocked drops every message matching pred and returns how many were
// removed. mailMu must be held for writing.
func (s *Storage) removeLocked(pred func(*model.Message) bool) int {
	before := len(s.messages)
	s.messages = slices.DeleteFunc(s.messages, func(m *model.Message) bool {
		if !pred(m) {
			return false
		}
		delete(s.byID, m.ID)
		return true
	})
	removed := before - len(s.messages)
	if removed > 0 {
		s.markDirty()
	}
	return removed
}

// Directory operations

func (s *Storage) GetIdentityForName(ctx context.Context, name string) (model.Identity, bool, error) {
	if name == model.ConsoleName {
		return model.ConsoleIdentity, true, nil
	}

	s.dirMu.RLock()
	defer s.dirMu.RUnlock()

	id, ok := storage.ResolveName(s.directory, name)
	return id, ok, nil
}

func (s *Storage) GetAllKnownIdentities(ctx context.Context) ([]model.Identity, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	return storage.UniqueIdentities(s.directory), nil
}

func (s *Storage) GetKnownUsernames(ctx context.Context) ([]string, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	return storage.SortedUsernames(s.directory), nil
}

func (s *Storage) UpdateUserEntry(ctx context.Context, id model.Identity, username string) error {
	if err := storage.CheckUsername(username); err != nil {
		return err
	}
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	if current, ok := s.directory[username]; ok && current == id {
		return nil
	}
	s.directory[username] = id
	s.markDirty()
	return nil
}
