package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mcoot/proxymail/internal/model"
)

// snapshot is the on-disk document. Field names match the data.json layout
// written by earlier releases so old files keep loading.
type snapshot struct {
	Messages  []messageRecord           `json:"data"`
	Directory map[string]model.Identity `json:"uuidMap"`
}

type messageRecord struct {
	// ID is absent in files written before ids were persisted
	ID         model.MessageID `json:"id,omitempty"`
	Time       timestamp       `json:"time"`
	Read       bool            `json:"read"`
	Body       string          `json:"message"`
	Recipient  model.Identity  `json:"recipient"`
	Sender     model.Identity  `json:"senderUUID"`
	SenderName string          `json:"senderName"`
}

// timestamp is unix milliseconds. It is written as a number and read from
// either a number or an RFC 3339 string.
type timestamp int64

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = timestamp(ms)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*t = timestamp(parsed.UnixMilli())
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*t = timestamp(ms)
	return nil
}

// Save writes a snapshot if there are unsaved mutations. The snapshot goes to
// the temporary file first and then replaces the primary file, so a crash
// leaves either the old primary or the complete new one.
//
// On failure the dirty flag is raised again so the next call retries.
func (s *Storage) Save() error {
	if !s.dirty.Swap(false) {
		return nil
	}

	s.mailMu.RLock()
	defer s.mailMu.RUnlock()
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if err := s.writeSnapshot(s.snapshotLocked()); err != nil {
		s.dirty.Store(true)
		return err
	}

	s.logger.Debug("snapshot written",
		slog.String("path", s.path),
		slog.Int("messages", len(s.messages)),
		slog.Int("users", len(s.directory)),
	)
	return nil
}

// snapshotLocked builds the document to persist. mailMu and dirMu must be held.
func (s *Storage) snapshotLocked() *snapshot {
	snap := &snapshot{
		Messages:  make([]messageRecord, 0, len(s.messages)),
		Directory: make(map[string]model.Identity, len(s.directory)),
	}
	for _, m := range s.messages {
		snap.Messages = append(snap.Messages, messageRecord{
			ID:         m.ID,
			Time:       timestamp(m.Time),
			Read:       m.Read,
			Body:       m.Body,
			Recipient:  m.Recipient,
			Sender:     m.Sender,
			SenderName: m.SenderName,
		})
	}
	for name, id := range s.directory {
		snap.Directory[name] = id
	}
	return snap
}

func (s *Storage) writeSnapshot(snap *snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return ioError("save", fmt.Errorf("create data directory: %w", err))
	}

	f, err := os.Create(s.tmpPath)
	if err != nil {
		return ioError("save", fmt.Errorf("create temp file: %w", err))
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(s.tmpPath)
		return ioError("save", fmt.Errorf("write temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(s.tmpPath)
		return ioError("save", fmt.Errorf("sync temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(s.tmpPath)
		return ioError("save", fmt.Errorf("close temp file: %w", err))
	}

	// The temp file is complete from here on and is kept if the swap fails,
	// since Load promotes it.
	if err := replaceFile(s.tmpPath, s.path); err != nil {
		return ioError("save", fmt.Errorf("rename temp to primary: %w", err))
	}
	return nil
}

// replaceFile renames src over dst, removing dst first on platforms where a
// rename cannot replace an existing file.
func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(src, dst)
}

// Load replaces the in-memory state with the snapshot on disk. It must run
// before the storage is shared.
//
// An unreadable primary file is logged and the store starts empty. When only
// the temporary file exists it is promoted to the primary path first.
func (s *Storage) Load() error {
	s.mailMu.Lock()
	defer s.mailMu.Unlock()
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	return s.loadLocked(true)
}

func (s *Storage) loadLocked(promote bool) error {
	primary, err := exists(s.path)
	if err != nil {
		return ioError("load", err)
	}
	if primary {
		snap, err := readSnapshot(s.path)
		if err != nil {
			s.logger.Warn("failed to read mail data, starting with an empty store",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
			s.resetLocked()
			return nil
		}
		s.populateLocked(snap)
		s.logger.Info("mail data loaded",
			slog.String("path", s.path),
			slog.Int("messages", len(s.messages)),
			slog.Int("users", len(s.directory)),
		)
		return nil
	}

	tmp, err := exists(s.tmpPath)
	if err != nil {
		return ioError("load", err)
	}
	if tmp && promote {
		s.logger.Warn("primary mail data missing, recovering temporary snapshot",
			slog.String("path", s.tmpPath),
		)
		if err := os.Rename(s.tmpPath, s.path); err != nil {
			return ioError("load", fmt.Errorf("promote temp file: %w", err))
		}
		return s.loadLocked(false)
	}

	s.resetLocked()
	return nil
}

func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("load", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, model.NewStorageError(model.KindParse, "load", err)
	}
	return &snap, nil
}

// resetLocked empties the store. All three locks must be held.
func (s *Storage) resetLocked() {
	s.messages = nil
	s.byID = make(map[model.MessageID]*model.Message)
	s.directory = make(map[string]model.Identity)
	s.nextID.Store(0)
	s.dirty.Store(false)
}

// populateLocked installs a decoded snapshot. Persisted ids are kept as they
// are; records without one, or repeating one, get fresh ids above the highest
// loaded id. All three locks must be held.
func (s *Storage) populateLocked(snap *snapshot) {
	s.resetLocked()

	var maxID model.MessageID
	for _, rec := range snap.Messages {
		maxID = max(maxID, rec.ID)
	}
	s.nextID.Store(uint64(maxID))

	reassigned := false
	s.messages = make([]*model.Message, 0, len(snap.Messages))
	for _, rec := range snap.Messages {
		id := rec.ID
		if _, dup := s.byID[id]; id == 0 || dup {
			id = model.MessageID(s.nextID.Add(1))
			reassigned = true
		}
		msg := &model.Message{
			ID:         id,
			SenderName: rec.SenderName,
			Sender:     rec.Sender,
			Recipient:  rec.Recipient,
			Body:       rec.Body,
			Read:       rec.Read,
			Time:       int64(rec.Time),
			Origin:     s.origin,
		}
		s.messages = append(s.messages, msg)
		s.byID[id] = msg
	}

	for name, id := range snap.Directory {
		s.directory[name] = id
	}

	if reassigned {
		s.markDirty()
	}
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func ioError(op string, err error) error {
	var se *model.StorageError
	if errors.As(err, &se) {
		return err
	}
	return model.NewStorageError(model.KindIO, op, err)
}
