package redis

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	keys   keys
	origin string
}

// record is the JSON form of a message stored under its message key
type record struct {
	ID         model.MessageID `json:"id"`
	SenderName string          `json:"sender_name"`
	Sender     model.Identity  `json:"sender"`
	Recipient  model.Identity  `json:"recipient"`
	Body       string          `json:"body"`
	Read       bool            `json:"read"`
	Time       int64           `json:"time"`
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, backendError("connect", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, backendError("connect", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		keys:   newKeys(cfg.KeyPrefix),
		origin: uuid.NewString(),
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func backendError(op string, err error) error {
	return model.NewStorageError(model.KindBackend, op, err)
}

func (s *Storage) toMessage(r record) model.Message {
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

func toRecord(m model.Message) record {
	return record{
		ID:         m.ID,
		SenderName: m.SenderName,
		Sender:     m.Sender,
		Recipient:  m.Recipient,
		Body:       m.Body,
		Read:       m.Read,
		Time:       m.Time,
	}
}

func member(id model.MessageID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Message operations

func (s *Storage) GetMessagesFor(ctx context.Context, recipient model.Identity, onlyUnread bool) ([]model.Message, error) {
	members, err := s.client.ZRange(ctx, s.keys.mailbox(recipient), 0, -1).Result()
	if err != nil {
		return nil, backendError("get messages", err)
	}

	records, err := s.fetch(ctx, members)
	if err != nil {
		return nil, err
	}

	var messages []model.Message
	for _, r := range records {
		if onlyUnread && r.Read {
			continue
		}
		messages = append(messages, s.toMessage(r))
	}
	return messages, nil
}

// fetch loads the records for the given id members, skipping ids whose
// message key has already gone
func (s *Storage) fetch(ctx context.Context, members []string) ([]record, error) {
	if len(members) == 0 {
		return nil, nil
	}

	msgKeys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, model.NewStorageError(model.KindParse, "fetch", err)
		}
		msgKeys = append(msgKeys, s.keys.message(model.MessageID(id)))
	}

	values, err := s.client.MGet(ctx, msgKeys...).Result()
	if err != nil {
		return nil, backendError("fetch", err)
	}

	records := make([]record, 0, len(values))
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue // Deleted concurrently
		}
		var r record
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, model.NewStorageError(model.KindParse, "fetch", err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *Storage) get(ctx context.Context, id model.MessageID) (*record, error) {
	data, err := s.client.Get(ctx, s.keys.message(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, backendError("get message", err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, model.NewStorageError(model.KindParse, "get message", err)
	}
	return &r, nil
}

func (s *Storage) SaveMessage(ctx context.Context, recipient model.Identity, draft model.Draft) (model.Message, error) {
	id, err := s.client.Incr(ctx, s.keys.sequence()).Result()
	if err != nil {
		return model.Message{}, backendError("save message", err)
	}

	msg := draft.To(model.MessageID(id), recipient, s.origin)
	if err := s.store(ctx, []model.Message{msg}); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *Storage) SaveMessageToAll(ctx context.Context, draft model.Draft) (int, error) {
	targets, err := s.GetAllKnownIdentities(ctx)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	// Reserve a contiguous block of ids
	last, err := s.client.IncrBy(ctx, s.keys.sequence(), int64(len(targets))).Result()
	if err != nil {
		return 0, backendError("save message to all", err)
	}
	first := last - int64(len(targets)) + 1

	messages := make([]model.Message, 0, len(targets))
	for i, recipient := range targets {
		messages = append(messages, draft.To(model.MessageID(first+int64(i)), recipient, s.origin))
	}
	if err := s.store(ctx, messages); err != nil {
		return 0, err
	}
	return len(messages), nil
}

// store writes messages and their index entries in one transaction
func (s *Storage) store(ctx context.Context, messages []model.Message) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, msg := range messages {
			data, err := json.Marshal(toRecord(msg))
			if err != nil {
				return err
			}
			m := member(msg.ID)
			pipe.Set(ctx, s.keys.message(msg.ID), data, 0)
			pipe.ZAdd(ctx, s.keys.mailbox(msg.Recipient), redis.Z{Score: float64(msg.ID), Member: m})
			pipe.ZAdd(ctx, s.keys.byTime(), redis.Z{Score: float64(msg.Time), Member: m})
		}
		return nil
	})
	return backendError("store", err)
}

// remove deletes messages and their index entries in one transaction
func (s *Storage) remove(ctx context.Context, records []record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range records {
			m := member(r.ID)
			pipe.Del(ctx, s.keys.message(r.ID))
			pipe.ZRem(ctx, s.keys.mailbox(r.Recipient), m)
			pipe.ZRem(ctx, s.keys.byTime(), m)
		}
		return nil
	})
	return backendError("remove", err)
}

func (s *Storage) MarkRead(ctx context.Context, msg model.Message) error {
	if msg.Origin != s.origin {
		return backendError("mark read", model.ErrForeignMessage)
	}

	r, err := s.get(ctx, msg.ID)
	if err != nil || r == nil || r.Read {
		return err
	}
	r.Read = true

	data, err := json.Marshal(r)
	if err != nil {
		return model.NewStorageError(model.KindParse, "mark read", err)
	}
	// XX keeps a concurrent delete from being undone
	return backendError("mark read", s.client.SetXX(ctx, s.keys.message(msg.ID), data, 0).Err())
}

func (s *Storage) DeleteMessage(ctx context.Context, msg model.Message) error {
	if msg.Origin != s.origin {
		return backendError("delete message", model.ErrForeignMessage)
	}
	return s.remove(ctx, []record{toRecord(msg)})
}

func (s *Storage) Delete(ctx context.Context, id model.MessageID, recipient model.Identity) (bool, error) {
	r, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	if r == nil || r.Recipient != recipient {
		return false, nil
	}
	if err := s.remove(ctx, []record{*r}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) DeleteOlder(ctx context.Context, threshold int64, includeUnread bool) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, s.keys.byTime(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(threshold, 10),
	}).Result()
	if err != nil {
		return 0, backendError("delete older", err)
	}

	records, err := s.fetch(ctx, members)
	if err != nil {
		return 0, err
	}

	doomed := slices.DeleteFunc(records, func(r record) bool {
		return !includeUnread && !r.Read
	})
	if err := s.remove(ctx, doomed); err != nil {
		return 0, err
	}
	return len(doomed), nil
}

// Directory operations

func (s *Storage) directory(ctx context.Context) (map[string]model.Identity, error) {
	entries, err := s.client.HGetAll(ctx, s.keys.directory()).Result()
	if err != nil {
		return nil, backendError("read directory", err)
	}

	directory := make(map[string]model.Identity, len(entries))
	for name, raw := range entries {
		id, err := model.ParseIdentity(raw)
		if err != nil {
			return nil, model.NewStorageError(model.KindParse, "read directory", err)
		}
		directory[name] = id
	}
	return directory, nil
}

func (s *Storage) GetIdentityForName(ctx context.Context, name string) (model.Identity, bool, error) {
	if name == model.ConsoleName {
		return model.ConsoleIdentity, true, nil
	}

	raw, err := s.client.HGet(ctx, s.keys.directory(), name).Result()
	switch {
	case err == nil:
		id, err := model.ParseIdentity(raw)
		if err != nil {
			return model.Identity{}, false, model.NewStorageError(model.KindParse, "lookup name", err)
		}
		return id, true, nil
	case !errors.Is(err, redis.Nil):
		return model.Identity{}, false, backendError("lookup name", err)
	}

	directory, err := s.directory(ctx)
	if err != nil {
		return model.Identity{}, false, err
	}
	id, ok := storage.ResolveName(directory, name)
	return id, ok, nil
}

func (s *Storage) GetAllKnownIdentities(ctx context.Context) ([]model.Identity, error) {
	directory, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}
	return storage.UniqueIdentities(directory), nil
}

func (s *Storage) GetKnownUsernames(ctx context.Context) ([]string, error) {
	names, err := s.client.HKeys(ctx, s.keys.directory()).Result()
	if err != nil {
		return nil, backendError("list usernames", err)
	}
	slices.Sort(names)
	return names, nil
}

func (s *Storage) UpdateUserEntry(ctx context.Context, id model.Identity, username string) error {
	if err := storage.CheckUsername(username); err != nil {
		return err
	}
	return backendError("update user", s.client.HSet(ctx, s.keys.directory(), username, id.String()).Err())
}
