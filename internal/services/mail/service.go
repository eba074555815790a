// Package mail holds the mail business rules: addressing by username,
// broadcasts, paged inbox listing, deletion and cleanup of old mail.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mcoot/proxymail/internal/dependencies/clock"
	"github.com/mcoot/proxymail/internal/metrics"
	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/storage"
)

// Metric label values
const (
	kindDirect    = "direct"
	kindBroadcast = "broadcast"

	reasonUser    = "user"
	reasonCleanup = "cleanup"
)

// Config holds mail service settings
type Config struct {
	// CleanupThreshold is the age after which read mail is removed by Cleanup
	CleanupThreshold time.Duration
	// PageSize is the number of messages per listing page
	PageSize int
}

// DefaultConfig returns the default mail settings
func DefaultConfig() Config {
	return Config{
		CleanupThreshold: 7 * 24 * time.Hour,
		PageSize:         10,
	}
}

// Sender identifies who a message is from
type Sender struct {
	Name     string
	Identity model.Identity
}

// ConsoleSender returns the sender used for mail sent by the server operator
func ConsoleSender() Sender {
	return Sender{Name: model.ConsoleName, Identity: model.ConsoleIdentity}
}

// ListOptions controls which messages List returns
type ListOptions struct {
	// IncludeRead lists all messages newest first instead of unread oldest first
	IncludeRead bool
	// Start is the 1-based position of the first message on the page
	Start int
	// PageSize overrides the configured page size when positive
	PageSize int
}

// Page is one window of a recipient's mailbox
type Page struct {
	Messages []model.Message
	// Start and End are 1-based and inclusive; both are 0 for an empty mailbox
	Start int
	End   int
	Total int
}

// Service implements mail operations on top of a storage backend
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

// New creates a new mail service. m may be nil.
func New(store storage.Storage, clk clock.Clock, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	return &Service{
		storage: store,
		clock:   clk,
		metrics: m,
		logger:  logger.With(slog.String("component", "mail")),
		cfg:     cfg,
	}
}

func (s *Service) draft(sender Sender, body string) model.Draft {
	return model.Draft{
		SenderName: sender.Name,
		Sender:     sender.Identity,
		Body:       body,
		Time:       clock.NowMillis(s.clock),
	}
}

// Send stores a message for the user known by target
func (s *Service) Send(ctx context.Context, sender Sender, target, body string) (model.Message, error) {
	recipient, ok, err := s.storage.GetIdentityForName(ctx, target)
	if err != nil {
		return model.Message{}, fmt.Errorf("lookup %q: %w", target, err)
	}
	if !ok {
		return model.Message{}, fmt.Errorf("%w: %s", model.ErrUnknownRecipient, target)
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return model.Message{}, model.ErrEmptyMessage
	}

	msg, err := s.storage.SaveMessage(ctx, recipient, s.draft(sender, body))
	if err != nil {
		return model.Message{}, err
	}
	s.metrics.MessagesSent(kindDirect, 1)
	s.logger.Info("mail sent",
		slog.Uint64("id", uint64(msg.ID)),
		slog.String("sender", sender.Name),
		slog.String("recipient", recipient.String()),
	)
	return msg, nil
}

// SendToAll stores a copy of the message for every known user and one for
// the console. It returns the number of copies stored.
func (s *Service) SendToAll(ctx context.Context, sender Sender, body string) (int, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, model.ErrEmptyMessage
	}

	draft := s.draft(sender, body)
	count, err := s.storage.SaveMessageToAll(ctx, draft)
	if err != nil {
		return 0, err
	}
	s.metrics.MessagesSent(kindBroadcast, count)

	if _, err := s.storage.SaveMessage(ctx, model.ConsoleIdentity, draft); err != nil {
		return count, err
	}
	count++
	s.metrics.MessagesSent(kindBroadcast, 1)

	s.logger.Info("mail broadcast",
		slog.String("sender", sender.Name),
		slog.Int("count", count),
	)
	return count, nil
}

// List returns one page of a recipient's mail and marks the listed messages
// read. A start past the last message wraps to the first page.
func (s *Service) List(ctx context.Context, recipient model.Identity, opts ListOptions) (*Page, error) {
	messages, err := s.storage.GetMessagesFor(ctx, recipient, !opts.IncludeRead)
	if err != nil {
		return nil, err
	}
	if opts.IncludeRead {
		slices.Reverse(messages)
	}

	total := len(messages)
	if total == 0 {
		return &Page{Messages: []model.Message{}}, nil
	}

	size := opts.PageSize
	if size <= 0 {
		size = s.cfg.PageSize
	}
	size = min(size, total)
	start := opts.Start
	if start < 1 || start > total {
		start = 1
	}
	end := min(start+size-1, total)

	page := &Page{
		Messages: slices.Clone(messages[start-1 : end]),
		Start:    start,
		End:      end,
		Total:    total,
	}

	for _, msg := range page.Messages {
		if msg.Read {
			continue
		}
		// The listing still succeeds if a message cannot be marked
		if err := s.storage.MarkRead(ctx, msg); err != nil {
			s.logger.Error("failed to mark mail as read",
				slog.Uint64("id", uint64(msg.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	return page, nil
}

// UnreadCount returns the number of unread messages for a recipient
func (s *Service) UnreadCount(ctx context.Context, recipient model.Identity) (int, error) {
	messages, err := s.storage.GetMessagesFor(ctx, recipient, true)
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// PlayerJoined records the player's current username and returns their
// unread count for the login notice
func (s *Service) PlayerJoined(ctx context.Context, id model.Identity, username string) (int, error) {
	if err := s.storage.UpdateUserEntry(ctx, id, username); err != nil {
		return 0, err
	}
	return s.UnreadCount(ctx, id)
}

// DeleteAll removes every message addressed to the recipient
func (s *Service) DeleteAll(ctx context.Context, recipient model.Identity) (int, error) {
	messages, err := s.storage.GetMessagesFor(ctx, recipient, false)
	if err != nil {
		return 0, err
	}
	return s.deleteMessages(ctx, messages)
}

// DeleteRead removes the recipient's messages that have been read
func (s *Service) DeleteRead(ctx context.Context, recipient model.Identity) (int, error) {
	messages, err := s.storage.GetMessagesFor(ctx, recipient, false)
	if err != nil {
		return 0, err
	}
	messages = slices.DeleteFunc(messages, func(m model.Message) bool {
		return !m.Read
	})
	return s.deleteMessages(ctx, messages)
}

func (s *Service) deleteMessages(ctx context.Context, messages []model.Message) (int, error) {
	deleted := 0
	for _, msg := range messages {
		if err := s.storage.DeleteMessage(ctx, msg); err != nil {
			s.metrics.MessagesDeleted(reasonUser, deleted)
			return deleted, err
		}
		deleted++
	}
	s.metrics.MessagesDeleted(reasonUser, deleted)
	return deleted, nil
}

// DeleteByID removes a single message, which must belong to the recipient
func (s *Service) DeleteByID(ctx context.Context, id model.MessageID, recipient model.Identity) error {
	ok, err := s.storage.Delete(ctx, id, recipient)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", model.ErrMessageNotFound, id)
	}
	s.metrics.MessagesDeleted(reasonUser, 1)
	return nil
}

// KnownUsernames returns every username in the directory, sorted
func (s *Service) KnownUsernames(ctx context.Context) ([]string, error) {
	return s.storage.GetKnownUsernames(ctx)
}

// LookupName resolves a username the same way Send does
func (s *Service) LookupName(ctx context.Context, name string) (model.Identity, error) {
	id, ok, err := s.storage.GetIdentityForName(ctx, name)
	if err != nil {
		return model.Identity{}, err
	}
	if !ok {
		return model.Identity{}, fmt.Errorf("%w: %s", model.ErrUnknownRecipient, name)
	}
	return id, nil
}

// Cleanup removes read mail older than the configured threshold
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.CleanupThreshold).UnixMilli()
	deleted, err := s.storage.DeleteOlder(ctx, cutoff, false)
	if err != nil {
		return 0, err
	}
	s.metrics.MessagesDeleted(reasonCleanup, deleted)
	if deleted > 0 {
		s.logger.Info("old mail removed", slog.Int("count", deleted))
	}
	return deleted, nil
}
