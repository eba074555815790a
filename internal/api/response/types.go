package response

import (
	"time"

	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/services/mail"
)

// Message represents a message in API responses
type Message struct {
	ID         uint64    `json:"id"`
	SenderName string    `json:"sender_name"`
	SenderID   string    `json:"sender_id"`
	Recipient  string    `json:"recipient"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	SentAt     time.Time `json:"sent_at"`
}

// MessageFromModel converts a model.Message to a response Message
func MessageFromModel(m model.Message) Message {
	return Message{
		ID:         uint64(m.ID),
		SenderName: m.SenderName,
		SenderID:   m.Sender.String(),
		Recipient:  m.Recipient.String(),
		Body:       m.Body,
		Read:       m.Read,
		SentAt:     m.SentAt().UTC(),
	}
}

// Page is one page of a mailbox listing
type Page struct {
	Messages []Message `json:"messages"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Total    int       `json:"total"`
}

// PageFromService converts a mail.Page
func PageFromService(p *mail.Page) Page {
	messages := make([]Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		messages = append(messages, MessageFromModel(m))
	}
	return Page{
		Messages: messages,
		Start:    p.Start,
		End:      p.End,
		Total:    p.Total,
	}
}

// Session is the response when a player connects
type Session struct {
	Unread int `json:"unread"`
}

// Deleted reports how many messages were removed
type Deleted struct {
	Deleted int `json:"deleted"`
}

// Broadcast reports how many copies of a message were stored
type Broadcast struct {
	Count int `json:"count"`
}

// Identity is the result of a username lookup
type Identity struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
}

// Usernames lists every known username
type Usernames struct {
	Usernames []string `json:"usernames"`
}

// Health is the health check response
type Health struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
