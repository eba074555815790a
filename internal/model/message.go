package model

import "time"

// MessageID identifies a message within one store
type MessageID uint64

// Message is a single piece of mail addressed to one recipient
type Message struct {
	ID         MessageID
	SenderName string
	Sender     Identity
	Recipient  Identity
	Body       string
	Read       bool
	// Time is the send time in unix milliseconds
	Time int64

	// Origin identifies the backend instance that produced this value.
	// It is not persisted.
	Origin string
}

// SentAt returns the send time
func (m Message) SentAt() time.Time {
	return time.UnixMilli(m.Time)
}

// Draft holds the sender-side fields of a message before it is stored
type Draft struct {
	SenderName string
	Sender     Identity
	Body       string
	Read       bool
	Time       int64
}

// To builds a message for the given recipient from the draft
func (d Draft) To(id MessageID, recipient Identity, origin string) Message {
	return Message{
		ID:         id,
		SenderName: d.SenderName,
		Sender:     d.Sender,
		Recipient:  recipient,
		Body:       d.Body,
		Read:       d.Read,
		Time:       d.Time,
		Origin:     origin,
	}
}
