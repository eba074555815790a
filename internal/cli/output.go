package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w, or stdout when w is nil
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Message:
		o.printMessage(v)
	case Page:
		o.printPage(v)
	case SessionResult:
		fmt.Fprintf(o.w, "Unread messages: %d\n", v.Unread)
	case DeletedResult:
		fmt.Fprintf(o.w, "Deleted %d message(s)\n", v.Deleted)
	case BroadcastResult:
		fmt.Fprintf(o.w, "Message sent to %d recipient(s)\n", v.Count)
	case IdentityResult:
		fmt.Fprintf(o.w, "%s: %s\n", v.Name, v.Identity)
	case UsernamesResult:
		o.printUsernames(v)
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
		if v.Storage != "" {
			fmt.Fprintf(o.w, "Storage: %s\n", v.Storage)
		}
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Message response type (matches API)
type Message struct {
	ID         uint64    `json:"id"`
	SenderName string    `json:"sender_name"`
	SenderID   string    `json:"sender_id"`
	Recipient  string    `json:"recipient"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	SentAt     time.Time `json:"sent_at"`
}

// Page response type
type Page struct {
	Messages []Message `json:"messages"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Total    int       `json:"total"`
}

// SessionResult response type
type SessionResult struct {
	Unread int `json:"unread"`
}

// DeletedResult response type
type DeletedResult struct {
	Deleted int `json:"deleted"`
}

// BroadcastResult response type
type BroadcastResult struct {
	Count int `json:"count"`
}

// IdentityResult response type
type IdentityResult struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
}

// UsernamesResult response type
type UsernamesResult struct {
	Usernames []string `json:"usernames"`
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

func (o *Output) printMessage(m Message) {
	marker := " "
	if !m.Read {
		marker = "*"
	}
	fmt.Fprintf(o.w, "%s #%d [%s] %s: %s\n",
		marker, m.ID, m.SentAt.Local().Format(time.DateTime), m.SenderName, m.Body)
}

func (o *Output) printPage(p Page) {
	if p.Total == 0 {
		fmt.Fprintln(o.w, "No messages.")
		return
	}
	fmt.Fprintf(o.w, "Messages %d-%d of %d:\n", p.Start, p.End, p.Total)
	for _, m := range p.Messages {
		o.printMessage(m)
	}
	if p.End < p.Total {
		fmt.Fprintf(o.w, "More with --start %d\n", p.End+1)
	}
}

func (o *Output) printUsernames(u UsernamesResult) {
	if len(u.Usernames) == 0 {
		fmt.Fprintln(o.w, "No known users.")
		return
	}
	fmt.Fprintf(o.w, "Known users (%d):\n", len(u.Usernames))
	fmt.Fprintf(o.w, "  %s\n", strings.Join(u.Usernames, ", "))
}
