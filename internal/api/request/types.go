package request

// SessionRequest is the request body sent when a player connects
type SessionRequest struct {
	Username string `json:"username"`
}

// SendRequest is the request body for sending a message to one user.
// An empty sender_id sends as the console.
type SendRequest struct {
	SenderName string `json:"sender_name"`
	SenderID   string `json:"sender_id"`
	Recipient  string `json:"recipient"`
	Body       string `json:"body"`
}

// BroadcastRequest is the request body for sending a message to everyone
type BroadcastRequest struct {
	SenderName string `json:"sender_name"`
	SenderID   string `json:"sender_id"`
	Body       string `json:"body"`
}
