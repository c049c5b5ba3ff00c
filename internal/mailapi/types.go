package mailapi

import "fmt"

// OutboundMessage is the body of a send request. Optional fields are
// omitted from the JSON when unset.
type OutboundMessage struct {
	To               string `json:"to"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	ReplyTo          string `json:"reply_to,omitempty"`
	ReplyToMessageID *int64 `json:"reply_to_message_id,omitempty"`
}

// SendResult is the server's reply to a send, typically message_id and
// inbox. Numbers are kept as json.Number.
type SendResult map[string]any

// InboxSummary is the server's inbox snapshot, typically inbox, total and
// unread.
type InboxSummary map[string]any

// MessagesQuery selects messages to list.
type MessagesQuery struct {
	// Limit is sent as given. Nil means DefaultLimit.
	Limit      *int
	UnreadOnly bool
}

// DefaultLimit is the listing size used when none is given.
const DefaultLimit = 10

// Message is a server-defined message object, passed through as decoded.
// Numbers are kept as json.Number.
type Message map[string]any

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
