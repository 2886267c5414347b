package schema

import "time"

// Turn is one request/response exchange within a Session.
type Turn struct {
	Input     Message
	Output    Message
	Timestamp time.Time
	Metadata  map[string]any
}

// Session is an ordered history of turns plus free-form state, used by
// orchestration-level conversational flows.
type Session struct {
	ID        string
	Turns     []Turn
	State     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}
