package quiz

import "encoding/json"

// IntentKind discriminates the messages carried on the bus.
type IntentKind string

const (
	KindJoin  IntentKind = "join"
	KindLeave IntentKind = "leave"
	KindChat  IntentKind = "chat"
)

// Intent is a client request published for replay rather than applied directly.
// Every subscribed instance (the publisher included) replays it against its own
// mirror, so the admission decision is identical everywhere.
type Intent struct {
	Kind    IntentKind     `json:"kind"`
	Room    string         `json:"room"`
	Name    string         `json:"name,omitempty"`
	ConnID  string         `json:"connId"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Participant is one named occupant of a room, bound to the connection that
// issued the most recent join for that name.
type Participant struct {
	Name   string         `json:"name"`
	ConnID string         `json:"connId"`
	Data   map[string]any `json:"data,omitempty"`
}

// Event names delivered to clients.
const (
	EventUserJoined = "user_joined"
	EventQuizStart  = "quiz_start"
	EventUserLeft   = "user_left"
	EventQuizError  = "quiz_error"
	EventChat       = "chat"
)

// RoomEvent is the payload for user_joined / quiz_start / user_left.
type RoomEvent struct {
	Type string    `json:"type"` // "lobby" or "question"
	User string    `json:"user"`
	Data EventData `json:"data"`
}

type EventData struct {
	Users    map[string]Participant `json:"users"`
	Question json.RawMessage        `json:"question,omitempty"`
}

// ErrorEvent is delivered only to the connection whose intent failed.
type ErrorEvent struct {
	Error string `json:"error"`
}

// Question content comes from a separate service; the start event carries an
// empty object until then.
var emptyQuestion = json.RawMessage(`{}`)
