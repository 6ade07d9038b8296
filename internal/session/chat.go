package session

import "time"

// ChatRole identifies the author of a transcript turn.
type ChatRole string

const (
	ChatUser  ChatRole = "user"
	ChatCoach ChatRole = "coach"
)

// ChatTurn is a single (role, text, timestamp) entry in a week's transcript.
type ChatTurn struct {
	Role ChatRole  `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ChatSegment is the append-only transcript for one week. Segments for
// different weeks never interleave: appends always target the session's
// current week, so once the week advances a segment is frozen.
type ChatSegment struct {
	Week  int        `json:"week"`
	Turns []ChatTurn `json:"turns"`
}
