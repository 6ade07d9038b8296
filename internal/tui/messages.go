package tui

import (
	"time"

	"github.com/abhisek/coach/internal/orchestrator"
	"github.com/abhisek/coach/internal/session"
)

// sessionLoadedMsg is sent when the initial document load completes.
type sessionLoadedMsg struct {
	Doc *session.Document
	Err error
}

// turnDoneMsg is sent when an orchestrated turn returns.
type turnDoneMsg struct {
	Reply *orchestrator.Reply
	Err   error
}

// spinnerTickMsg animates the thinking indicator while a turn is in flight.
type spinnerTickMsg time.Time
