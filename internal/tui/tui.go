// Package tui is the interactive chat surface: one screen with the
// session transcript above a text input. Structured payloads (plans,
// lessons, quizzes, graded attempts, progress reports) render as cards
// inline with the conversation.
package tui

import (
	"context"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/coach/internal/orchestrator"
	"github.com/abhisek/coach/internal/session"
)

const inputCharLimit = 500

// entry is one transcript item: a chat line plus, for coach turns, the
// structured payload that arrived with it.
type entry struct {
	role    session.ChatRole
	text    string
	payload *orchestrator.Payload
	isErr   bool
}

// Model is the root Bubble Tea model for the chat surface.
type Model struct {
	coach     *orchestrator.Orchestrator
	sessionID string

	topic string
	phase session.Phase
	week  int
	fatal bool

	transcript []entry
	input      textinput.Model
	busy       bool
	frame      int
	scroll     int
	loaded     bool
	loadErr    string

	width  int
	height int
}

// New builds the chat model for one session.
func New(coach *orchestrator.Orchestrator, sessionID string) Model {
	return Model{
		coach:     coach,
		sessionID: sessionID,
		input:     newInput(),
	}
}

func newInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "Say something..."
	ti.CharLimit = inputCharLimit
	ti.Focus()
	return ti
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadSession(), m.input.Focus())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionLoadedMsg:
		return m.handleLoaded(msg)

	case turnDoneMsg:
		return m.handleTurnDone(msg)

	case spinnerTickMsg:
		if !m.busy {
			return m, nil
		}
		m.frame++
		return m, spinnerTick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.loaded && !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	if m.width == 0 || m.height == 0 {
		return v
	}
	v.SetContent(m.render())
	return v
}

func (m Model) handleLoaded(msg sessionLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.loadErr = msg.Err.Error()
		return m, nil
	}

	doc := msg.Doc
	m.loaded = true
	m.topic = doc.Session.Topic
	m.phase = doc.Session.Phase
	m.week = doc.Session.CurrentWeek
	m.fatal = doc.Session.Fatal()

	for _, seg := range doc.Segments {
		for _, turn := range seg.Turns {
			m.transcript = append(m.transcript, entry{role: turn.Role, text: turn.Text})
		}
	}

	switch {
	case m.fatal:
		m.transcript = append(m.transcript, entry{
			role:  session.ChatCoach,
			text:  "This session is stuck after repeated agent failures. Start a fresh one to keep going.",
			isErr: true,
		})
	case len(m.transcript) == 0:
		m.transcript = append(m.transcript, entry{
			role: session.ChatCoach,
			text: "Tell me what you'd like to learn and I'll put together a plan.",
		})
	}

	// Resurface a pending quiz so the learner can answer it right away.
	if snap := orchestrator.Snapshot(doc); snap.Payload != nil && snap.Payload.Quiz != nil {
		m.transcript = append(m.transcript, entry{
			role:    session.ChatCoach,
			text:    "There's a quiz waiting from last time:",
			payload: &orchestrator.Payload{Quiz: snap.Payload.Quiz},
		})
	}

	return m, nil
}

func (m Model) handleTurnDone(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.Err != nil {
		m.transcript = append(m.transcript, entry{
			role:  session.ChatCoach,
			text:  "Something went wrong: " + msg.Err.Error(),
			isErr: true,
		})
		return m, nil
	}

	r := msg.Reply
	m.phase = r.Phase
	m.week = r.Week
	m.fatal = r.Fatal
	m.transcript = append(m.transcript, entry{
		role:    session.ChatCoach,
		text:    r.Message,
		payload: r.Payload,
	})
	m.scroll = 0
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "pgup":
		m.scroll += m.transcriptHeight() / 2
		if max := m.maxScroll(); m.scroll > max {
			m.scroll = max
		}
		return m, nil

	case "pgdown":
		m.scroll -= m.transcriptHeight() / 2
		if m.scroll < 0 {
			m.scroll = 0
		}
		return m, nil

	case "enter":
		return m.submit()
	}

	if m.loaded && !m.busy && !m.fatal {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.loaded || m.busy || m.fatal {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	m.transcript = append(m.transcript, entry{role: session.ChatUser, text: text})
	m.input = newInput()
	m.busy = true
	m.scroll = 0

	return m, tea.Batch(m.sendTurn(text), spinnerTick(), m.input.Focus())
}

// loadSession fetches the document off the update loop.
func (m Model) loadSession() tea.Cmd {
	coach, id := m.coach, m.sessionID
	return func() tea.Msg {
		doc, err := coach.Load(context.Background(), id)
		return sessionLoadedMsg{Doc: doc, Err: err}
	}
}

// sendTurn runs one orchestrated turn off the update loop.
func (m Model) sendTurn(utterance string) tea.Cmd {
	coach, id := m.coach, m.sessionID
	return func() tea.Msg {
		reply, err := coach.Turn(context.Background(), id, utterance)
		return turnDoneMsg{Reply: reply, Err: err}
	}
}

func spinnerTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}

// Run starts the chat program for the session and blocks until it exits.
func Run(coach *orchestrator.Orchestrator, sessionID string) error {
	p := tea.NewProgram(New(coach, sessionID))
	_, err := p.Run()
	return err
}
