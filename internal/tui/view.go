package tui

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/coach/internal/orchestrator"
	"github.com/abhisek/coach/internal/progress"
	"github.com/abhisek/coach/internal/quiz"
	"github.com/abhisek/coach/internal/session"
	"github.com/abhisek/coach/internal/tutor"
	"github.com/abhisek/coach/internal/ui/theme"
)

// chromeLines is the fixed vertical overhead: header, divider, input
// line and the key hint footer.
const chromeLines = 4

func (m Model) render() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().
		Foreground(theme.Border).
		Render(strings.Repeat("─", max(m.width-2, 1))))
	b.WriteString("\n")

	lines := m.transcriptLines()
	visible := m.transcriptHeight()
	start := len(lines) - visible - m.scroll
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > len(lines) {
		end = len(lines)
	}

	window := make([]string, 0, visible)
	window = append(window, lines[start:end]...)
	for len(window) < visible {
		window = append(window, "")
	}
	b.WriteString(strings.Join(window, "\n"))
	b.WriteString("\n")

	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(theme.Hint.Render("  Enter: send   PgUp/PgDn: scroll   Esc: quit"))

	return b.String()
}

func (m Model) renderHeader() string {
	left := theme.Title.Render("  Coach")
	if m.topic != "" {
		left += theme.Hint.Render("  " + m.topic)
	}

	status := string(m.phase)
	if m.loaded && m.phase != session.PhaseOnboarding {
		status = fmt.Sprintf("week %d / %s", m.week, m.phase)
	}
	right := lipgloss.NewStyle().Foreground(theme.TextDim).Render(status)

	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

func (m Model) renderInput() string {
	switch {
	case m.loadErr != "":
		return lipgloss.NewStyle().Foreground(theme.Error).Render("  Error: " + m.loadErr)
	case !m.loaded:
		return theme.Hint.Render("  Loading session...")
	case m.fatal:
		return theme.Hint.Render("  Session closed.")
	case m.busy:
		return theme.Notice.Render("  " + spinnerFrames[m.frame%len(spinnerFrames)] + " thinking...")
	}
	return "> " + m.input.View()
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m Model) transcriptHeight() int {
	h := m.height - chromeLines
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) maxScroll() int {
	n := len(m.transcriptLines()) - m.transcriptHeight()
	if n < 0 {
		n = 0
	}
	return n
}

func (m Model) transcriptLines() []string {
	width := m.width - 2
	if width < 20 {
		width = 20
	}
	var lines []string
	for _, e := range m.transcript {
		lines = append(lines, strings.Split(renderEntry(e, width), "\n")...)
		lines = append(lines, "")
	}
	return lines
}

func renderEntry(e entry, width int) string {
	label := theme.UserLabel.Render("You")
	if e.role == session.ChatCoach {
		label = theme.CoachLabel.Render("Coach")
	}

	style := theme.Body
	if e.isErr {
		style = lipgloss.NewStyle().Foreground(theme.Error)
	}
	out := label + "\n" + style.Width(width).Render(e.text)

	if e.payload != nil {
		if card := renderPayload(e.payload, width); card != "" {
			out += "\n" + card
		}
	}
	return out
}

// renderPayload draws each structured artifact as a bordered card.
func renderPayload(p *orchestrator.Payload, width int) string {
	cardWidth := min(width-2, 76)
	if cardWidth < 24 {
		cardWidth = 24
	}
	inner := cardWidth - 4

	var blocks []string
	if p.Plan != nil {
		blocks = append(blocks, renderPlan(p.Plan, inner))
	}
	if p.Lesson != nil {
		blocks = append(blocks, renderLesson(p.Lesson, inner))
	}
	if p.Quiz != nil {
		blocks = append(blocks, renderQuiz(p.Quiz, inner))
	}
	if p.Attempt != nil {
		blocks = append(blocks, renderAttempt(p.Attempt, inner))
	}
	if p.Report != nil {
		blocks = append(blocks, renderReport(p.Report, inner))
	}
	if len(blocks) == 0 {
		return ""
	}

	cards := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		cards = append(cards, theme.Card.Width(cardWidth).Render(blk))
	}
	return strings.Join(cards, "\n")
}

func renderPlan(p *session.LearningPlan, width int) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(p.Title))
	if p.Summary != "" {
		b.WriteString("\n")
		b.WriteString(theme.Hint.Width(width).Render(p.Summary))
	}
	for _, w := range p.Weeks {
		mark := "[ ]"
		style := theme.Body
		if w.Completed {
			mark = "[x]"
			style = lipgloss.NewStyle().Foreground(theme.Success)
		}
		b.WriteString("\n")
		b.WriteString(style.Width(width).Render(fmt.Sprintf("%s Week %d: %s", mark, w.Number, w.Topic)))
		b.WriteString("\n")
		b.WriteString(theme.Hint.Width(width).Render("      " + w.Goal))
	}
	return b.String()
}

func renderLesson(l *tutor.Lesson, width int) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(l.Topic))
	b.WriteString("\n")
	b.WriteString(theme.Body.Width(width).Render(l.Overview))
	if l.WorkedExample != "" {
		b.WriteString("\n\n")
		b.WriteString(theme.Notice.Render("Worked example"))
		b.WriteString("\n")
		b.WriteString(theme.Body.Width(width).Render(l.WorkedExample))
	}
	if len(l.PracticeProblems) > 0 {
		b.WriteString("\n\n")
		b.WriteString(theme.Notice.Render("Practice"))
		for i, p := range l.PracticeProblems {
			b.WriteString("\n")
			b.WriteString(theme.Body.Width(width).Render(fmt.Sprintf("%d. %s", i+1, p)))
		}
	}
	return b.String()
}

func renderQuiz(q *orchestrator.QuizView, width int) string {
	title := "Quiz"
	switch q.Kind {
	case quiz.KindDiagnostic:
		title = "Diagnostic quiz"
	case quiz.KindWeek:
		title = fmt.Sprintf("Week %d quiz", q.Week)
	}
	if q.Topic != "" {
		title += ": " + q.Topic
	}

	var b strings.Builder
	b.WriteString(theme.Title.Render(title))
	for _, it := range q.Items {
		b.WriteString("\n")
		b.WriteString(theme.Body.Width(width).Render(fmt.Sprintf("%d. %s", it.Number, it.Question)))
		for j, opt := range it.Options {
			b.WriteString("\n")
			b.WriteString(theme.Hint.Width(width).Render(fmt.Sprintf("   %c) %s", 'a'+j, opt)))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(theme.Hint.Width(width).Render(`Answer every question in one message, like "1. ... 2. ..."`))
	return b.String()
}

func renderAttempt(a *quiz.Attempt, width int) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("Results: %.0f%%", a.Score*100)))
	for _, it := range a.Items {
		b.WriteString("\n")
		switch {
		case it.Ungraded:
			b.WriteString(theme.Hint.Width(width).Render("? " + it.Question))
		case it.Correct:
			b.WriteString(theme.Correct.Width(width).Render("✓ " + it.Question))
		case it.Score > 0:
			b.WriteString(theme.Notice.Width(width).Render("~ " + it.Question))
		default:
			b.WriteString(theme.Incorrect.Width(width).Render("✗ " + it.Question))
		}
		if !it.Correct && !it.Ungraded && it.Explanation != "" {
			b.WriteString("\n")
			b.WriteString(theme.Hint.Width(width).Render("   " + it.Explanation))
		}
	}
	if a.Graded == 0 {
		b.WriteString("\n")
		b.WriteString(theme.Hint.Width(width).Render("Nothing could be graded this time."))
	}
	return b.String()
}

func renderReport(r *progress.Report, width int) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render("Progress"))
	if r.Summary != "" {
		b.WriteString("\n")
		b.WriteString(theme.Body.Width(width).Render(r.Summary))
	}
	for _, c := range r.Changes {
		b.WriteString("\n")
		line := fmt.Sprintf("%s: %.2f -> %.2f (%s)", c.SkillID, c.Old, c.New, c.Trend)
		style := theme.Hint
		if c.InBank {
			style = lipgloss.NewStyle().Foreground(theme.Error)
		}
		b.WriteString(style.Width(width).Render(line))
	}
	if len(r.WeakAreas) > 0 {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().
			Foreground(theme.Error).
			Width(width).
			Render("Focus areas: " + strings.Join(r.WeakAreas, ", ")))
	}
	return b.String()
}
