// Package tui provides the interactive timer dashboard for trackd.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/omerbl/trackd/internal/engine"
	"github.com/omerbl/trackd/internal/notify"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(fgColor).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	errStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

const opTimeout = 10 * time.Second

// input purposes
const (
	editNone  = ""
	editDesc  = "description"
	editNotes = "notes"
	editStart = "start"
)

// App is the timer dashboard model.
type App struct {
	session *engine.Session
	notices <-chan notify.Notification

	input   textinput.Model
	editing string
	width   int
	height  int
	message string
}

// New creates the dashboard over an already-loaded session. Notifications
// emitted by the engine arrive on notices and are surfaced in the status
// line.
func New(session *engine.Session, notices <-chan notify.Notification) *App {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 60

	return &App{
		session: session,
		notices: notices,
		input:   ti,
	}
}

type tickMsg time.Time

type opDoneMsg struct{ err error }

type noticeMsg notify.Notification

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) waitForNotice() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-a.notices
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(tickCmd(), a.waitForNotice())
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tickMsg:
		// The view recomputes elapsed time from the session on every
		// render; the tick only forces the redraw.
		return a, tickCmd()

	case noticeMsg:
		a.message = fmt.Sprintf("%s: %s", msg.Title, msg.Description)
		return a, a.waitForNotice()

	case opDoneMsg:
		if msg.err != nil {
			a.message = errStyle.Render(msg.err.Error())
		}
		return a, nil

	case tea.KeyMsg:
		if a.editing != editNone {
			return a.updateEditing(msg)
		}
		return a.updateKeys(msg)
	}

	return a, nil
}

func (a *App) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.session.Close()
		return a, tea.Quit

	case "s":
		if a.session.Phase() == engine.PhaseIdle {
			a.beginEdit(editStart, "What are you working on?", "")
		}
		return a, nil

	case "x":
		return a, a.runOp(func(ctx context.Context) error {
			_, err := a.session.Stop(ctx)
			return err
		})

	case "v":
		if a.session.Current() != nil {
			a.beginEdit(editNotes, "Notes to append", "")
		}
		return a, nil

	case "p":
		switch a.session.Phase() {
		case engine.PhaseRunning:
			a.session.Pause()
		case engine.PhasePaused:
			a.session.Resume()
		}
		return a, nil

	case "r":
		return a, a.runOp(a.session.Reset)

	case "e":
		if current := a.session.Current(); current != nil {
			a.beginEdit(editDesc, "Description", current.Description)
		}
		return a, nil
	}

	return a, nil
}

func (a *App) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.editing = editNone
		a.input.Blur()
		return a, nil

	case "enter":
		value := strings.TrimSpace(a.input.Value())
		purpose := a.editing
		a.editing = editNone
		a.input.Blur()

		switch purpose {
		case editStart:
			return a, a.runOp(func(ctx context.Context) error {
				_, err := a.session.Start(ctx, engine.StartOptions{Description: value})
				return err
			})
		case editNotes:
			return a, a.runOp(func(ctx context.Context) error {
				_, err := a.session.Save(ctx, value)
				return err
			})
		case editDesc:
			return a, a.runOp(func(ctx context.Context) error {
				return a.session.UpdateDescription(ctx, value)
			})
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) beginEdit(purpose, placeholder, value string) {
	a.editing = purpose
	a.input.Placeholder = placeholder
	a.input.SetValue(value)
	a.input.CursorEnd()
	a.input.Focus()
}

func (a *App) runOp(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opDoneMsg{err: op(ctx)}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("trackd") + "  " + a.phaseBadge() + "\n\n")

	// Live clock, recomputed from the persisted start timestamp
	elapsed := engine.FormatElapsed(a.session.Elapsed())
	clock := clockStyle.Render(elapsed)

	var lines []string
	lines = append(lines, clock)
	if current := a.session.Current(); current != nil {
		if current.Description != "" {
			lines = append(lines, current.Description)
		}
		if len(current.Tags) > 0 {
			lines = append(lines, helpStyle.Render(engine.FormatTags(current.Tags)))
		}
	} else {
		lines = append(lines, idleStyle.Render("no timer running"))
	}
	b.WriteString(panelStyle.Render(strings.Join(lines, "\n")) + "\n\n")

	totals := a.session.Totals()
	b.WriteString(fmt.Sprintf("  Today: %s   Week: %s\n",
		runningStyle.Render(formatMinutes(totals.TodayMinutes)),
		runningStyle.Render(formatMinutes(totals.WeekMinutes))))

	if entries := a.session.TodayEntries(); len(entries) > 0 {
		b.WriteString("\n")
		for i, e := range entries {
			if i >= 5 {
				b.WriteString(helpStyle.Render(fmt.Sprintf("  … %d more\n", len(entries)-i)))
				break
			}
			mins := int64(0)
			if e.DurationMinutes != nil {
				mins = *e.DurationMinutes
			}
			marker := " "
			if e.IsRunning {
				marker = runningStyle.Render("●")
			}
			desc := e.Description
			if desc == "" {
				desc = "(no description)"
			}
			b.WriteString(fmt.Sprintf("  %s %s  %s\n", marker, formatMinutes(mins), desc))
		}
	}

	if a.editing != editNone {
		b.WriteString("\n" + inputBoxStyle.Render(a.input.View()) + "\n")
	}

	if a.message != "" {
		b.WriteString("\n  " + a.message + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("  s start · x stop · v save · p pause/resume · r discard · e edit · q quit") + "\n")
	return b.String()
}

func (a *App) phaseBadge() string {
	switch a.session.Phase() {
	case engine.PhaseRunning:
		return runningStyle.Render("● RUNNING")
	case engine.PhasePaused:
		return pausedStyle.Render("❚❚ PAUSED")
	default:
		return idleStyle.Render("○ IDLE")
	}
}

func formatMinutes(mins int64) string {
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
}
