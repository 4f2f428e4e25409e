package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	iprogress "github.com/ShayCichocki/modernity/internal/progress"
)

const maxLogLines = 8

// ProgressMsg carries one flow progress event into the program.
type ProgressMsg struct {
	Event iprogress.Event
}

// DoneMsg is sent when the run finishes.
type DoneMsg struct {
	Err error
}

// RunApp shows a spinner, a progress bar and the recent progress messages of
// a single flow run.
type RunApp struct {
	title   string
	cancel  context.CancelFunc
	spinner spinner.Model
	bar     progress.Model

	percent    int
	events     []iprogress.Event
	done       bool
	cancelling bool
	err        error

	titleStyle   lipgloss.Style
	timeStyle    lipgloss.Style
	percentStyle lipgloss.Style
	logStyle     lipgloss.Style
	errorStyle   lipgloss.Style
	doneStyle    lipgloss.Style
	hintStyle    lipgloss.Style
}

// NewRunApp creates the model. cancel is called when the user quits before
// the run is done; it may be nil.
func NewRunApp(title string, cancel context.CancelFunc) *RunApp {
	return &RunApp{
		title:   title,
		cancel:  cancel,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		percentStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(5).
			Align(lipgloss.Right),
		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init starts the spinner.
func (a *RunApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update handles input and progress messages.
func (a *RunApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if a.done {
				return a, tea.Quit
			}
			if !a.cancelling && a.cancel != nil {
				a.cancelling = true
				a.cancel()
			}
		}
	case tea.WindowSizeMsg:
		a.bar.Width = min(max(msg.Width-20, 10), 60)
	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case ProgressMsg:
		a.events = append(a.events, msg.Event)
		if len(a.events) > maxLogLines {
			a.events = a.events[len(a.events)-maxLogLines:]
		}
		a.percent = max(a.percent, msg.Event.Percent)
	case DoneMsg:
		a.done = true
		a.err = msg.Err
		if msg.Err == nil {
			a.percent = 100
		}
		return a, tea.Quit
	}
	return a, nil
}

// View renders the run.
func (a *RunApp) View() string {
	var b strings.Builder

	b.WriteString(a.titleStyle.Render(a.title))
	b.WriteString("\n\n")

	if !a.done {
		b.WriteString(a.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString(a.bar.ViewAs(float64(a.percent) / 100))
	b.WriteString(a.percentStyle.Render(fmt.Sprintf("%d%%", a.percent)))
	b.WriteString("\n\n")

	for _, e := range a.events {
		fmt.Fprintf(&b, "  %s %s %s\n",
			a.timeStyle.Render(e.Timestamp.Format("15:04:05")),
			a.percentStyle.Render(fmt.Sprintf("%d%%", e.Percent)),
			a.logStyle.Render(e.Message))
	}

	b.WriteString("\n")
	switch {
	case a.done && a.err != nil:
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)))
	case a.done:
		b.WriteString(a.doneStyle.Render("Done."))
	case a.cancelling:
		b.WriteString(a.hintStyle.Render("Cancelling..."))
	default:
		b.WriteString(a.hintStyle.Render("Press q to cancel"))
	}
	b.WriteString("\n")

	return b.String()
}

// Percent returns the highest percentage seen.
func (a *RunApp) Percent() int {
	return a.percent
}

// Err returns the error the run finished with.
func (a *RunApp) Err() error {
	return a.err
}

// NewRunProgram creates the program for one run. It renders inline so the
// final output stays in the terminal scrollback.
func NewRunProgram(title string, cancel context.CancelFunc) (*tea.Program, *RunApp) {
	app := NewRunApp(title, cancel)
	return tea.NewProgram(app), app
}

// Forward relays events to send until events is closed or ctx is done.
func Forward(ctx context.Context, events <-chan iprogress.Event, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			send(ProgressMsg{Event: e})
		}
	}
}
