package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AJMSD/raga/download/orchestrator"
)

const maxAlertsInTUI = 20

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

type (
	eventMsg   orchestrator.Event
	alertMsg   string
	runDoneMsg struct {
		summary *orchestrator.Summary
		err     error
	}
)

// runModel is the Bubble Tea model for a run.
type runModel struct {
	spinner  spinner.Model
	progress progress.Model

	units       int
	unit        int
	unitTitle   string
	tracksTotal int
	tracksDone  int
	acquired    int
	duplicate   int
	skipped     int
	failed      int
	current     string
	alerts      []string

	logPath    string
	cancel     context.CancelFunc
	cancelling bool
	done       bool
	summary    *orchestrator.Summary
	err        error
}

func newRunModel(logPath string, cancel context.CancelFunc) *runModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	return &runModel{
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		logPath:  logPath,
		cancel:   cancel,
		alerts:   make([]string, 0, maxAlertsInTUI),
	}
}

func (m *runModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progress.FrameMsg:
		model, cmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		return m, cmd
	case alertMsg:
		m.addAlert(string(msg))
		return m, nil
	case eventMsg:
		return m, m.apply(orchestrator.Event(msg))
	case runDoneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *runModel) addAlert(s string) {
	m.alerts = append(m.alerts, s)
	if len(m.alerts) > maxAlertsInTUI {
		m.alerts = m.alerts[len(m.alerts)-maxAlertsInTUI:]
	}
}

// apply folds an orchestrator event into the model.
func (m *runModel) apply(e orchestrator.Event) tea.Cmd {
	switch e.Kind {
	case orchestrator.EventUnitStart:
		m.units = e.Total
		m.unit = e.Index + 1
		m.unitTitle = e.Ref.Raw
	case orchestrator.EventUnitResolved:
		if e.Entity != nil {
			m.unitTitle = e.Entity.Title()
		}
		m.tracksTotal += e.Total
	case orchestrator.EventUnitSkipped:
		m.skipped++
		if e.Err != nil {
			m.addAlert(fmt.Sprintf("skipped %s: %v", e.Ref.Raw, e.Err))
		}
	case orchestrator.EventTrackState:
		name := ""
		if e.Track != nil {
			name = e.Track.Name
		}
		switch e.State {
		case orchestrator.StateAcquiring:
			m.current = name
		case orchestrator.StateAccepted:
			m.acquired++
			m.tracksDone++
		case orchestrator.StateDuplicate:
			m.duplicate++
			m.tracksDone++
		case orchestrator.StateFailed:
			m.failed++
			m.tracksDone++
			if e.Err != nil {
				m.addAlert(name + ": " + e.Err.Error())
			}
		}
	}
	if m.tracksTotal == 0 {
		return nil
	}
	return m.progress.SetPercent(float64(m.tracksDone) / float64(m.tracksTotal))
}

func (m *runModel) View() string {
	var b strings.Builder
	b.WriteString("  " + titleStyle.Render("raga run") + "\n\n")
	if m.units > 0 {
		b.WriteString(fmt.Sprintf("  Reference %d/%d: %s\n", m.unit, m.units, truncate(m.unitTitle, 60)))
	}
	b.WriteString("  " + m.progress.View() + "\n")
	b.WriteString(fmt.Sprintf("  %s  %s  %s  %s  tracks %d/%d\n",
		successStyle.Render(fmt.Sprintf("acquired %d", m.acquired)),
		dimStyle.Render(fmt.Sprintf("duplicate %d", m.duplicate)),
		warningStyle.Render(fmt.Sprintf("skipped %d", m.skipped)),
		errorStyle.Render(fmt.Sprintf("failed %d", m.failed)),
		m.tracksDone, m.tracksTotal))
	switch {
	case m.cancelling && !m.done:
		b.WriteString("  " + m.spinner.View() + " " + warningStyle.Render("Stopping after in-flight tracks...") + "\n")
	case m.current != "" && !m.done:
		b.WriteString("  " + m.spinner.View() + " " + truncate(m.current, 60) + "\n")
	}
	b.WriteString("  " + dimStyle.Render("Log file: "+m.logPath) + "\n\n")
	if len(m.alerts) > 0 {
		b.WriteString("  Recent warnings:\n")
		start := max(len(m.alerts)-10, 0)
		for _, a := range m.alerts[start:] {
			b.WriteString("    • " + truncate(a, 70) + "\n")
		}
	}
	if !m.done && !m.cancelling {
		b.WriteString("\n  " + dimStyle.Render("Press q or ctrl+c to stop.") + "\n")
	}
	return b.String()
}

// runner runs the pipeline with progress observers attached.
type runner func(ctx context.Context, observers ...orchestrator.Observer) (*orchestrator.Summary, error)

// RunWithTUI drives run behind the TUI. Orchestrator events and log alerts
// are forwarded to the program; quitting the TUI cancels the run and waits
// for it to wind down.
func RunWithTUI(ctx context.Context, logPath string, alerts <-chan string, run runner, observers ...orchestrator.Observer) (*orchestrator.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newRunModel(logPath, cancel)
	p := tea.NewProgram(model, tea.WithAltScreen())

	stop := make(chan struct{})
	defer close(stop)
	if alerts != nil {
		go func() {
			for {
				select {
				case line := <-alerts:
					p.Send(alertMsg(line))
				case <-stop:
					return
				}
			}
		}()
	}

	type result struct {
		summary *orchestrator.Summary
		err     error
	}
	finished := make(chan result, 1)
	go func() {
		observers := append(observers, func(e orchestrator.Event) { p.Send(eventMsg(e)) })
		summary, err := run(ctx, observers...)
		finished <- result{summary, err}
		p.Send(runDoneMsg{summary: summary, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
	}
	r := <-finished
	return r.summary, r.err
}
