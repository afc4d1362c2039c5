package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/util"
)

type stageState int

const (
	stageWaiting stageState = iota
	stageRunning
	stageDone
)

type taskRow struct {
	id     string
	agent  string
	status project.TaskStatus
	err    string
}

type stageRow struct {
	stage     project.Stage
	state     stageState
	tasks     []*taskRow
	succeeded int
	failed    int
	duration  time.Duration
}

func (s *stageRow) task(id, agent string) *taskRow {
	for _, t := range s.tasks {
		if t.id == id {
			return t
		}
	}
	t := &taskRow{id: id, agent: agent, status: project.TaskPending}
	s.tasks = append(s.tasks, t)
	return t
}

// EventMsg carries one progress event into the model.
type EventMsg events.Envelope

// RunDoneMsg ends the view with the run's final state.
type RunDoneMsg struct {
	Project *project.Project
	Err     error
}

// RunModel renders a live view of one project moving through its stages.
type RunModel struct {
	projectID string
	idea      string
	stages    []*stageRow
	spinner   spinner.Model

	events <-chan events.Envelope
	done   <-chan RunDoneMsg
	pause  func()

	artifacts   int
	lastErr     string
	pausing     bool
	final       *project.Project
	err         error
	interrupted bool
}

// NewRunModel builds the view. evs delivers progress events for the project
// and done receives exactly one message when the run returns. pause is
// called when the user presses p; it may be nil.
func NewRunModel(p project.Project, evs <-chan events.Envelope, done <-chan RunDoneMsg, pause func()) RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	rows := make([]*stageRow, 0, int(project.LastStage))
	for _, st := range project.AllStages() {
		row := &stageRow{stage: st}
		if st < p.CurrentStage {
			row.state = stageDone
		}
		rows = append(rows, row)
	}

	return RunModel{
		projectID: p.ID,
		idea:      p.Idea,
		stages:    rows,
		spinner:   s,
		events:    evs,
		done:      done,
		pause:     pause,
	}
}

// Final returns the project as the run left it, or nil if the view was
// closed first.
func (m RunModel) Final() *project.Project { return m.final }

// Err returns the run error, if any.
func (m RunModel) Err() error { return m.err }

// Interrupted reports whether the user quit before the run returned.
func (m RunModel) Interrupted() bool { return m.interrupted }

func (m RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), waitForDone(m.done))
}

func waitForEvent(ch <-chan events.Envelope) tea.Cmd {
	return func() tea.Msg {
		env, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg(env)
	}
}

func waitForDone(ch <-chan RunDoneMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		case "p":
			if m.pause != nil && !m.pausing {
				m.pausing = true
				m.pause()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(events.Envelope(msg))
		return m, waitForEvent(m.events)

	case RunDoneMsg:
		m.final = msg.Project
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *RunModel) row(stage project.Stage) *stageRow {
	if !stage.Valid() {
		return nil
	}
	return m.stages[int(stage)-1]
}

func (m *RunModel) apply(env events.Envelope) {
	switch p := env.Payload.(type) {
	case events.ProjectStartPayload:
		if row := m.row(p.Stage); row != nil {
			row.state = stageRunning
			row.tasks = nil
		}
	case events.TaskUpdatePayload:
		if row := m.row(p.Stage); row != nil {
			t := row.task(p.TaskID, p.Agent)
			t.status = p.Status
			t.err = p.Error
		}
	case events.ArtifactCreatePayload:
		m.artifacts++
	case events.StageCompletePayload:
		if row := m.row(p.Stage); row != nil {
			row.state = stageDone
			row.succeeded = p.CompletedTasks
			row.failed = p.FailedTasks
			row.duration = time.Duration(p.DurationMs) * time.Millisecond
		}
	case events.ErrorPayload:
		if p.TaskID == "" {
			m.lastErr = p.Error
		}
	}
}

func (m RunModel) View() string {
	var sb strings.Builder

	sb.WriteString(StyleHeader.Render("IdeaForge") + StyleSubtle.Render(util.ShortID(m.projectID, 12)) + "\n")
	sb.WriteString("  " + StyleText.Render(Truncate(m.idea, 72)) + "\n\n")

	for _, row := range m.stages {
		sb.WriteString(m.renderStage(row))
	}

	sb.WriteString("\n")
	sb.WriteString(StyleSubtle.Render(fmt.Sprintf("  %d artifacts", m.artifacts)) + "\n")
	if m.lastErr != "" {
		sb.WriteString("  " + StyleError.Render(Truncate(m.lastErr, 100)) + "\n")
	}
	switch {
	case m.final != nil:
		sb.WriteString("  " + StatusStyle(m.final.Status).Render(string(m.final.Status)) + "\n")
	case m.pausing:
		sb.WriteString(StyleWarning.Render("  pausing after the current stage...") + "\n")
	default:
		sb.WriteString(StyleSubtle.Render("  p pause • q quit") + "\n")
	}
	return sb.String()
}

func (m RunModel) renderStage(row *stageRow) string {
	label := fmt.Sprintf("%d. %s", int(row.stage), row.stage)

	var head string
	switch row.state {
	case stageRunning:
		head = fmt.Sprintf("  %s %s", m.spinner.View(), StyleTitle.Render(label))
	case stageDone:
		summary := StyleSubtle.Render(fmt.Sprintf(" %d ok, %d failed, %s", row.succeeded, row.failed, row.duration.Round(time.Millisecond)))
		if row.succeeded == 0 && row.failed == 0 {
			summary = ""
		}
		head = fmt.Sprintf("  %s %s%s", Icon("✓", StyleSuccess), StyleText.Render(label), summary)
	default:
		head = fmt.Sprintf("  %s %s", Icon("○", StyleSubtle), StyleSubtle.Render(label))
	}

	var sb strings.Builder
	sb.WriteString(head + "\n")
	if row.state == stageRunning || row.failed > 0 {
		for _, t := range row.tasks {
			line := fmt.Sprintf("      %s %s", TaskIcon(t.status), t.agent)
			if t.err != "" {
				line += " " + StyleError.Render(Truncate(t.err, 60))
			}
			sb.WriteString(line + "\n")
		}
	}
	return sb.String()
}
