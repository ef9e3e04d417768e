package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// DefaultPollInterval is how often the watcher reads the build status.
const DefaultPollInterval = 500 * time.Millisecond

const barWidth = 30

// pipeline lists the stages shown by the watcher, in order.
var pipeline = []struct {
	status domain.FabricStatus
	label  string
}{
	{domain.FabricStatusIngesting, "Ingest documents"},
	{domain.FabricStatusChunking, "Chunk text"},
	{domain.FabricStatusVectorizing, "Embed and index"},
	{domain.FabricStatusGraphBuilding, "Build graph"},
	{domain.FabricStatusReady, "Ready"},
}

// Watcher is a Bubbletea model that follows one fabric build until it
// reaches a terminal state.
type Watcher struct {
	ports    *Ports
	ctx      context.Context
	fabricID string
	interval time.Duration
	now      func() time.Time

	styles  *styles.Styles
	keymap  *keymap.KeyMap
	bar     *status.Bar
	spinner spinner.Model

	started   time.Time
	fabric    *domain.Fabric
	lastStage int
	err       error
	done      bool
	cancelled bool
}

var _ tea.Model = (*Watcher)(nil)

// NewWatcher creates a watcher for fabricID.
func NewWatcher(ports *Ports, fabricID string) (*Watcher, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(s.StageActive))

	return &Watcher{
		ports:    ports,
		ctx:      context.Background(),
		fabricID: fabricID,
		interval: DefaultPollInterval,
		now:      time.Now,
		styles:   s,
		keymap:   km,
		bar:      status.NewBar(s, km),
		spinner:  sp,
	}, nil
}

// WithContext sets the context used for status polls.
func (w *Watcher) WithContext(ctx context.Context) *Watcher {
	w.ctx = ctx
	return w
}

// WithInterval sets the poll interval.
func (w *Watcher) WithInterval(d time.Duration) *Watcher {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Init implements tea.Model.
func (w *Watcher) Init() tea.Cmd {
	w.started = w.now()
	return tea.Batch(w.spinner.Tick, w.poll)
}

// poll reads the current build status.
func (w *Watcher) poll() tea.Msg {
	f, err := w.ports.Builds.Status(w.ctx, w.fabricID)
	return messages.StatusPolled{
		Fabric:  f,
		Running: w.ports.Builds.Running(w.fabricID),
		Err:     err,
	}
}

func (w *Watcher) schedulePoll() tea.Cmd {
	return tea.Tick(w.interval, func(time.Time) tea.Msg { return messages.PollDue{} })
}

// Update implements tea.Model.
func (w *Watcher) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, w.keymap.Quit):
			w.cancelled = true
			return w, tea.Quit
		case key.Matches(msg, w.keymap.Refresh):
			return w, w.poll
		}

	case tea.WindowSizeMsg:
		w.bar.SetWidth(msg.Width)

	case messages.PollDue:
		if w.done {
			return w, nil
		}
		return w, w.poll

	case messages.StatusPolled:
		return w, w.handlePoll(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		w.bar.SetElapsed(w.now().Sub(w.started))
		return w, cmd
	}
	return w, nil
}

func (w *Watcher) handlePoll(msg messages.StatusPolled) tea.Cmd {
	if msg.Err != nil {
		if errors.Is(msg.Err, context.Canceled) {
			w.cancelled = true
		} else {
			w.err = msg.Err
		}
		w.done = true
		return tea.Quit
	}

	w.fabric = msg.Fabric
	if stage := msg.Fabric.Status.Stage(); stage >= 0 {
		w.lastStage = stage
	}
	w.bar.SetCounts(msg.Fabric.DocumentsCount, msg.Fabric.ChunksCount, msg.Fabric.DegradedChunks)
	w.bar.SetElapsed(w.now().Sub(w.started))

	if !msg.Running && !msg.Fabric.Status.IsBuilding() {
		w.done = true
		return tea.Quit
	}
	return w.schedulePoll()
}

// View implements tea.Model.
func (w *Watcher) View() string {
	var b strings.Builder

	name := w.fabricID
	if w.fabric != nil && w.fabric.Name != "" {
		name = w.fabric.Name
	}
	b.WriteString(w.styles.Title.Render("Building " + name))
	b.WriteString("\n\n")

	if w.fabric == nil && w.err == nil {
		b.WriteString(w.spinner.View() + " waiting for status...\n")
		return b.String()
	}

	b.WriteString(w.renderStages())
	b.WriteString("\n")
	b.WriteString(w.renderBar())
	b.WriteString("\n\n")

	switch {
	case w.err != nil:
		b.WriteString(w.styles.Error.Render("Error: "+w.err.Error()) + "\n")
	case w.fabric.Status == domain.FabricStatusError && w.fabric.Error != nil:
		b.WriteString(w.styles.Error.Render(fmt.Sprintf("Build failed (%s): %s",
			w.fabric.Error.Kind, w.fabric.Error.Message)) + "\n")
		if w.fabric.Error.Hint != "" {
			b.WriteString(w.styles.Hint.Render("Hint: "+w.fabric.Error.Hint) + "\n")
		}
	case w.fabric.Status == domain.FabricStatusReady && w.done:
		b.WriteString(w.styles.Success.Render("Fabric is ready.") + "\n")
	}

	b.WriteString(w.bar.View())
	return b.String()
}

func (w *Watcher) renderStages() string {
	var b strings.Builder
	failed := w.fabric != nil && w.fabric.Status == domain.FabricStatusError
	ready := w.fabric != nil && w.fabric.Status == domain.FabricStatusReady
	current := w.lastStage
	if failed && current < 1 {
		current = 1
	}

	for _, st := range pipeline {
		stage := st.status.Stage()
		var line string
		switch {
		case stage < current || ready:
			line = w.styles.StageDone.Render("✓ " + st.label)
		case stage == current && failed:
			line = w.styles.Error.Render("✗ " + st.label)
		case stage == current:
			line = w.spinner.View() + " " + w.styles.StageActive.Render(st.label)
		default:
			line = w.styles.StagePending.Render("· " + st.label)
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

func (w *Watcher) renderBar() string {
	total := len(pipeline)
	filled := w.lastStage * barWidth / total
	if filled > barWidth {
		filled = barWidth
	}
	return "  " + w.styles.BarFilled.Render(strings.Repeat("█", filled)) +
		w.styles.BarEmpty.Render(strings.Repeat("░", barWidth-filled)) +
		w.styles.Muted.Render(fmt.Sprintf(" %d/%d", w.lastStage, total))
}

// Fabric returns the last polled record, or nil.
func (w *Watcher) Fabric() *domain.Fabric {
	return w.fabric
}

// Err returns the poll error that ended the watch, if any.
func (w *Watcher) Err() error {
	return w.err
}

// Cancelled reports whether the user quit before the build finished.
func (w *Watcher) Cancelled() bool {
	return w.cancelled
}

// Run shows the watcher on out until the build finishes or the user quits.
// A nil in disables keyboard input. It returns the final fabric record, or
// ErrCancelled.
func Run(ctx context.Context, ports *Ports, fabricID string, in io.Reader, out io.Writer) (*domain.Fabric, error) {
	w, err := NewWatcher(ports, fabricID)
	if err != nil {
		return nil, err
	}
	w.WithContext(ctx)

	p := tea.NewProgram(w, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("build watcher: %w", err)
	}
	if w.Cancelled() || ctx.Err() != nil {
		return w.Fabric(), ErrCancelled
	}
	if w.Err() != nil {
		return nil, w.Err()
	}
	return w.Fabric(), nil
}
