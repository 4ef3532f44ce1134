package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

// TUI renders run progress with bubbletea.
type TUI struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *runModel
	tracker *Tracker
	started bool
	done    chan struct{}
}

// NewTUI creates a TUI reporter. It fails when the output is not a terminal.
func NewTUI(cfg Config) (*TUI, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}

	tracker := NewTracker()
	model := newRunModel(tracker, cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUI{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// OnInterrupt sets the function called when the user presses q or ctrl+c.
// It must be called before the run starts.
func (r *TUI) OnInterrupt(fn func()) {
	r.model.interrupt = fn
}

// OnRunStart implements ingest.Reporter and starts the program.
func (r *TUI) OnRunStart(total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Start(total)
	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// OnStage implements ingest.Reporter.
func (r *TUI) OnStage(ev ingest.StageEvent) error {
	r.tracker.Observe(ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(stageMsg(ev))
	}
	return nil
}

// OnRunEnd implements ingest.Reporter. It renders the summary and waits
// briefly for the program to exit.
func (r *TUI) OnRunEnd(res *ingest.Result) error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Send(completeMsg{result: res})
	return r.wait()
}

// Stop quits the program without a summary.
func (r *TUI) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	return r.wait()
}

func (r *TUI) wait() error {
	select {
	case <-r.done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("progress display did not exit")
	}
}

// Message types for bubbletea
type stageMsg ingest.StageEvent
type completeMsg struct{ result *ingest.Result }
type tickMsg time.Time

// runModel is the bubbletea model for an ingest run.
type runModel struct {
	tracker     *Tracker
	title       string
	width       int
	quitting    bool
	complete    bool
	result      *ingest.Result
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	interrupt   func()
}

func newRunModel(tracker *Tracker, title string) *runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	p := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &runModel{
		tracker:     tracker,
		title:       title,
		width:       80,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.interrupt != nil {
				m.interrupt()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)

	case stageMsg:
		// Already applied to the tracker by the reporter.
		return m, nil

	case completeMsg:
		m.complete = true
		m.result = msg.result
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *runModel) View() string {
	if m.complete {
		return m.renderComplete()
	}
	if m.quitting {
		return "Cancelling, finishing the current record...\n"
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	sections := []string{
		m.styles.Header.Render(m.title),
		m.renderStages(stats.Stage),
		m.renderDivider(width),
		m.renderProgress(stats),
		m.renderSpeed(stats),
		m.styles.Speed.Render(m.tracker.RenderSparkline(max(width-12, 10))) + " " + m.styles.Dim.Render("throughput"),
	}
	if stats.CurrentID != "" {
		sections = append(sections, m.styles.Dim.Render(truncate(stats.CurrentID, width)))
	}
	if failures := m.tracker.Failures(); len(failures) > 0 {
		sections = append(sections, m.renderDivider(width))
		start := max(len(failures)-3, 0)
		for _, f := range failures[start:] {
			sections = append(sections, m.styles.Error.Render(truncate("✗ "+f.ID+": "+f.Err, width)))
		}
	}
	sections = append(sections, m.styles.Dim.Render("q to cancel"))
	return strings.Join(sections, "\n") + "\n"
}

// renderStages renders the pipeline stage indicators.
func (m *runModel) renderStages(current ingest.Stage) string {
	stages := []struct {
		stage ingest.Stage
		name  string
	}{
		{ingest.StageFetching, "Fetch"},
		{ingest.StageParsing, "Parse"},
		{ingest.StageStoring, "Store"},
		{ingest.StageEmbedding, "Embed"},
	}

	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		if s.stage == current {
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.name))
			continue
		}
		parts = append(parts, m.styles.Stage.Render("○ "+s.name))
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *runModel) renderProgress(stats TrackerStats) string {
	if stats.Total == 0 {
		return fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Dim.Render("Preparing..."))
	}

	bar := m.progressBar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	counts := fmt.Sprintf("%d / %d records  (%d ok, %d failed, %d skipped)",
		stats.Done, stats.Total, stats.Succeeded, stats.Failed, stats.Skipped)
	return fmt.Sprintf("%s  %s\n%s", bar, pct, m.styles.Label.Render(counts))
}

func (m *runModel) renderSpeed(stats TrackerStats) string {
	speed := fmt.Sprintf("Speed: %.1f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg: %.1f, peak: %.1f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts := []string{m.styles.Speed.Render(speed)}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *runModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

// renderComplete renders the run summary.
func (m *runModel) renderComplete() string {
	res := m.result
	if res == nil {
		return "Done.\n"
	}

	lines := []string{
		m.styles.Success.Render("✓ Ingest complete"),
		"",
		fmt.Sprintf("%s %s", m.styles.Label.Render("Succeeded:"), m.styles.Active.Render(fmt.Sprintf("%d (%d embedded)", len(res.Succeeded), res.Embedded()))),
		fmt.Sprintf("%s    %s", m.styles.Label.Render("Failed:"), m.styles.Active.Render(fmt.Sprintf("%d", len(res.Failed)))),
		fmt.Sprintf("%s   %s", m.styles.Label.Render("Skipped:"), m.styles.Active.Render(fmt.Sprintf("%d", len(res.Skipped)))),
		fmt.Sprintf("%s  %s", m.styles.Label.Render("Duration:"), m.styles.Active.Render(formatDuration(res.Duration()))),
	}
	if len(res.Pending) > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d records not processed (cancelled)", len(res.Pending))))
	}
	for _, f := range res.Failed {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %s [%s]: %s", f.ID, f.Stage, f.Message)))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(1, 2).
		Width(max(m.width-4, 40))
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

// truncate shortens s to at most n runes, ending in "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return "..."
	}
	return string(r[:n-3]) + "..."
}

var _ ingest.Reporter = (*TUI)(nil)
