package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"hnswdb/internal/shard"
	"hnswdb/internal/ui"
)

func newTopCmd() *cobra.Command {
	var shardName string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live-updating terminal dashboard of shard stats",
		Long: `An operator-facing dashboard (not the out-of-scope web playground)
showing live vectors, deletion ratio, and per-layer edge counts, polled
on a fixed interval the way a top(1)-style tool would.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openNamedShard(shardName)
			if err != nil {
				return err
			}
			defer func() { _ = ctrl.Close() }()

			m := newTopModel(ctrl, shardName, interval)
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to watch")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")

	return cmd
}

type topSnapshot struct {
	stats      shard.Stats
	degrees    []int
	entryLevel int
	hasEntry   bool
	err        error
}

type topTickMsg time.Time

type topModel struct {
	ctrl       *shard.Controller
	name       string
	interval   time.Duration
	styles     ui.Styles
	spark      *ui.Sparkline // Δ live vectors per tick, auto-scaled
	ratioSpark *ui.Sparkline // deletion ratio percent, fixed 0-100 scale
	spinner    spinner.Model
	width      int
	snapshot   topSnapshot
	lastSize   int
	quitting   bool
}

func newTopModel(ctrl *shard.Controller, name string, interval time.Duration) *topModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ui.ColorLime))

	return &topModel{
		ctrl:       ctrl,
		name:       name,
		interval:   interval,
		styles:     ui.DefaultStyles(),
		spark:      ui.NewSparkline(60),
		ratioSpark: ui.NewBoundedSparkline(60, 100),
		spinner:    sp,
		width:      80,
	}
}

func (m *topModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), tickCmd(m.interval), m.spinner.Tick)
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return topTickMsg(t)
	})
}

func (m *topModel) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		stats, err := m.ctrl.Stats(ctx)
		if err != nil {
			return topSnapshot{err: err}
		}
		degrees, err := m.ctrl.LayerDegrees(ctx)
		if err != nil {
			return topSnapshot{err: err}
		}
		entryLevel, hasEntry, err := m.ctrl.EntryPointLevel(ctx)
		if err != nil {
			return topSnapshot{err: err}
		}
		return topSnapshot{stats: stats, degrees: degrees, entryLevel: entryLevel, hasEntry: hasEntry}
	}
}

func (m *topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case topTickMsg:
		return m, tea.Batch(m.poll(), tickCmd(m.interval))
	case topSnapshot:
		if msg.err == nil {
			m.snapshot = msg
			m.spark.Add(float64(msg.stats.LiveVectors - m.lastSize))
			m.lastSize = msg.stats.LiveVectors
			m.ratioSpark.Add(msg.stats.OrphanRatio * 100)
		} else {
			m.snapshot.err = msg.err
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *topModel) View() string {
	if m.quitting {
		return ""
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	if m.snapshot.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("error polling shard %q: %v\n", m.name, m.snapshot.err))
	}

	s := m.snapshot.stats
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", m.styles.Header.Render("algorithm"), "HNSW")
	fmt.Fprintf(&b, "%s   %d\n", m.styles.Label.Render("dimension"), s.Dimension)
	fmt.Fprintf(&b, "%s      %s\n", m.styles.Label.Render("metric"), s.Metric)
	fmt.Fprintf(&b, "%s      %d\n", m.styles.Active.Render("active"), s.LiveVectors)
	fmt.Fprintf(&b, "%s     %d\n", m.styles.Warning.Render("deleted"), s.Tombstones)
	fmt.Fprintf(&b, "%s       %d\n", m.styles.Label.Render("nodes"), s.GraphNodes)
	fmt.Fprintf(&b, "%s  level %d (present=%v)\n", m.styles.Label.Render("entry point"), m.snapshot.entryLevel, m.snapshot.hasEntry)
	threshold := m.ctrl.CompactionThreshold() * 100
	ratioStyle := m.styles.ForDeletionRatio(s.OrphanRatio*100, threshold)
	fmt.Fprintf(&b, "%s  %s\n", m.styles.Label.Render("deletion ratio"), ratioStyle.Render(fmt.Sprintf("%.1f%%", s.OrphanRatio*100)))
	fmt.Fprintf(&b, "%s %v\n", m.styles.Label.Render("edges/layer"), m.snapshot.degrees)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "%s %s\n", m.styles.Label.Render("Δ vectors"), m.styles.Sparkline.Render(m.spark.Render()))
	fmt.Fprintf(&b, "%s %s\n", m.styles.Label.Render("del ratio "), ratioStyle.Render(m.ratioSpark.Render()))

	title := fmt.Sprintf("%s vectordb top · shard=%s", m.spinner.View(), m.name)
	panel := m.styles.Panel.Width(contentWidth).Render(m.styles.Header.Render(title) + "\n\n" + b.String())
	help := lipgloss.NewStyle().Foreground(lipgloss.Color(ui.ColorDarkGray)).Render("press q to quit")
	return panel + "\n" + help
}
