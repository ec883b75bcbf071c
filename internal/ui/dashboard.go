package ui

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
	"github.com/rovshanmuradov/yieldscope/internal/domain"
	"github.com/rovshanmuradov/yieldscope/internal/logger"
	"github.com/rovshanmuradov/yieldscope/internal/normalize"
	"github.com/rovshanmuradov/yieldscope/internal/scheduler"
	"github.com/rovshanmuradov/yieldscope/internal/ui/style"
)

const (
	defaultRefreshInterval = 5 * time.Second
	defaultRefreshTimeout  = 30 * time.Second
	logPaneLines           = 5
	chromeLines            = 9
)

// Refresher produces snapshots. *scheduler.Scheduler satisfies it.
type Refresher interface {
	RunNow(ctx context.Context) (aggregator.Snapshot, error)
	Latest() (aggregator.Snapshot, bool)
}

// LogSource feeds the log pane. *logger.LogBuffer satisfies it.
type LogSource interface {
	GetRecentLogs(limit int) []logger.LogEntry
}

// RankMode selects how the table and the best pick are ordered.
type RankMode int

const (
	RankRiskAdjusted RankMode = iota
	RankRawAPY
)

func (r RankMode) String() string {
	if r == RankRawAPY {
		return "raw APY"
	}
	return "risk-adjusted"
}

// Options tunes the dashboard. RefreshInterval is how often it polls Latest.
type Options struct {
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

// Dashboard is the single-screen yield table.
type Dashboard struct {
	refresher Refresher
	logs      LogSource
	keyMap    KeyMap
	help      help.Model
	table     table.Model
	opts      Options

	width  int
	height int

	// State
	snapshot   aggregator.Snapshot
	hasData    bool
	rows       []domain.YieldOpportunity
	rank       RankMode
	assetIdx   int // 0 = all, i = domain.AllAssets[i-1]
	chainIdx   int // 0 = all, i = domain.AllChains[i-1]
	refreshing bool
	showLogs   bool
	lastErr    error

	// Styling
	palette        style.Palette
	titleStyle     lipgloss.Style
	statusStyle    lipgloss.Style
	errorStyle     lipgloss.Style
	warningStyle   lipgloss.Style
	bestStyle      lipgloss.Style
	logStyle       lipgloss.Style
	containerStyle lipgloss.Style
}

// NewDashboard creates the dashboard. logs may be nil.
func NewDashboard(refresher Refresher, logs LogSource, opts Options) *Dashboard {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	palette := style.DefaultPalette()

	t := table.New(
		table.WithColumns(columns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		Foreground(palette.Secondary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(palette.TextMuted).
		BorderBottom(true).
		Bold(true)
	ts.Selected = ts.Selected.
		Foreground(palette.Background).
		Background(palette.Primary).
		Bold(false)
	t.SetStyles(ts)

	return &Dashboard{
		refresher: refresher,
		logs:      logs,
		keyMap:    DefaultKeyMap(),
		help:      help.New(),
		table:     t,
		opts:      opts,
		showLogs:  logs != nil,
		palette:   palette,

		titleStyle: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true),
		statusStyle: lipgloss.NewStyle().
			Foreground(palette.TextSecondary),
		errorStyle: lipgloss.NewStyle().
			Foreground(palette.Error).
			Bold(true),
		warningStyle: lipgloss.NewStyle().
			Foreground(palette.Warning),
		bestStyle: lipgloss.NewStyle().
			Foreground(palette.Success).
			Bold(true),
		logStyle: lipgloss.NewStyle().
			Foreground(palette.TextMuted),
		containerStyle: lipgloss.NewStyle().
			Padding(0, 1),
	}
}

func columns() []table.Column {
	return []table.Column{
		{Title: "Protocol", Width: 9},
		{Title: "Chain", Width: 9},
		{Title: "Asset", Width: 6},
		{Title: "APY %", Width: 8},
		{Title: "Adj %", Width: 8},
		{Title: "TVL", Width: 20},
		{Title: "Risk", Width: 5},
		{Title: "Source", Width: 9},
	}
}

// Init starts the first refresh and the ticker that polls for scheduled snapshots.
func (d *Dashboard) Init() tea.Cmd {
	d.refreshing = true
	return tea.Batch(d.refreshCmd(), d.tickCmd())
}

func (d *Dashboard) refreshCmd() tea.Cmd {
	refresher, timeout := d.refresher, d.opts.RefreshTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		snap, err := refresher.RunNow(ctx)
		if errors.Is(err, scheduler.ErrRefreshInProgress) {
			if latest, ok := refresher.Latest(); ok {
				return SnapshotMsg{Snapshot: latest}
			}
		}
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

// latestCmd picks up snapshots the scheduler produced on its own.
func (d *Dashboard) latestCmd() tea.Cmd {
	refresher, seen := d.refresher, d.snapshot.CollectedAt
	return func() tea.Msg {
		snap, ok := refresher.Latest()
		if !ok || !snap.CollectedAt.After(seen) {
			return nil
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func (d *Dashboard) tickCmd() tea.Cmd {
	return tea.Tick(d.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles keys, window resizes and refresh results.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.help.Width = msg.Width
		d.resizeTable()
		return d, nil

	case tea.KeyMsg:
		return d.handleKey(msg)

	case SnapshotMsg:
		d.refreshing = false
		d.lastErr = nil
		d.snapshot = msg.Snapshot
		d.hasData = true
		d.rebuildRows()
		return d, nil

	case ErrorMsg:
		d.refreshing = false
		d.lastErr = msg.Err
		return d, nil

	case TickMsg:
		return d, tea.Batch(d.tickCmd(), d.latestCmd())
	}

	var cmd tea.Cmd
	d.table, cmd = d.table.Update(msg)
	return d, cmd
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, d.keyMap.Quit):
		return d, tea.Quit
	case key.Matches(msg, d.keyMap.Help):
		d.help.ShowAll = !d.help.ShowAll
		d.resizeTable()
		return d, nil
	case key.Matches(msg, d.keyMap.Refresh):
		if d.refreshing {
			return d, nil
		}
		d.refreshing = true
		return d, d.refreshCmd()
	case key.Matches(msg, d.keyMap.ToggleRank):
		if d.rank == RankRiskAdjusted {
			d.rank = RankRawAPY
		} else {
			d.rank = RankRiskAdjusted
		}
		d.rebuildRows()
		return d, nil
	case key.Matches(msg, d.keyMap.NextAsset):
		d.assetIdx = (d.assetIdx + 1) % (len(domain.AllAssets) + 1)
		d.rebuildRows()
		return d, nil
	case key.Matches(msg, d.keyMap.NextChain):
		d.chainIdx = (d.chainIdx + 1) % (len(domain.AllChains) + 1)
		d.rebuildRows()
		return d, nil
	case key.Matches(msg, d.keyMap.ClearScope):
		d.assetIdx, d.chainIdx = 0, 0
		d.rebuildRows()
		return d, nil
	case key.Matches(msg, d.keyMap.ToggleLogs):
		if d.logs != nil {
			d.showLogs = !d.showLogs
			d.resizeTable()
		}
		return d, nil
	}

	var cmd tea.Cmd
	d.table, cmd = d.table.Update(msg)
	return d, cmd
}

func (d *Dashboard) resizeTable() {
	if d.height == 0 {
		return
	}
	h := d.height - chromeLines
	if d.showLogs {
		h -= logPaneLines + 1
	}
	if d.help.ShowAll {
		h -= 3
	}
	d.table.SetHeight(max(h, 3))
}

// Filter is the asset and chain scope currently selected.
func (d *Dashboard) Filter() aggregator.Filter {
	var f aggregator.Filter
	if d.assetIdx > 0 {
		f.Asset = domain.AllAssets[d.assetIdx-1]
	}
	if d.chainIdx > 0 {
		f.Chain = domain.AllChains[d.chainIdx-1]
	}
	return f
}

// Rows returns the opportunities in table order.
func (d *Dashboard) Rows() []domain.YieldOpportunity {
	return d.rows
}

func (d *Dashboard) rebuildRows() {
	f := d.Filter()
	rows := make([]domain.YieldOpportunity, 0, len(d.snapshot.Opportunities))
	for _, o := range d.snapshot.Opportunities {
		if (f.Asset == "" || o.Asset == f.Asset) && (f.Chain == "" || o.Chain == f.Chain) {
			rows = append(rows, o)
		}
	}

	aggregator.SortByAPY(rows)
	if d.rank == RankRiskAdjusted {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].RiskAdjustedAPY() > rows[j].RiskAdjustedAPY()
		})
	}
	d.rows = rows

	tableRows := make([]table.Row, 0, len(rows))
	for _, o := range rows {
		tableRows = append(tableRows, table.Row{
			string(o.Protocol),
			string(o.Chain),
			string(o.Asset),
			fmt.Sprintf("%.2f", o.CurrentAPY),
			fmt.Sprintf("%.2f", o.RiskAdjustedAPY()),
			formatTVL(o.TVL),
			fmt.Sprintf("%.1f", o.RiskScore),
			string(o.Source),
		})
	}
	d.table.SetRows(tableRows)
	if d.table.Cursor() >= len(tableRows) {
		d.table.SetCursor(max(len(tableRows)-1, 0))
	}
}

func formatTVL(cents *big.Int) string {
	if cents == nil {
		return "-"
	}
	return normalize.FormatTVL(cents)
}

func (d *Dashboard) best() (domain.YieldOpportunity, bool) {
	if d.rank == RankRawAPY {
		return aggregator.BestRaw(d.rows)
	}
	return aggregator.BestRiskAdjusted(d.rows)
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var b strings.Builder

	b.WriteString(d.titleStyle.Render("yieldscope"))
	b.WriteString("  ")
	b.WriteString(d.statusStyle.Render(d.statusLine()))
	b.WriteString("\n")
	b.WriteString(d.statusStyle.Render(d.scopeLine()))
	if d.hasData && len(d.rows) > 0 {
		b.WriteString(d.statusStyle.Render(" | "))
		b.WriteString(d.provenanceLine())
	}
	b.WriteString("\n\n")

	if !d.hasData {
		if d.lastErr != nil {
			b.WriteString(d.errorStyle.Render("Refresh failed: " + d.lastErr.Error()))
		} else {
			b.WriteString(d.statusStyle.Render("Loading opportunities..."))
		}
		b.WriteString("\n\n")
		b.WriteString(d.help.View(d.keyMap))
		return d.containerStyle.Render(b.String())
	}

	b.WriteString(d.bestLine())
	b.WriteString("\n")
	b.WriteString(d.table.View())
	b.WriteString("\n")

	if d.lastErr != nil {
		b.WriteString(d.errorStyle.Render("Last refresh failed: " + d.lastErr.Error()))
		b.WriteString("\n")
	}
	if n := len(d.snapshot.Failures); n > 0 {
		b.WriteString(d.warningStyle.Render(d.failureLine()))
		b.WriteString("\n")
	}

	if d.showLogs && d.logs != nil {
		b.WriteString(d.logPane())
	}

	b.WriteString(d.help.View(d.keyMap))
	return d.containerStyle.Render(b.String())
}

func (d *Dashboard) statusLine() string {
	parts := []string{fmt.Sprintf("ranked by %s", d.rank)}
	if d.hasData {
		stats := aggregator.ComputeStats(d.snapshot.Opportunities)
		parts = append(parts,
			fmt.Sprintf("%d opportunities on %d chains", stats.TotalOpportunities, stats.UniqueChains),
			"TVL "+formatTVL(stats.TotalTVL),
			"updated "+d.snapshot.CollectedAt.Local().Format("15:04:05"),
		)
	}
	if d.refreshing {
		parts = append(parts, "refreshing...")
	}
	return strings.Join(parts, " | ")
}

func (d *Dashboard) scopeLine() string {
	f := d.Filter()
	asset, chain := "all assets", "all chains"
	if f.Asset != "" {
		asset = string(f.Asset)
	}
	if f.Chain != "" {
		chain = string(f.Chain)
	}
	return fmt.Sprintf("scope: %s on %s", asset, chain)
}

// provenanceLine counts the rows in scope per data source, each count in its
// source's color so fallback data stands out.
func (d *Dashboard) provenanceLine() string {
	counts := make(map[domain.Provenance]int)
	var order []domain.Provenance
	for _, o := range d.rows {
		if counts[o.Source] == 0 {
			order = append(order, o.Source)
		}
		counts[o.Source]++
	}
	sort.Slice(order, func(i, j int) bool { return order[i] > order[j] })

	parts := make([]string, 0, len(order))
	for _, src := range order {
		color := d.palette.ProvenanceColor(string(src))
		parts = append(parts, lipgloss.NewStyle().Foreground(color).
			Render(fmt.Sprintf("%d %s", counts[src], src)))
	}
	return strings.Join(parts, d.statusStyle.Render(", "))
}

func (d *Dashboard) bestLine() string {
	best, ok := d.best()
	if !ok {
		return d.warningStyle.Render("No opportunities in scope")
	}
	return d.bestStyle.Render(fmt.Sprintf("Best: %s on %s %s at %.2f%% APY (risk %.1f)",
		best.Protocol, best.Chain, best.Asset, best.CurrentAPY, best.RiskScore))
}

func (d *Dashboard) failureLine() string {
	names := make([]string, 0, len(d.snapshot.Failures))
	for _, f := range d.snapshot.Failures {
		names = append(names, fmt.Sprintf("%s/%s", f.Protocol, f.Chain))
	}
	return fmt.Sprintf("%d sources excluded: %s", len(names), strings.Join(names, ", "))
}

func (d *Dashboard) logPane() string {
	entries := d.logs.GetRecentLogs(logPaneLines)
	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("%s %-5s %s", e.Timestamp.Local().Format("15:04:05"), e.Level, e.Message)
		if e.Logger != "" {
			line = fmt.Sprintf("%s %-5s [%s] %s", e.Timestamp.Local().Format("15:04:05"), e.Level, e.Logger, e.Message)
		}
		if d.width > 4 && len(line) > d.width-4 {
			line = line[:d.width-4]
		}
		b.WriteString(d.logStyle.Render(line))
		b.WriteString("\n")
	}
	for i := len(entries); i < logPaneLines; i++ {
		b.WriteString("\n")
	}
	return b.String()
}
