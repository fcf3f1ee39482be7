package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorOrange = lipgloss.Color("#FFB86C")
	colorGray   = lipgloss.Color("#6272A4")
)

// ConsoleNotifier prints a styled report summary to a terminal.
type ConsoleNotifier struct {
	w io.Writer

	panel lipgloss.Style
	title lipgloss.Style
	label lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	high  lipgloss.Style
	crit  lipgloss.Style
}

// NewConsoleNotifier creates a console notifier writing to w, or to stdout
// when w is nil.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	if w == nil {
		w = os.Stdout
	}
	r := lipgloss.NewRenderer(w)
	return &ConsoleNotifier{
		w: w,
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1),
		title: r.NewStyle().Bold(true).Foreground(colorCyan),
		label: r.NewStyle().Foreground(colorGray),
		ok:    r.NewStyle().Foreground(colorGreen),
		warn:  r.NewStyle().Foreground(colorYellow).Bold(true),
		high:  r.NewStyle().Foreground(colorOrange).Bold(true),
		crit:  r.NewStyle().Foreground(colorRed).Bold(true),
	}
}

// Name returns the notifier name.
func (c *ConsoleNotifier) Name() string {
	return "console"
}

// Send prints the report.
func (c *ConsoleNotifier) Send(ctx context.Context, report *model.Report) error {
	if _, err := fmt.Fprintln(c.w, c.render(report)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func (c *ConsoleNotifier) render(report *model.Report) string {
	s := report.Summary
	var sb strings.Builder

	row := func(label, value string) {
		sb.WriteString(c.label.Render(fmt.Sprintf("%-14s", label)))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	sb.WriteString(c.title.Render("GC SENTINEL REPORT"))
	sb.WriteString("\n\n")
	row("Resource", report.Resource)
	row("Dialect", report.Dialect)
	row("Run ID", report.RunID)
	row("Health", c.statusStyle(report.Health.Status).Render(
		fmt.Sprintf("%d/100 (%s)", report.Health.Score, report.Health.Status)))
	sb.WriteString("\n")

	row("Events", fmt.Sprintf("%d (young %d, full %d, concurrent %d)",
		s.Events, s.YoungCount, s.FullCount, s.ConcurrentCount))
	row("Running time", formatSeconds(s.RunningTime))
	if s.HasThroughput {
		row("Throughput", fmt.Sprintf("%.2f%%", s.Throughput))
	} else {
		row("Throughput", "n/a")
	}
	if s.Pause.N > 0 {
		row("Pauses", fmt.Sprintf("total %s, mean %s, max %s",
			formatSeconds(s.TotalPause), formatSeconds(s.Pause.Mean), formatSeconds(s.Pause.Max)))
	}
	if s.FullPause.N > 0 {
		row("Full pauses", fmt.Sprintf("mean %s, max %s",
			formatSeconds(s.FullPause.Mean), formatSeconds(s.FullPause.Max)))
	}
	if s.Concurrent.N > 0 {
		row("Concurrent", fmt.Sprintf("%d phases, total %s", s.Concurrent.N, formatSeconds(s.Concurrent.Sum)))
	}
	row("Footprint", formatKB(float64(s.Footprint)))
	if s.Freed.N > 0 {
		row("Freed", fmt.Sprintf("%s (%s/s)", formatKB(s.Freed.Sum), formatKB(s.FreedRate)))
	}
	if s.Promotion.N > 0 {
		row("Promotion", fmt.Sprintf("mean %s per young collection", formatKB(s.Promotion.Mean)))
	}
	if s.FirstDate != nil && s.LastDate != nil {
		row("Logged", fmt.Sprintf("%s ~ %s (%s)",
			s.FirstDate.Format("2006-01-02 15:04"), s.LastDate.Format("2006-01-02 15:04"),
			humanize.Time(*s.LastDate)))
	}

	if len(report.Health.Findings) > 0 {
		sb.WriteString("\n")
		sb.WriteString(c.title.Render("FINDINGS"))
		sb.WriteString("\n")
		for _, f := range report.Health.Findings {
			sb.WriteString(fmt.Sprintf("  %s %s\n",
				c.severityStyle(f.Severity).Render(fmt.Sprintf("[%s]", f.Severity)), f.Message))
		}
	}

	if report.Failures.Total > 0 {
		sb.WriteString("\n")
		kinds := make([]string, 0, len(report.Failures.ByKind))
		for k, n := range report.Failures.ByKind {
			kinds = append(kinds, fmt.Sprintf("%s %d", k, n))
		}
		sort.Strings(kinds)
		row("Skipped", fmt.Sprintf("%s records (%s)",
			humanize.Comma(int64(report.Failures.Total)), strings.Join(kinds, ", ")))
	}

	return c.panel.Render(strings.TrimRight(sb.String(), "\n"))
}

func (c *ConsoleNotifier) statusStyle(status string) lipgloss.Style {
	switch status {
	case "healthy":
		return c.ok
	case "warning":
		return c.warn
	case "degraded":
		return c.high
	default:
		return c.crit
	}
}

func (c *ConsoleNotifier) severityStyle(severity string) lipgloss.Style {
	switch severity {
	case "critical":
		return c.crit
	case "high":
		return c.high
	case "medium":
		return c.warn
	default:
		return c.label
	}
}

// formatKB renders a KB quantity with binary units.
func formatKB(kb float64) string {
	if kb < 0 {
		return "-" + humanize.IBytes(uint64(-kb*1024))
	}
	return humanize.IBytes(uint64(kb * 1024))
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second))
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Microsecond).String()
	}
}
