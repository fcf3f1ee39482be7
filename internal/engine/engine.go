// Package engine runs one full parse of one GC log and rates the result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gc-sentinel/gc-sentinel/internal/config"
	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
	"github.com/gc-sentinel/gc-sentinel/internal/parser"
	"github.com/gc-sentinel/gc-sentinel/internal/reader"
)

// Scoring limits to prevent a single rule from dominating
const (
	MaxRuleDeduction    = 40 // Maximum points deducted for one violated rule
	MaxFailureDeduction = 5  // Maximum points deducted for unparseable records
)

// minFullForTrend is the number of full collections needed before the
// post-full-GC trend is trusted.
const minFullForTrend = 3

// Engine parses GC logs and scores the resulting models.
type Engine struct {
	cfg    *config.Config
	types  *event.TypeTable
	client *http.Client
	logger *slog.Logger
}

// New creates a new Engine with the given configuration. A nil logger uses
// slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := reader.HTTPTimeout
	if d, err := cfg.Parse.FetchTimeoutParsed(); err == nil && d > 0 {
		timeout = d
	}
	return &Engine{
		cfg:    cfg,
		types:  event.StandardTypes(),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Analyze opens resource, selects its parser, reads it to the end and
// returns the report. Malformed records are counted in the report; only a
// resource or stream failure is returned as an error.
func (e *Engine) Analyze(ctx context.Context, resource string) (*model.Report, error) {
	maxPause, err := e.cfg.Analysis.MaxPauseParsed()
	if err != nil {
		return nil, fmt.Errorf("parsing max pause: %w", err)
	}

	start := time.Now()
	src, err := reader.Open(ctx, resource, reader.Options{Client: e.client})
	if err != nil {
		return nil, fmt.Errorf("opening resource: %w", err)
	}
	defer src.Close()

	diag := parser.NewDiagnostics(resource, e.logger, e.cfg.Parse.MaxSamples)
	opts := parser.Options{
		Types:             e.types,
		Diagnostics:       diag,
		Logger:            e.logger,
		DetectWindow:      e.cfg.Parse.DetectWindow,
		FallbackToClassic: e.cfg.Parse.FallbackToClassic,
	}

	p, err := e.selectParser(src, opts)
	if err != nil {
		return nil, err
	}

	m, err := p.Read()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", resource, err)
	}

	report := &model.Report{
		RunID:    uuid.NewString(),
		Resource: resource,
		Dialect:  string(p.Dialect()),
		ParsedAt: time.Now(),
		Duration: time.Since(start),
		Summary:  m.Summary(),
		Failures: diag.Summary(),
		Model:    m,
	}
	report.Health = e.evaluate(report.Summary, report.Failures, maxPause)

	e.logger.Info("parsed gc log",
		"resource", resource,
		"run_id", report.RunID,
		"dialect", report.Dialect,
		"events", report.Summary.Events,
		"failures", report.Failures.Total,
		"health", report.Health.Status,
		"elapsed", report.Duration)
	return report, nil
}

func (e *Engine) selectParser(src *reader.Source, opts parser.Options) (parser.Parser, error) {
	if e.cfg.Parse.Dialect == "" {
		p, err := parser.Select(src, opts)
		if err != nil {
			return nil, fmt.Errorf("detecting format: %w", err)
		}
		return p, nil
	}
	d, err := parser.ParseDialect(e.cfg.Parse.Dialect)
	if err != nil {
		return nil, err
	}
	return parser.New(d, src, opts)
}

// evaluate applies the health rules to a summary.
func (e *Engine) evaluate(s model.Summary, failures model.FailureSummary, maxPause time.Duration) model.Health {
	var findings []model.Finding

	if minTp := e.cfg.Analysis.MinThroughput; s.HasThroughput && s.Throughput < minTp {
		findings = append(findings, model.Finding{
			Rule:      "throughput",
			Message:   fmt.Sprintf("%.2f%% of running time outside pauses, below %.2f%%", s.Throughput, minTp),
			Value:     s.Throughput,
			Threshold: minTp,
			Severity:  shortfallSeverity(minTp - s.Throughput),
		})
	}

	if limit := maxPause.Seconds(); limit > 0 && s.Pause.N > 0 && s.Pause.Max > limit {
		findings = append(findings, model.Finding{
			Rule:      "max_pause",
			Message:   fmt.Sprintf("longest pause %.3fs exceeds %.3fs", s.Pause.Max, limit),
			Value:     s.Pause.Max,
			Threshold: limit,
			Severity:  calculateSeverity((s.Pause.Max - limit) / limit * 100),
		})
	}

	if limit := e.cfg.Analysis.MaxFullGCRate; limit > 0 && s.FullCount > 0 && s.RunningTime > 0 {
		rate := float64(s.FullCount) / (s.RunningTime / 3600)
		if rate > limit {
			findings = append(findings, model.Finding{
				Rule:      "full_gc_rate",
				Message:   fmt.Sprintf("%.1f full collections per hour, above %.1f", rate, limit),
				Value:     rate,
				Threshold: limit,
				Severity:  calculateSeverity((rate - limit) / limit * 100),
			})
		}
	}

	if s.HasPostFullGCSlope && s.PostFullGCSlope > 0 && s.FullCount >= minFullForTrend {
		findings = append(findings, model.Finding{
			Rule:     "heap_growth",
			Message:  fmt.Sprintf("used memory after full collections grows by %.1f KB/s", s.PostFullGCSlope),
			Value:    s.PostFullGCSlope,
			Severity: "medium",
		})
	}

	if failures.Total > 0 {
		findings = append(findings, model.Finding{
			Rule:     "parse_failures",
			Message:  fmt.Sprintf("%d records could not be interpreted", failures.Total),
			Value:    float64(failures.Total),
			Severity: "low",
		})
	}

	// Most severe first
	sort.SliceStable(findings, func(i, j int) bool {
		return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
	})

	score := 100
	for _, f := range findings {
		d := deduction(f.Severity)
		if f.Rule == "parse_failures" && d > MaxFailureDeduction {
			d = MaxFailureDeduction
		}
		if d > MaxRuleDeduction {
			d = MaxRuleDeduction
		}
		score -= d
	}
	if score < 0 {
		score = 0
	}

	return model.Health{
		Score:    score,
		Status:   getHealthStatus(score),
		Findings: findings,
	}
}

// deduction is the score penalty of one finding.
func deduction(severity string) int {
	switch severity {
	case "critical":
		return 40
	case "high":
		return 20
	case "medium":
		return 10
	default:
		return 3
	}
}

func severityRank(severity string) int {
	switch severity {
	case "critical":
		return 3
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}

// calculateSeverity determines severity based on how far, in percent, a
// value overshoots its threshold.
func calculateSeverity(changePercent float64) string {
	switch {
	case changePercent >= 500:
		return "critical"
	case changePercent >= 200:
		return "high"
	case changePercent >= 100:
		return "medium"
	default:
		return "low"
	}
}

// shortfallSeverity rates a throughput shortfall in percentage points.
func shortfallSeverity(points float64) string {
	switch {
	case points >= 20:
		return "critical"
	case points >= 10:
		return "high"
	case points >= 5:
		return "medium"
	default:
		return "low"
	}
}

// getHealthStatus converts a health score to a status string.
func getHealthStatus(score int) string {
	switch {
	case score >= 90:
		return "healthy"
	case score >= 70:
		return "warning"
	case score >= 50:
		return "degraded"
	default:
		return "critical"
	}
}
