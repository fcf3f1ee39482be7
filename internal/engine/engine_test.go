package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/config"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
	"github.com/gc-sentinel/gc-sentinel/internal/parser"
	"github.com/gc-sentinel/gc-sentinel/internal/reader"
	"github.com/gc-sentinel/gc-sentinel/internal/stats"
)

const classicLog = `1.000: [GC 1.000: [DefNew: 4416K->512K(4928K), 0.0100 secs] 4416K->1000K(15872K), 0.0110 secs]
2.000: [GC 2.000: [DefNew: 4928K->512K(4928K), 0.0090 secs] 5416K->1500K(15872K), 0.0095 secs]
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func writeLog(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyze(t *testing.T) {
	path := writeLog(t, "gc.log", classicLog)
	eng := New(config.Default(), quietLogger())

	report, err := eng.Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.Resource != path {
		t.Errorf("Resource = %q, want %q", report.Resource, path)
	}
	if report.Dialect != "classic" {
		t.Errorf("Dialect = %q, want classic", report.Dialect)
	}
	if report.Summary.Events != 2 || report.Summary.YoungCount != 2 {
		t.Errorf("Summary events=%d young=%d, want 2 and 2", report.Summary.Events, report.Summary.YoungCount)
	}
	if report.Model == nil || report.Model.Size() != 2 {
		t.Error("Model not attached to report")
	}
	if report.Health.Status != "healthy" || report.Health.Score != 100 {
		t.Errorf("Health = %+v, want healthy 100", report.Health)
	}
}

func TestAnalyze_RunIDsDiffer(t *testing.T) {
	path := writeLog(t, "gc.log", classicLog)
	eng := New(config.Default(), quietLogger())

	a, err := eng.Analyze(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := eng.Analyze(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if a.RunID == b.RunID {
		t.Errorf("RunID repeated: %s", a.RunID)
	}
	if a.Summary.TotalPause != b.Summary.TotalPause {
		t.Errorf("TotalPause differs between runs: %v vs %v", a.Summary.TotalPause, b.Summary.TotalPause)
	}
}

func TestAnalyze_Failures(t *testing.T) {
	eng := New(config.Default(), quietLogger())

	t.Run("missing resource", func(t *testing.T) {
		_, err := eng.Analyze(context.Background(), filepath.Join(t.TempDir(), "none.log"))
		var re *reader.ResourceError
		if !errors.As(err, &re) {
			t.Fatalf("Analyze() error = %v, want *reader.ResourceError", err)
		}
	})

	t.Run("unrecognized", func(t *testing.T) {
		path := writeLog(t, "notes.txt", "nothing to see here\n")
		_, err := eng.Analyze(context.Background(), path)
		if !errors.Is(err, parser.ErrUnrecognizedFormat) {
			t.Fatalf("Analyze() error = %v, want ErrUnrecognizedFormat", err)
		}
	})

	t.Run("invalid threshold", func(t *testing.T) {
		cfg := config.Default()
		cfg.Analysis.MaxPause = "soon"
		path := writeLog(t, "gc.log", classicLog)
		if _, err := New(cfg, quietLogger()).Analyze(context.Background(), path); err == nil {
			t.Error("Analyze() expected error for an invalid max pause")
		}
	})
}

func TestAnalyze_ForcedDialect(t *testing.T) {
	cfg := config.Default()
	cfg.Parse.Dialect = "cms"
	path := writeLog(t, "gc.log", classicLog)

	report, err := New(cfg, quietLogger()).Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report.Dialect != "cms" {
		t.Errorf("Dialect = %q, want the forced cms", report.Dialect)
	}
	if report.Summary.Events != 2 {
		t.Errorf("Events = %d, want 2", report.Summary.Events)
	}
}

func TestAnalyze_CountsMalformed(t *testing.T) {
	path := writeLog(t, "gc.log", classicLog+"3.0: [GC 3.0: [DefNew: 100K->50K(200K), 0.01 secs]\n")
	report, err := New(config.Default(), quietLogger()).Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if report.Failures.Total == 0 {
		t.Fatal("Failures.Total = 0, want the broken record counted")
	}
	found := false
	for _, f := range report.Health.Findings {
		if f.Rule == "parse_failures" {
			found = true
		}
	}
	if !found {
		t.Errorf("Findings = %+v, want parse_failures", report.Health.Findings)
	}
}

func TestEvaluate(t *testing.T) {
	eng := New(config.Default(), quietLogger())
	maxPause := 500 * time.Millisecond

	t.Run("healthy", func(t *testing.T) {
		s := model.Summary{
			HasThroughput: true,
			Throughput:    99.5,
			RunningTime:   3600,
			Pause:         stats.Snapshot{N: 10, Max: 0.1},
		}
		h := eng.evaluate(s, model.FailureSummary{}, maxPause)
		if h.Score != 100 || h.Status != "healthy" || len(h.Findings) != 0 {
			t.Errorf("Health = %+v, want healthy with no findings", h)
		}
	})

	t.Run("long pause and low throughput", func(t *testing.T) {
		s := model.Summary{
			HasThroughput: true,
			Throughput:    70, // 25 points short: critical
			RunningTime:   3600,
			Pause:         stats.Snapshot{N: 10, Max: 1.25}, // 150% over: medium
		}
		h := eng.evaluate(s, model.FailureSummary{}, maxPause)
		if len(h.Findings) != 2 {
			t.Fatalf("Findings = %+v, want 2", h.Findings)
		}
		if h.Findings[0].Rule != "throughput" || h.Findings[0].Severity != "critical" {
			t.Errorf("first finding = %+v, want critical throughput", h.Findings[0])
		}
		if h.Findings[1].Rule != "max_pause" || h.Findings[1].Severity != "medium" {
			t.Errorf("second finding = %+v, want medium max_pause", h.Findings[1])
		}
		// 100 - 40 - 10
		if h.Score != 50 || h.Status != "degraded" {
			t.Errorf("Score = %d (%s), want 50 degraded", h.Score, h.Status)
		}
	})

	t.Run("full gc rate and heap growth", func(t *testing.T) {
		s := model.Summary{
			FullCount:          12,
			RunningTime:        3600, // 12 per hour against 6: 100% over
			HasPostFullGCSlope: true,
			PostFullGCSlope:    4.5,
		}
		h := eng.evaluate(s, model.FailureSummary{}, maxPause)
		rules := map[string]string{}
		for _, f := range h.Findings {
			rules[f.Rule] = f.Severity
		}
		if rules["full_gc_rate"] != "medium" || rules["heap_growth"] != "medium" {
			t.Errorf("Findings = %+v", h.Findings)
		}
		if h.Score != 80 {
			t.Errorf("Score = %d, want 80", h.Score)
		}
	})

	t.Run("parse failures", func(t *testing.T) {
		h := eng.evaluate(model.Summary{}, model.FailureSummary{Total: 1000}, maxPause)
		if h.Score != 100-3 {
			t.Errorf("Score = %d, want 97", h.Score)
		}
		if !strings.Contains(h.Findings[0].Message, "1000") {
			t.Errorf("Message = %q", h.Findings[0].Message)
		}
	})

	t.Run("score floor at 0", func(t *testing.T) {
		s := model.Summary{
			HasThroughput:      true,
			Throughput:         10,
			RunningTime:        60,
			FullCount:          60,
			Pause:              stats.Snapshot{N: 60, Max: 30},
			HasPostFullGCSlope: true,
			PostFullGCSlope:    100,
		}
		h := eng.evaluate(s, model.FailureSummary{Total: 5}, maxPause)
		if h.Score < 0 {
			t.Errorf("Score = %d, should not be negative", h.Score)
		}
		if h.Status != "critical" {
			t.Errorf("Status = %s, want critical", h.Status)
		}
	})
}

func TestCalculateSeverity(t *testing.T) {
	tests := []struct {
		changePercent float64
		expected      string
	}{
		{600, "critical"},
		{500, "critical"},
		{300, "high"},
		{200, "high"},
		{150, "medium"},
		{100, "medium"},
		{75, "low"},
		{0, "low"},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			result := calculateSeverity(tt.changePercent)
			if result != tt.expected {
				t.Errorf("calculateSeverity(%f) = %s, want %s", tt.changePercent, result, tt.expected)
			}
		})
	}
}

func TestShortfallSeverity(t *testing.T) {
	tests := []struct {
		points   float64
		expected string
	}{
		{25, "critical"},
		{10, "high"},
		{5, "medium"},
		{0.5, "low"},
	}
	for _, tt := range tests {
		if got := shortfallSeverity(tt.points); got != tt.expected {
			t.Errorf("shortfallSeverity(%v) = %s, want %s", tt.points, got, tt.expected)
		}
	}
}

func TestGetHealthStatus(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{100, "healthy"},
		{90, "healthy"},
		{89, "warning"},
		{70, "warning"},
		{69, "degraded"},
		{50, "degraded"},
		{49, "critical"},
		{0, "critical"},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			result := getHealthStatus(tt.score)
			if result != tt.expected {
				t.Errorf("getHealthStatus(%d) = %s, want %s", tt.score, result, tt.expected)
			}
		})
	}
}
