package parser

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// Kind classifies a recoverable per-record failure.
type Kind string

const (
	// KindMalformed is a record whose text could not be interpreted.
	KindMalformed Kind = "malformed"
	// KindUnknownType is a banner no registered type matches.
	KindUnknownType Kind = "unknown-type"
	// KindTruncated is a record cut off by a newer record or end of input.
	KindTruncated Kind = "truncated"
	// KindInconsistentPhase is a concurrent end or abort marker without a
	// matching start.
	KindInconsistentPhase Kind = "inconsistent-phase"
)

// DefaultMaxSamples is the number of offending records kept by default.
const DefaultMaxSamples = 20

// maxSampleText bounds the retained text of one sample.
const maxSampleText = 512

// LineError describes one record that was dropped or only partially used.
type LineError struct {
	Line   int
	Kind   Kind
	Reason string
	Text   string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Reason)
}

// Diagnostics is the sink for recoverable failures of one parse. Every
// failure is logged as a warning and counted by kind.
type Diagnostics struct {
	resource   string
	logger     *slog.Logger
	maxSamples int

	total   int
	counts  map[Kind]int
	samples []model.FailureSample
}

// NewDiagnostics returns a sink for resource. A nil logger uses
// slog.Default(); a negative maxSamples keeps no samples.
func NewDiagnostics(resource string, logger *slog.Logger, maxSamples int) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{
		resource:   resource,
		logger:     logger,
		maxSamples: maxSamples,
		counts:     make(map[Kind]int),
	}
}

// Report records one failure.
func (d *Diagnostics) Report(err *LineError) {
	d.total++
	d.counts[err.Kind]++

	d.logger.Warn("skipping gc record",
		"resource", d.resource,
		"line", err.Line,
		"kind", string(err.Kind),
		"reason", err.Reason,
		"text", err.Text,
	)

	if len(d.samples) < d.maxSamples {
		text := err.Text
		if len(text) > maxSampleText {
			cut := maxSampleText
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		d.samples = append(d.samples, model.FailureSample{
			Line:   err.Line,
			Kind:   string(err.Kind),
			Reason: err.Reason,
			Text:   text,
		})
	}
}

// Total returns the number of failures reported.
func (d *Diagnostics) Total() int {
	return d.total
}

// Count returns the number of failures of one kind.
func (d *Diagnostics) Count(kind Kind) int {
	return d.counts[kind]
}

// Summary returns a snapshot of the counters and retained samples.
func (d *Diagnostics) Summary() model.FailureSummary {
	s := model.FailureSummary{Total: d.total}
	if len(d.counts) > 0 {
		s.ByKind = make(map[string]int, len(d.counts))
		for k, n := range d.counts {
			s.ByKind[string(k)] = n
		}
	}
	if len(d.samples) > 0 {
		s.Samples = append([]model.FailureSample(nil), d.samples...)
	}
	return s
}
