package model

import "time"

// Report is the published result of one full parse of one resource.
type Report struct {
	// RunID is a unique identifier for this parse.
	RunID string `json:"run_id"`

	// Resource is the file path or URL that was parsed.
	Resource string `json:"resource"`

	// Dialect is the log dialect the parser was selected for.
	Dialect string `json:"dialect"`

	// ParsedAt is when the parse completed.
	ParsedAt time.Time `json:"parsed_at"`

	// Duration is how long the parse took.
	Duration time.Duration `json:"duration"`

	// Summary contains the aggregate statistics.
	Summary Summary `json:"summary"`

	// Failures describes the records that could not be interpreted.
	Failures FailureSummary `json:"failures"`

	// Health rates the collector behaviour against the configured rules.
	Health Health `json:"health"`

	// Model gives read access to the individual events.
	Model *Model `json:"-"`
}

// FailureSummary counts recoverable parse failures by kind.
type FailureSummary struct {
	// Total is the number of failures of any kind.
	Total int `json:"total"`

	// ByKind maps a failure kind to its count.
	ByKind map[string]int `json:"by_kind,omitempty"`

	// Samples holds the first offending records.
	Samples []FailureSample `json:"samples,omitempty"`
}

// FailureSample is one retained offending record.
type FailureSample struct {
	Line   int    `json:"line"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Text   string `json:"text"`
}

// Health provides high-level health indicators.
type Health struct {
	// Score is an overall health score from 0-100.
	Score int `json:"score"`

	// Status is a human-readable status (e.g., "healthy", "warning", "critical").
	Status string `json:"status"`

	// Findings lists the rules that were violated.
	Findings []Finding `json:"findings,omitempty"`
}

// Finding is one violated health rule.
type Finding struct {
	// Rule names the rule (e.g., "throughput", "max_pause").
	Rule string `json:"rule"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Value is the observed value.
	Value float64 `json:"value"`

	// Threshold is the configured limit.
	Threshold float64 `json:"threshold"`

	// Severity indicates the finding severity ("low", "medium", "high", "critical").
	Severity string `json:"severity"`
}
