package model

import (
	"sort"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/stats"
)

// Summary is a serializable snapshot of a Model's aggregate statistics.
// Memory values are in KB, times in seconds.
type Summary struct {
	// Events is the number of events, details excluded.
	Events int `json:"events"`

	// YoungCount, FullCount and ConcurrentCount split Events by category.
	YoungCount      int `json:"young_count"`
	FullCount       int `json:"full_count"`
	ConcurrentCount int `json:"concurrent_count"`

	// Footprint is the largest heap capacity observed.
	Footprint int64 `json:"footprint_kb"`

	// RunningTime is the largest process relative timestamp.
	RunningTime float64 `json:"running_time"`

	// TotalPause is the summed stop-the-world time.
	TotalPause float64 `json:"total_pause"`

	// Throughput is the percentage of running time outside pauses. Only
	// meaningful when HasThroughput is set.
	Throughput    float64 `json:"throughput"`
	HasThroughput bool    `json:"has_throughput"`

	Pause         stats.Snapshot `json:"pause"`
	YoungPause    stats.Snapshot `json:"young_pause"`
	FullPause     stats.Snapshot `json:"full_pause"`
	PauseInterval stats.Snapshot `json:"pause_interval"`
	YoungInterval stats.Snapshot `json:"young_interval"`
	FullInterval  stats.Snapshot `json:"full_interval"`
	Freed         stats.Snapshot `json:"freed_kb"`
	PostGCUsed    stats.Snapshot `json:"post_gc_used_kb"`
	Promotion     stats.Snapshot `json:"promotion_kb"`
	Concurrent    stats.Snapshot `json:"concurrent_duration"`

	// FreedRate is the freed memory per second of running time.
	FreedRate float64 `json:"freed_kb_per_sec"`

	// PostGCSlope is the mean used memory slope of the runs between full
	// collections, in KB/s.
	PostGCSlope    float64 `json:"post_gc_slope"`
	HasPostGCSlope bool    `json:"has_post_gc_slope"`

	// PostFullGCSlope is the used memory slope after full collections.
	PostFullGCSlope    float64 `json:"post_full_gc_slope"`
	HasPostFullGCSlope bool    `json:"has_post_full_gc_slope"`

	// FirstDate and LastDate bound the wall clock dates, when logged.
	FirstDate *time.Time `json:"first_date,omitempty"`
	LastDate  *time.Time `json:"last_date,omitempty"`

	// PauseByType and ConcurrentByType are keyed by type name.
	PauseByType      []TypeStats `json:"pause_by_type,omitempty"`
	ConcurrentByType []TypeStats `json:"concurrent_by_type,omitempty"`
}

// TypeStats holds the duration statistics of one event type.
type TypeStats struct {
	Type  string         `json:"type"`
	Stats stats.Snapshot `json:"stats"`
}

// Summary returns the current aggregate statistics.
func (m *Model) Summary() Summary {
	s := Summary{
		Events:          len(m.events),
		YoungCount:      len(m.young),
		FullCount:       len(m.full),
		ConcurrentCount: len(m.concurrent),
		Footprint:       m.footprint,
		RunningTime:     m.runningTime,
		TotalPause:      m.pause.Sum(),
		Pause:           m.pause.Snapshot(),
		YoungPause:      m.youngPause.Snapshot(),
		FullPause:       m.fullPause.Snapshot(),
		PauseInterval:   m.pauseInterval.Snapshot(),
		YoungInterval:   m.youngInterval.Snapshot(),
		FullInterval:    m.fullInterval.Snapshot(),
		Freed:           m.freed.Snapshot(),
		PostGCUsed:      m.postGCUsed.Snapshot(),
		Promotion:       m.promotion.Snapshot(),
		Concurrent:      m.concDuration.Snapshot(),
	}

	s.Throughput, s.HasThroughput = m.Throughput()
	if m.runningTime > 0 {
		s.FreedRate = m.freed.Sum() / m.runningTime
	}
	if m.postGCSlope.N() > 0 {
		s.PostGCSlope, s.HasPostGCSlope = m.postGCSlope.Mean(), true
	}
	s.PostFullGCSlope, s.HasPostFullGCSlope = m.postFullGC.Slope()

	if !m.firstDate.IsZero() {
		first, last := m.firstDate, m.lastDate
		s.FirstDate, s.LastDate = &first, &last
	}

	s.PauseByType = typeStats(m.pauseByType)
	s.ConcurrentByType = typeStats(m.concurrentByType)
	return s
}

func typeStats(set map[string]*stats.Accumulator) []TypeStats {
	if len(set) == 0 {
		return nil
	}
	out := make([]TypeStats, 0, len(set))
	for name, a := range set {
		out = append(out, TypeStats{Type: name, Stats: a.Snapshot()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stats.Sum != out[j].Stats.Sum {
			return out[i].Stats.Sum > out[j].Stats.Sum
		}
		return out[i].Type < out[j].Type
	})
	return out
}
