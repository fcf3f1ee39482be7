// Package model aggregates a stream of GC events into running statistics.
package model

import (
	"iter"
	"slices"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/stats"
)

// Category is the class an event is counted in. Every event belongs to
// exactly one category.
type Category int

const (
	CategoryYoung Category = iota
	CategoryFull
	CategoryConcurrent
)

func (c Category) String() string {
	switch c {
	case CategoryFull:
		return "full"
	case CategoryConcurrent:
		return "concurrent"
	default:
		return "young"
	}
}

// Classify returns the category of e.
func Classify(e *event.Event) Category {
	switch {
	case e.IsConcurrent():
		return CategoryConcurrent
	case e.IsFull():
		return CategoryFull
	default:
		return CategoryYoung
	}
}

// Model owns the ordered events of one resource and the statistics derived
// from them. It is built by a single goroutine and read-only once Finish
// has been called.
type Model struct {
	events     []*event.Event
	young      []*event.Event
	full       []*event.Event
	concurrent []*event.Event
	currentRun []*event.Event

	pause         stats.Accumulator
	youngPause    stats.Accumulator
	fullPause     stats.Accumulator
	pauseInterval stats.Accumulator
	youngInterval stats.Accumulator
	fullInterval  stats.Accumulator
	freed         stats.Accumulator
	youngFreed    stats.Accumulator
	fullFreed     stats.Accumulator
	postGCUsed    stats.Accumulator
	promotion     stats.Accumulator
	concDuration  stats.Accumulator

	pauseByType      map[string]*stats.Accumulator
	concurrentByType map[string]*stats.Accumulator

	// post-collection used memory of the young collections since the last
	// full collection
	run stats.RegressionLine
	// slopes of closed runs, KB per second
	postGCSlope stats.Accumulator
	postFullGC  stats.RegressionLine
	heapTrend   stats.RegressionLine

	footprint   int64
	runningTime float64
	firstDate   time.Time
	lastDate    time.Time

	lastPauseTs float64
	lastYoungTs float64
	lastFullTs  float64
	seenPause   bool
	seenYoung   bool
	seenFull    bool
}

// New returns an empty model.
func New() *Model {
	return &Model{
		pauseByType:      make(map[string]*stats.Accumulator),
		concurrentByType: make(map[string]*stats.Accumulator),
	}
}

// Add classifies e and folds it into the statistics.
func (m *Model) Add(e *event.Event) {
	m.events = append(m.events, e)

	if e.HasTimestamp && e.Timestamp > m.runningTime {
		m.runningTime = e.Timestamp
	}
	if e.HasDate() {
		if m.firstDate.IsZero() || e.Date.Before(m.firstDate) {
			m.firstDate = e.Date
		}
		if e.Date.After(m.lastDate) {
			m.lastDate = e.Date
		}
	}
	if e.HasMemory && e.Total > m.footprint {
		m.footprint = e.Total
	}

	switch Classify(e) {
	case CategoryConcurrent:
		m.concurrent = append(m.concurrent, e)
		m.concDuration.Add(e.Pause)
		byType(m.concurrentByType, e.TypeName()).Add(e.Pause)
	case CategoryFull:
		m.full = append(m.full, e)
		m.addPause(e)
		m.fullPause.Add(e.Pause)
		if e.HasTimestamp {
			if m.seenFull {
				m.fullInterval.Add(e.Timestamp - m.lastFullTs)
			}
			m.lastFullTs, m.seenFull = e.Timestamp, true
		}
		if e.HasMemory {
			m.fullFreed.Add(float64(e.Freed()))
			if e.HasTimestamp {
				m.postFullGC.AddPoint(e.Timestamp, float64(e.PostUsed))
			}
		}
		m.flushRun()
		m.currentRun = nil
	default:
		m.young = append(m.young, e)
		m.currentRun = append(m.currentRun, e)
		m.addPause(e)
		m.youngPause.Add(e.Pause)
		if e.HasTimestamp {
			if m.seenYoung {
				m.youngInterval.Add(e.Timestamp - m.lastYoungTs)
			}
			m.lastYoungTs, m.seenYoung = e.Timestamp, true
		}
		if e.HasMemory {
			m.youngFreed.Add(float64(e.Freed()))
			if e.HasTimestamp {
				m.run.AddPoint(e.Timestamp, float64(e.PostUsed))
			}
			if d := e.YoungDetail(); d != nil && d.HasMemory {
				m.promotion.Add(float64(d.Freed() - e.Freed()))
			}
		}
	}
}

func (m *Model) addPause(e *event.Event) {
	m.pause.Add(e.Pause)
	byType(m.pauseByType, e.TypeName()).Add(e.Pause)
	if e.HasTimestamp {
		if m.seenPause {
			m.pauseInterval.Add(e.Timestamp - m.lastPauseTs)
		}
		m.lastPauseTs, m.seenPause = e.Timestamp, true
	}
	if e.HasMemory {
		m.freed.Add(float64(e.Freed()))
		m.postGCUsed.Add(float64(e.PostUsed))
		if e.HasTimestamp {
			m.heapTrend.AddPoint(e.Timestamp, float64(e.PostUsed))
		}
	}
}

// flushRun moves the slope of the current run into the slope accumulator
// when the run has one, and starts a new run.
func (m *Model) flushRun() {
	if slope, ok := m.run.Slope(); ok {
		m.postGCSlope.Add(slope)
	}
	m.run.Reset()
}

// Finish closes the run still open at the end of the stream.
func (m *Model) Finish() {
	m.flushRun()
}

func byType(set map[string]*stats.Accumulator, name string) *stats.Accumulator {
	a, ok := set[name]
	if !ok {
		a = &stats.Accumulator{}
		set[name] = a
	}
	return a
}

// Size returns the number of events.
func (m *Model) Size() int {
	return len(m.events)
}

// Event returns the i-th event.
func (m *Model) Event(i int) *event.Event {
	return m.events[i]
}

// All iterates over every event in log order.
func (m *Model) All() iter.Seq[*event.Event] {
	return slices.Values(m.events)
}

// Young returns the events classified young.
func (m *Model) Young() []*event.Event { return slices.Clone(m.young) }

// Full returns the events classified full.
func (m *Model) Full() []*event.Event { return slices.Clone(m.full) }

// Concurrent returns the concurrent phase events.
func (m *Model) Concurrent() []*event.Event { return slices.Clone(m.concurrent) }

// CurrentRun returns the young events logged after the last full event.
func (m *Model) CurrentRun() []*event.Event { return slices.Clone(m.currentRun) }

// Footprint returns the largest heap capacity seen, in KB.
func (m *Model) Footprint() int64 { return m.footprint }

// RunningTime returns the largest timestamp seen, in seconds.
func (m *Model) RunningTime() float64 { return m.runningTime }

// FirstDate returns the earliest wall clock date, zero when none was logged.
func (m *Model) FirstDate() time.Time { return m.firstDate }

// LastDate returns the latest wall clock date, zero when none was logged.
func (m *Model) LastDate() time.Time { return m.lastDate }

// Pause returns the stop-the-world pause statistics.
func (m *Model) Pause() *stats.Accumulator { return &m.pause }

// YoungPause returns the pause statistics of young events.
func (m *Model) YoungPause() *stats.Accumulator { return &m.youngPause }

// FullPause returns the pause statistics of full events.
func (m *Model) FullPause() *stats.Accumulator { return &m.fullPause }

// PauseInterval returns the gaps between consecutive pauses.
func (m *Model) PauseInterval() *stats.Accumulator { return &m.pauseInterval }

// YoungInterval returns the gaps between consecutive young events.
func (m *Model) YoungInterval() *stats.Accumulator { return &m.youngInterval }

// FullInterval returns the gaps between consecutive full events.
func (m *Model) FullInterval() *stats.Accumulator { return &m.fullInterval }

// Freed returns the memory freed per pause, in KB.
func (m *Model) Freed() *stats.Accumulator { return &m.freed }

// PostGCUsed returns the used memory after each pause, in KB.
func (m *Model) PostGCUsed() *stats.Accumulator { return &m.postGCUsed }

// Promotion returns the memory promoted to the tenured generation per young
// collection, in KB.
func (m *Model) Promotion() *stats.Accumulator { return &m.promotion }

// ConcurrentDuration returns the durations of concurrent phases.
func (m *Model) ConcurrentDuration() *stats.Accumulator { return &m.concDuration }

// PostGCSlope returns the used memory slopes, in KB/s, of the closed runs
// between full collections.
func (m *Model) PostGCSlope() *stats.Accumulator { return &m.postGCSlope }

// PostFullGCLine returns the trend of used memory after full collections.
func (m *Model) PostFullGCLine() *stats.RegressionLine { return &m.postFullGC }

// PauseByType returns the pause statistics of one type.
func (m *Model) PauseByType(name string) (*stats.Accumulator, bool) {
	a, ok := m.pauseByType[name]
	return a, ok
}

// TotalPause returns the summed stop-the-world time in seconds.
func (m *Model) TotalPause() float64 {
	return m.pause.Sum()
}

// Throughput returns the percentage of running time not spent in pauses.
// ok is false while the running time is 0.
func (m *Model) Throughput() (float64, bool) {
	if m.runningTime <= 0 {
		return 0, false
	}
	return 100 * (m.runningTime - m.pause.Sum()) / m.runningTime, true
}
