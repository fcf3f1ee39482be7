package event

import "time"

// Event is one garbage collection record. Memory values are in KB and
// durations in seconds. Parsers build an Event over one logical record and
// must not change it after handing it to a model.
type Event struct {
	// Timestamp is the process relative time in seconds. Only meaningful
	// when HasTimestamp is set.
	Timestamp    float64
	HasTimestamp bool
	// Date is the wall clock time of the record, zero when absent.
	Date time.Time
	// Type is nil when the banner could not be resolved.
	Type *Type

	PreUsed   int64
	PostUsed  int64
	Total     int64
	HasMemory bool

	// Pause is the stop-the-world duration, or the wall duration of a
	// concurrent phase.
	Pause float64
	// HasPause is set when the record printed a duration, even a zero one.
	// Phases logged twice under one banner close on it.
	HasPause bool

	Details []*Event

	// Line is the physical line the record started on, 0 when unknown.
	Line int
}

// SetMemory sets the memory triple.
func (e *Event) SetMemory(pre, post, total int64) {
	e.PreUsed, e.PostUsed, e.Total = pre, post, total
	e.HasMemory = true
}

// AddDetail appends a nested detail event.
func (e *Event) AddDetail(d *Event) {
	e.Details = append(e.Details, d)
}

// HasDate reports whether the record carried a wall clock date.
func (e *Event) HasDate() bool {
	return !e.Date.IsZero()
}

// TypeName returns the type name, or "unknown".
func (e *Event) TypeName() string {
	if e.Type == nil {
		return "unknown"
	}
	return e.Type.Name()
}

// Generation returns the effective generation: the widest of the event's own
// generation and its details' under YOUNG < TENURED < ALL. PERM details never
// widen the result.
func (e *Event) Generation() Generation {
	g := GenOther
	if e.Type != nil {
		g = e.Type.Generation()
	}
	for _, d := range e.Details {
		dg := d.Generation()
		if r := widthRank(dg); r >= 0 && r > widthRank(g) {
			g = dg
		}
	}
	return g
}

// IsConcurrent reports whether the event is a concurrent phase.
func (e *Event) IsConcurrent() bool {
	return e.Type != nil && e.Type.IsConcurrent()
}

// IsStopTheWorld reports whether the application was suspended.
func (e *Event) IsStopTheWorld() bool {
	return !e.IsConcurrent()
}

// HasTenuredDetail reports whether a detail collected the tenured generation.
func (e *Event) HasTenuredDetail() bool {
	for _, d := range e.Details {
		if d.Type != nil && d.Type.Generation() == GenTenured {
			return true
		}
	}
	return false
}

// IsFull reports whether a stop-the-world event collected tenured or all
// generations.
func (e *Event) IsFull() bool {
	if e.IsConcurrent() {
		return false
	}
	switch e.Generation() {
	case GenTenured, GenAll:
		return true
	}
	return e.HasTenuredDetail()
}

// Freed returns PreUsed - PostUsed, or 0 without memory information.
func (e *Event) Freed() int64 {
	if !e.HasMemory {
		return 0
	}
	return e.PreUsed - e.PostUsed
}

// Detail returns the first detail of generation g.
func (e *Event) Detail(g Generation) *Event {
	for _, d := range e.Details {
		if d.Type != nil && d.Type.Generation() == g {
			return d
		}
	}
	return nil
}

// YoungDetail returns the first young generation detail.
func (e *Event) YoungDetail() *Event {
	return e.Detail(GenYoung)
}
