package event

// PhaseBuilder holds a concurrent phase between its start and end markers.
type PhaseBuilder struct {
	key   string
	start *Event
}

// OpenPhase starts a phase from its start marker.
func OpenPhase(key string, start *Event) *PhaseBuilder {
	return &PhaseBuilder{key: key, start: start}
}

// Key returns the phase identity.
func (b *PhaseBuilder) Key() string { return b.key }

// Start returns the start marker.
func (b *PhaseBuilder) Start() *Event { return b.start }

// Close completes the phase with its end marker. The result is a new event
// positioned at the start marker, typed by the end marker, and lasting the
// end marker's duration, or the time between both markers when the end
// carries none.
func (b *PhaseBuilder) Close(end *Event) *Event {
	e := &Event{
		Timestamp:    b.start.Timestamp,
		HasTimestamp: b.start.HasTimestamp,
		Date:         b.start.Date,
		Type:         end.Type,
		Pause:        end.Pause,
		HasPause:     end.HasPause,
		Details:      end.Details,
		Line:         b.start.Line,
	}
	if !e.HasTimestamp && end.HasTimestamp {
		e.Timestamp, e.HasTimestamp = end.Timestamp, true
	}
	if e.Date.IsZero() {
		e.Date = end.Date
	}
	if e.Pause == 0 && !end.HasPause && b.start.HasTimestamp && end.HasTimestamp && end.Timestamp > b.start.Timestamp {
		e.Pause, e.HasPause = end.Timestamp-b.start.Timestamp, true
	}
	if end.HasMemory {
		e.SetMemory(end.PreUsed, end.PostUsed, end.Total)
	} else if b.start.HasMemory {
		e.SetMemory(b.start.PreUsed, b.start.PostUsed, b.start.Total)
	}
	return e
}

// Abandon returns the start marker as a zero duration phase. Used when the
// end marker never arrives.
func (b *PhaseBuilder) Abandon() *Event {
	e := *b.start
	e.Pause = 0
	return &e
}

// PhaseSet tracks the open phases of one parse, keyed by phase identity.
type PhaseSet struct {
	open  map[string]*PhaseBuilder
	order []string
}

// NewPhaseSet returns an empty set.
func NewPhaseSet() *PhaseSet {
	return &PhaseSet{open: make(map[string]*PhaseBuilder)}
}

// Len returns the number of open phases.
func (s *PhaseSet) Len() int { return len(s.open) }

// Handle routes e by its type's phase role using the type's phase key.
func (s *PhaseSet) Handle(e *Event) (out []*Event, consistent bool) {
	key := ""
	if e.Type != nil {
		key = e.Type.PhaseKey()
	}
	return s.HandleKeyed(e, key)
}

// HandleKeyed routes e by its type's phase role under an explicit key. It
// returns the events ready for the model and whether the marker matched the
// open phases. An end or abort without a start is returned as is and
// reported inconsistent; an abort then lasts 0.
func (s *PhaseSet) HandleKeyed(e *Event, key string) ([]*Event, bool) {
	if e.Type == nil {
		return []*Event{e}, true
	}
	switch e.Type.Role() {
	case RoleStart:
		return s.openPhase(key, e), true
	case RoleEnd:
		return s.closePhase(key, e)
	case RoleAbort:
		out, ok := s.closePhase(key, e)
		if !ok {
			e.Pause = 0
		}
		return out, ok
	case RolePaired:
		if !e.HasPause && e.Pause == 0 {
			return s.openPhase(key, e), true
		}
		return s.closePhase(key, e)
	default:
		return []*Event{e}, true
	}
}

func (s *PhaseSet) openPhase(key string, e *Event) []*Event {
	var out []*Event
	if prev, ok := s.open[key]; ok {
		out = append(out, prev.Abandon())
		s.remove(key)
	}
	s.open[key] = OpenPhase(key, e)
	s.order = append(s.order, key)
	return out
}

func (s *PhaseSet) closePhase(key string, e *Event) ([]*Event, bool) {
	b, ok := s.open[key]
	if !ok {
		return []*Event{e}, false
	}
	s.remove(key)
	return []*Event{b.Close(e)}, true
}

func (s *PhaseSet) remove(key string) {
	delete(s.open, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Drain abandons every open phase in opening order and empties the set.
func (s *PhaseSet) Drain() []*Event {
	out := make([]*Event, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.open[k].Abandon())
	}
	s.open = make(map[string]*PhaseBuilder)
	s.order = nil
	return out
}
