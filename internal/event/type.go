// Package event defines the canonical garbage collection event model shared
// by every log dialect.
package event

// Generation is the heap region a collection targets.
type Generation int

const (
	GenYoung Generation = iota
	GenTenured
	GenPerm
	GenAll
	GenOther
)

func (g Generation) String() string {
	switch g {
	case GenYoung:
		return "young"
	case GenTenured:
		return "tenured"
	case GenPerm:
		return "perm"
	case GenAll:
		return "all"
	default:
		return "other"
	}
}

// widthRank orders generations for widening. PERM and OTHER never widen.
func widthRank(g Generation) int {
	switch g {
	case GenYoung:
		return 0
	case GenTenured:
		return 1
	case GenAll:
		return 2
	default:
		return -1
	}
}

// Concurrency tells whether the application runs during the event.
type Concurrency int

const (
	Serial Concurrency = iota
	Concurrent
)

func (c Concurrency) String() string {
	if c == Concurrent {
		return "concurrent"
	}
	return "serial"
}

// Pattern is the textual shape a record of a type is expected to have.
type Pattern int

const (
	// PatternMarker carries neither memory nor duration.
	PatternMarker Pattern = iota
	// PatternPause carries a duration only.
	PatternPause
	// PatternMemory carries a memory triple only.
	PatternMemory
	// PatternMemoryPause carries a memory triple and a duration.
	PatternMemoryPause
)

// PhaseRole describes how a concurrent type takes part in a phase.
type PhaseRole int

const (
	// RoleNone is used by stop-the-world types.
	RoleNone PhaseRole = iota
	// RoleStart opens a phase.
	RoleStart
	// RoleEnd closes a phase opened by a RoleStart type with the same key.
	RoleEnd
	// RoleAbort closes a phase without completing it.
	RoleAbort
	// RolePaired opens a phase when the record prints no duration and closes
	// it when it prints one, zero included. Used by dialects that print the same banner twice.
	RolePaired
	// RoleInstant is a complete phase reported on a single record.
	RoleInstant
)

// Type is an immutable classification keyed by its canonical name.
type Type struct {
	name        string
	generation  Generation
	concurrency Concurrency
	pattern     Pattern
	role        PhaseRole
	phaseKey    string
}

// Name returns the canonical name.
func (t *Type) Name() string { return t.name }

// Generation returns the generation the type collects.
func (t *Type) Generation() Generation { return t.generation }

// Concurrency returns the concurrency mode.
func (t *Type) Concurrency() Concurrency { return t.concurrency }

// Pattern returns the expected record shape.
func (t *Type) Pattern() Pattern { return t.pattern }

// Role returns the phase role of a concurrent type.
func (t *Type) Role() PhaseRole { return t.role }

// PhaseKey returns the identity shared by the start and end markers of one
// phase. Empty for stop-the-world types.
func (t *Type) PhaseKey() string { return t.phaseKey }

// IsConcurrent reports whether the type describes a concurrent phase.
func (t *Type) IsConcurrent() bool { return t.concurrency == Concurrent }

func (t *Type) String() string { return t.name }

// TypeDef describes one type to register in a TypeTable.
type TypeDef struct {
	Name        string
	Generation  Generation
	Concurrency Concurrency
	Pattern     Pattern
	Role        PhaseRole
	// PhaseKey defaults to Name for concurrent types.
	PhaseKey string
}
