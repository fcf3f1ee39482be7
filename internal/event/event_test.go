package event

import (
	"testing"
)

func mustType(t *testing.T, table *TypeTable, name string) *Type {
	t.Helper()
	typ, ok := table.Lookup(name)
	if !ok {
		t.Fatalf("type %q not registered", name)
	}
	return typ
}

func TestNewTypeTable_Duplicate(t *testing.T) {
	_, err := NewTypeTable([]TypeDef{
		{Name: "GC"},
		{Name: "GC"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestNewTypeTable_PhaseKeyDefault(t *testing.T) {
	table, err := NewTypeTable([]TypeDef{
		{Name: "Concurrent Mark", Concurrency: Concurrent, Role: RolePaired},
		{Name: "GC", Concurrency: Serial},
	})
	if err != nil {
		t.Fatalf("NewTypeTable() error = %v", err)
	}
	if got := mustType(t, table, "Concurrent Mark").PhaseKey(); got != "Concurrent Mark" {
		t.Errorf("PhaseKey() = %q, want %q", got, "Concurrent Mark")
	}
	if got := mustType(t, table, "GC").PhaseKey(); got != "" {
		t.Errorf("PhaseKey() = %q, want empty", got)
	}
}

func TestStandardTypes_Fresh(t *testing.T) {
	a := StandardTypes()
	b := StandardTypes()
	ta, _ := a.Lookup("GC")
	tb, _ := b.Lookup("GC")
	if ta == tb {
		t.Error("each table should own its instances")
	}
	again, _ := a.Lookup("GC")
	if ta != again {
		t.Error("a table must return one instance per name")
	}
}

func TestResolve(t *testing.T) {
	table := StandardTypes()

	tests := []struct {
		text string
		want string
	}{
		{"GC", "GC"},
		{"Full GC", "Full GC"},
		{"  Full   GC ", "Full GC"},
		{"1 CMS-remark", "CMS-remark"},
		{"full gc", "Full GC"},
		{"CMS-concurrent-mark:", "CMS-concurrent-mark"},
		{"GC pause (young) (to-space overflow)", "GC pause (young)"},
		{"GC pause (G1 Evacuation Pause) (young) (to-space exhausted)", "GC pause (G1 Evacuation Pause) (young)"},
		{"Full GC (Ergonomics)", "Full GC"},
		{"GC (CMS Initial Mark)", "GC"},
		{"Pause Young (Normal) (G1 Evacuation Pause)", "Pause Young (Normal)"},
		{"Pause Full (System.gc())", "Pause Full"},
		{"Pause Init Mark (process weakrefs)", "Pause Init Mark"},
		{"Concurrent marking (unload classes)", "Concurrent marking"},
		{"Pause Degenerated GC (Mark)", "Pause Degenerated GC"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := table.Resolve(tt.text)
			if !ok {
				t.Fatalf("Resolve(%q) found nothing, want %q", tt.text, tt.want)
			}
			if got.Name() != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.text, got.Name(), tt.want)
			}
		})
	}
}

func TestResolve_Unknown(t *testing.T) {
	table := StandardTypes()
	for _, text := range []string{"", "Something odd", "(young)"} {
		if typ, ok := table.Resolve(text); ok {
			t.Errorf("Resolve(%q) = %q, want no match", text, typ.Name())
		}
	}
}

func TestEvent_Generation(t *testing.T) {
	table := StandardTypes()
	gc := mustType(t, table, "GC")
	defNew := mustType(t, table, "DefNew")
	tenured := mustType(t, table, "Tenured")
	perm := mustType(t, table, "Perm")
	fullGC := mustType(t, table, "Full GC")

	tests := []struct {
		name     string
		details  []*Type
		wantGen  Generation
		wantFull bool
	}{
		{"no details", nil, GenYoung, false},
		{"young detail", []*Type{defNew}, GenYoung, false},
		{"tenured detail widens", []*Type{defNew, tenured}, GenTenured, true},
		{"perm does not widen", []*Type{defNew, perm}, GenYoung, false},
		{"all detail widens", []*Type{fullGC}, GenAll, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{Type: gc}
			for _, d := range tt.details {
				e.AddDetail(&Event{Type: d})
			}
			if got := e.Generation(); got != tt.wantGen {
				t.Errorf("Generation() = %v, want %v", got, tt.wantGen)
			}
			if got := e.IsFull(); got != tt.wantFull {
				t.Errorf("IsFull() = %v, want %v", got, tt.wantFull)
			}
		})
	}
}

func TestEvent_ConcurrentIsNeverFull(t *testing.T) {
	table := StandardTypes()
	e := &Event{Type: mustType(t, table, "CMS-concurrent-mark")}
	if !e.IsConcurrent() || e.IsStopTheWorld() {
		t.Error("concurrent phase classified as stop-the-world")
	}
	if e.IsFull() {
		t.Error("concurrent phase must not be full")
	}
}

func TestEvent_Freed(t *testing.T) {
	e := &Event{}
	if e.Freed() != 0 {
		t.Errorf("Freed() = %d, want 0 without memory", e.Freed())
	}
	e.SetMemory(8968, 8230, 10912)
	if e.Freed() != 738 {
		t.Errorf("Freed() = %d, want 738", e.Freed())
	}
}

func TestPhaseSet(t *testing.T) {
	table := StandardTypes()
	start := mustType(t, table, "CMS-concurrent-mark-start")
	end := mustType(t, table, "CMS-concurrent-mark")
	abort := mustType(t, table, "GC concurrent-mark-abort")
	paired := mustType(t, table, "Concurrent Mark")

	t.Run("start then end", func(t *testing.T) {
		s := NewPhaseSet()
		out, ok := s.Handle(&Event{Type: start, Timestamp: 1, HasTimestamp: true})
		if !ok || len(out) != 0 {
			t.Fatalf("start: out=%d ok=%v, want 0/true", len(out), ok)
		}
		out, ok = s.Handle(&Event{Type: end, Timestamp: 1.5, HasTimestamp: true, Pause: 0.4})
		if !ok || len(out) != 1 {
			t.Fatalf("end: out=%d ok=%v, want 1/true", len(out), ok)
		}
		if out[0].Timestamp != 1 || out[0].Pause != 0.4 {
			t.Errorf("phase = ts %f pause %f, want 1/0.4", out[0].Timestamp, out[0].Pause)
		}
		if out[0].Type != end {
			t.Errorf("Type = %v, want %v", out[0].Type, end)
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
	})

	t.Run("end without duration", func(t *testing.T) {
		s := NewPhaseSet()
		s.Handle(&Event{Type: start, Timestamp: 2, HasTimestamp: true})
		out, _ := s.Handle(&Event{Type: end, Timestamp: 2.25, HasTimestamp: true})
		if out[0].Pause != 0.25 {
			t.Errorf("Pause = %f, want 0.25", out[0].Pause)
		}
	})

	t.Run("unmatched end", func(t *testing.T) {
		s := NewPhaseSet()
		out, ok := s.Handle(&Event{Type: end, Timestamp: 3, HasTimestamp: true, Pause: 0.1})
		if ok {
			t.Error("unmatched end should be inconsistent")
		}
		if len(out) != 1 || out[0].Pause != 0.1 {
			t.Errorf("unmatched end should be kept as best effort")
		}
	})

	t.Run("unmatched abort", func(t *testing.T) {
		s := NewPhaseSet()
		out, ok := s.Handle(&Event{Type: abort, Timestamp: 3, HasTimestamp: true})
		if ok {
			t.Error("unmatched abort should be inconsistent")
		}
		if len(out) != 1 || out[0].Pause != 0 {
			t.Errorf("unmatched abort should yield one zero duration event")
		}
	})

	t.Run("drain", func(t *testing.T) {
		s := NewPhaseSet()
		s.Handle(&Event{Type: start, Timestamp: 4, HasTimestamp: true})
		out := s.Drain()
		if len(out) != 1 || out[0].Pause != 0 || out[0].Type != start {
			t.Fatalf("Drain() should return the open start with zero duration")
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d after Drain, want 0", s.Len())
		}
	})

	t.Run("paired keyed", func(t *testing.T) {
		s := NewPhaseSet()
		s.HandleKeyed(&Event{Type: paired, Timestamp: 1, HasTimestamp: true}, "7:Concurrent Mark")
		s.HandleKeyed(&Event{Type: paired, Timestamp: 1.1, HasTimestamp: true}, "8:Concurrent Mark")
		out, ok := s.HandleKeyed(&Event{Type: paired, Timestamp: 2, HasTimestamp: true, Pause: 0.9, HasPause: true}, "7:Concurrent Mark")
		if !ok || len(out) != 1 || out[0].Timestamp != 1 {
			t.Fatalf("paired close should match the phase with the same key")
		}
		if s.Len() != 1 {
			t.Errorf("Len() = %d, want 1", s.Len())
		}
	})

	t.Run("paired zero duration closes", func(t *testing.T) {
		s := NewPhaseSet()
		s.HandleKeyed(&Event{Type: paired, Timestamp: 1, HasTimestamp: true}, "5:Concurrent Mark")
		out, ok := s.HandleKeyed(&Event{Type: paired, Timestamp: 1.001, HasTimestamp: true, HasPause: true}, "5:Concurrent Mark")
		if !ok || len(out) != 1 {
			t.Fatalf("close: out=%d ok=%v, want 1/true", len(out), ok)
		}
		if out[0].Pause != 0 || !out[0].HasPause {
			t.Errorf("Pause = %f HasPause = %v, want printed zero kept", out[0].Pause, out[0].HasPause)
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
	})

	t.Run("restart abandons previous", func(t *testing.T) {
		s := NewPhaseSet()
		s.Handle(&Event{Type: start, Timestamp: 1, HasTimestamp: true})
		out, _ := s.Handle(&Event{Type: start, Timestamp: 5, HasTimestamp: true})
		if len(out) != 1 || out[0].Timestamp != 1 {
			t.Errorf("reopening a phase should emit the previous start")
		}
	})
}
