package parser

import "testing"

func TestJRockit(t *testing.T) {
	text := lines(
		"[memory ] Running with 32 bit heap and compressed references.",
		"[memory ] <s>-<end>: GC <before>KB-><after>KB (<heap>KB), <pause> ms",
		"[memory ] 1.234-1.456: GC 1048576K->524288K (2097152K), 222.000 ms",
		"[INFO ][memory ] [YC#1] 2.000-2.010: YC 33280KB->8843KB (65536KB), 0.010 s, sum of pauses 9.577 ms, longest pause 9.577 ms.",
		"[memory ] 3.000: parallel nursery GC 23452K->12345K (65536K), 8.123 ms",
	)
	m, diag, d := parse(t, text)
	if d != DialectJRockit {
		t.Errorf("dialect = %s, want jrockit", d)
	}
	if diag.Total() != 0 {
		t.Fatalf("Total() = %d, want 0: %+v", diag.Total(), diag.Summary().Samples)
	}
	if m.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", m.Size())
	}

	full := m.Event(0)
	if !full.IsFull() || full.Timestamp != 1.234 || !near(full.Pause, 0.222) {
		t.Errorf("first = %s full=%v at %v lasting %v", full.TypeName(), full.IsFull(), full.Timestamp, full.Pause)
	}
	if full.PreUsed != 1048576 || full.PostUsed != 524288 || full.Total != 2097152 {
		t.Errorf("first memory = %d->%d(%d)", full.PreUsed, full.PostUsed, full.Total)
	}

	yc := m.Event(1)
	if yc.TypeName() != "JRockit YC" || yc.IsFull() || !near(yc.Pause, 0.009577) {
		t.Errorf("second = %s full=%v lasting %v, want the sum of pauses", yc.TypeName(), yc.IsFull(), yc.Pause)
	}
	if yc.PreUsed != 33280 || yc.PostUsed != 8843 {
		t.Errorf("second memory = %d->%d", yc.PreUsed, yc.PostUsed)
	}

	nursery := m.Event(2)
	if nursery.TypeName() != "JRockit parallel nursery GC" || !near(nursery.Pause, 0.008123) {
		t.Errorf("third = %s lasting %v", nursery.TypeName(), nursery.Pause)
	}
	if m.RunningTime() != 3 {
		t.Errorf("RunningTime() = %v, want 3", m.RunningTime())
	}
}

func TestJRockit_Malformed(t *testing.T) {
	text := lines(
		"[memory ] 1.0-1.1: GC 100K->",
		"[memory ] 2.0-2.1: Mystery GC 100K->50K (200K), 1.0 ms",
		"[memory ] 3.0-3.1: GC 100K->50K (200K), 1.0 ms",
	)
	m, diag := parseAs(t, DialectJRockit, text)
	if diag.Count(KindMalformed) != 1 || diag.Count(KindUnknownType) != 1 {
		t.Errorf("malformed=%d unknown=%d, want 1 and 1", diag.Count(KindMalformed), diag.Count(KindUnknownType))
	}
	if m.Size() != 1 {
		t.Errorf("Size() = %d, want 1", m.Size())
	}
}
