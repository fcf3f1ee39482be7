package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// abortPreclean is written by CMS in front of the abortable preclean end
// marker.
const abortPreclean = "CMS: abort preclean due to time "

// noisePrefixes start lines that never belong to a GC record: tenuring
// distributions, heap printouts and safepoint statistics.
var noisePrefixes = []string{
	"Desired survivor",
	"- age",
	"{Heap",
	"Heap",
	"}",
	"Application time:",
	"Total time for which application threads were stopped",
	"Stopping threads took",
	"CommandLine flags:",
	"Java HotSpot",
	"OpenJDK",
	"Memory:",
	"/proc/meminfo",
	"CMS: Large ",
	"CMS: large ",
	"Before GC:",
	"After GC:",
	"Statistics for BinaryTreeDictionary",
	"Total Free Space:",
	"Max   Chunk Size:",
	"Number of Blocks:",
	"Av.  Block  Size:",
	"Tree      Height:",
	"[Times:",
}

func isNoise(t string) bool {
	if t == "" {
		return true
	}
	for _, p := range noisePrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	// heap printouts: "par new generation   total 4608K, used 512K [0x..."
	if strings.Contains(t, " [0x") {
		return true
	}
	return strings.Contains(t, "total ") && strings.Contains(t, "used ")
}

// depth returns the number of brackets left open by s.
func depth(s string) int {
	return strings.Count(s, "[") - strings.Count(s, "]")
}

// hotspotParser reads the bracketed HotSpot grammar shared by the serial,
// parallel, CMS, G1 and Shenandoah collectors of JDK 8 and earlier.
type hotspotParser struct {
	*core
	dialect Dialect

	// g1Blocks attaches the indented "[Eden: ...]" block following a pause
	// to that pause.
	g1Blocks bool
	// bareBanners accepts Shenandoah banners written without brackets.
	bareBanners bool

	pending     string
	pendingLine int

	held     *event.Event
	heldText string
}

func (p *hotspotParser) Dialect() Dialect { return p.dialect }

func (p *hotspotParser) Read() (*model.Model, error) {
	for {
		line, err := p.src.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.src.Name(), err)
		}
		p.handle(line)
	}
	if p.pending != "" {
		p.report(p.pendingLine, KindTruncated, "record not terminated at end of input", p.pending)
		p.pending = ""
	}
	p.release()
	return p.finish(), nil
}

func (p *hotspotParser) normalize(raw string) string {
	if i := strings.Index(raw, abortPreclean); i >= 0 {
		raw = raw[:i] + raw[i+len(abortPreclean):]
	}
	if p.bareBanners {
		t := strings.TrimSpace(raw)
		if (strings.HasPrefix(t, "Pause ") || strings.HasPrefix(t, "Concurrent ")) && strings.HasSuffix(t, "ms") {
			return "[" + t + "]"
		}
	}
	return raw
}

func (p *hotspotParser) handle(raw string) {
	no := p.src.LineNumber()
	text := p.normalize(raw)
	trimmed := strings.TrimSpace(text)

	if p.held != nil {
		switch {
		case indented(raw) || strings.HasPrefix(trimmed, "[Eden:"):
			p.blockLine(trimmed, no)
			return
		case p.isConcurrentRecord(trimmed):
			p.records(trimmed, no)
			return
		}
		p.release()
	}

	if p.pending == "" {
		if isNoise(trimmed) || !strings.Contains(trimmed, "[") {
			return
		}
		if p.g1Blocks && indented(raw) {
			// block line without a pause to attach to
			return
		}
		if depth(trimmed) > 0 {
			p.pending, p.pendingLine = trimmed, no
			return
		}
		p.records(trimmed, no)
		return
	}

	if isNoise(trimmed) {
		return
	}
	if p.isConcurrentRecord(trimmed) {
		p.records(trimmed, no)
		return
	}
	if p.startsPauseRecord(trimmed) {
		p.report(p.pendingLine, KindTruncated, "record interrupted by a new record", p.pending)
		p.pending = ""
		p.src.UnreadLine(raw)
		return
	}
	p.pending += text
	if depth(p.pending) <= 0 {
		p.records(p.pending, p.pendingLine)
		p.pending = ""
	}
}

// records scans text and emits its events. With g1Blocks a pause is held
// back until its detail block has been read.
func (p *hotspotParser) records(text string, line int) {
	for _, e := range p.scanRecords(text, line) {
		if !e.IsConcurrent() && e.Type.Pattern() == event.PatternMemory {
			p.report(line, KindMalformed, fmt.Sprintf("%s outside of a collection record", e.TypeName()), text)
			continue
		}
		if p.g1Blocks && e.IsStopTheWorld() {
			p.release()
			p.held, p.heldText = e, text
			continue
		}
		p.emit(e, text)
	}
}

// release emits the held pause.
func (p *hotspotParser) release() {
	if p.held == nil {
		return
	}
	p.emit(p.held, p.heldText)
	p.held, p.heldText = nil, ""
}

// blockLine handles one indented line after a G1 pause.
func (p *hotspotParser) blockLine(t string, no int) {
	switch {
	case strings.HasPrefix(t, "[Eden:"):
		p.edenLine(t, no)
	case strings.HasPrefix(t, "[Times:"):
		p.release()
	case p.isConcurrentRecord(t):
		p.records(t, no)
	}
}

// edenLine reads
//
//	[Eden: 24.0M(24.0M)->0.0B(14.0M) Survivors: 0.0B->3072.0K Heap: 24.0M(256.0M)->3.5M(256.0M)], [Metaspace: 3443K->3443K(1056768K)]
//
// into the held pause. Heap sets the pause's own memory.
func (p *hotspotParser) edenLine(t string, no int) {
	e := p.held
	found := false
	for _, part := range []struct {
		label string
		name  string
	}{
		{"Eden:", event.NameG1Eden},
		{"Survivors:", event.NameG1Survivors},
		{"Heap:", ""},
		{"Metaspace:", event.NameMetaspace},
	} {
		i := strings.Index(t, part.label)
		if i < 0 {
			continue
		}
		m, _, ok := scanMemory(t, skipSpaces(t, i+len(part.label)))
		if !ok {
			continue
		}
		found = true
		if part.name == "" {
			p.applyMemory(e, m)
			continue
		}
		typ, ok := p.types.Lookup(part.name)
		if !ok {
			continue
		}
		d := &event.Event{Type: typ, Line: no}
		p.applyMemory(d, m)
		e.AddDetail(d)
	}
	if !found {
		p.report(no, KindMalformed, "no memory values in detail block", t)
	}
}

func indented(raw string) bool {
	return raw != "" && isSpace(raw[0])
}

// isConcurrentRecord reports whether t is a complete concurrent phase record.
func (p *hotspotParser) isConcurrentRecord(t string) bool {
	typ, ok := p.recordType(t)
	return ok && typ.IsConcurrent() && depth(t) == 0
}

// startsPauseRecord reports whether t opens a new collection record.
func (p *hotspotParser) startsPauseRecord(t string) bool {
	typ, ok := p.recordType(t)
	if !ok || typ.IsConcurrent() {
		return false
	}
	return typ.Pattern() == event.PatternMemoryPause || typ.Name() == "GC remark"
}

// recordType resolves the banner of the record starting t.
func (p *hotspotParser) recordType(t string) (*event.Type, bool) {
	_, open, ok := scanPrefix(t, 0)
	if !ok {
		return nil, false
	}
	name, _ := scanName(t, open+1)
	return p.types.Resolve(name)
}
