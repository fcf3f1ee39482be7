package parser

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

var (
	// unifiedDuration is the duration closing a summary line: "... 5.123ms".
	unifiedDuration = regexp.MustCompile(`\s(\d+(?:[.,]\d+)?)(ms|s)$`)
	// unifiedGCID is the collection id in front of the message.
	unifiedGCID = regexp.MustCompile(`^GC\((\d+)\)\s*`)
)

var unifiedLevels = []string{"trace", "debug", "info", "warning", "error"}

// decorations is the bracketed prefix of one unified logging line.
type decorations struct {
	uptime    float64
	hasUptime bool
	date      time.Time
	tags      []string
}

func (d decorations) hasTag(t string) bool {
	return slices.Contains(d.tags, t)
}

// onlyGC reports whether the tag set is exactly "gc".
func (d decorations) onlyGC() bool {
	return len(d.tags) == 1 && d.tags[0] == "gc"
}

// scanDecorations reads the "[..][..][..]" prefix and returns the message
// after it.
func scanDecorations(line string) (decorations, string, bool) {
	var d decorations
	i := 0
	for i < len(line) && line[i] == '[' {
		end := strings.IndexByte(line[i:], ']')
		if end < 0 {
			return d, "", false
		}
		d.apply(strings.TrimSpace(line[i+1 : i+end]))
		i += end + 1
	}
	if i == 0 || d.tags == nil {
		return d, "", false
	}
	return d, strings.TrimSpace(line[i:]), true
}

func (d *decorations) apply(v string) {
	switch {
	case v == "":
	case looksLikeDate(v, 0):
		if t, _, ok := scanDate(v, 0); ok {
			d.date = t
		}
	case isDigit(v[0]):
		if up, ok := parseUptime(v); ok {
			d.uptime, d.hasUptime = up, true
		}
		// pid, tid and raw nanosecond counters are ignored
	case slices.Contains(unifiedLevels, v):
	default:
		tags := strings.Split(v, ",")
		for i := range tags {
			tags[i] = strings.TrimSpace(tags[i])
		}
		d.tags = tags
	}
}

// parseUptime reads "1.234s" or "1234ms".
func parseUptime(v string) (float64, bool) {
	scale := 1.0
	switch {
	case strings.HasSuffix(v, "ms"):
		v, scale = strings.TrimSuffix(v, "ms"), 1.0/1000
	case strings.HasSuffix(v, "s"):
		v = strings.TrimSuffix(v, "s")
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f * scale, true
}

// unifiedPending is a collection opened by a "gc,start" line and completed by
// its summary line.
type unifiedPending struct {
	typ     *event.Type
	deco    decorations
	line    int
	text    string
	details []*event.Event
}

// unifiedParser reads JDK 9+ unified logging (-Xlog:gc*). Lines of one
// collection share a GC(id); the parser collects the start line and the
// heap lines of each id and emits the event on the summary line.
type unifiedParser struct {
	*core

	pending map[int]*unifiedPending
}

func (p *unifiedParser) Dialect() Dialect { return DialectUnified }

func (p *unifiedParser) Read() (*model.Model, error) {
	p.pending = make(map[int]*unifiedPending)
	for {
		line, err := p.src.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.src.Name(), err)
		}
		p.handle(line, p.src.LineNumber())
	}
	for _, id := range slices.Sorted(maps.Keys(p.pending)) {
		pd := p.pending[id]
		p.report(pd.line, KindTruncated, fmt.Sprintf("GC(%d) %s has no summary line", id, pd.typ.Name()), pd.text)
	}
	return p.finish(), nil
}

func (p *unifiedParser) handle(line string, no int) {
	deco, msg, ok := scanDecorations(line)
	if !ok || len(deco.tags) == 0 || deco.tags[0] != "gc" {
		return
	}
	m := unifiedGCID.FindStringSubmatch(msg)
	if m == nil {
		return
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}
	msg = msg[len(m[0]):]

	switch {
	case deco.hasTag("start"):
		p.start(id, deco, msg, no, line)
	case deco.hasTag("heap") || deco.hasTag("metaspace"):
		p.heap(id, msg, no)
	default:
		p.summary(id, deco, msg, no, line)
	}
}

// start opens a pending collection. Sub-phase starts such as
// "Phase 1: Mark live objects" do not resolve and are ignored.
func (p *unifiedParser) start(id int, deco decorations, msg string, no int, line string) {
	typ, ok := p.types.Resolve(msg)
	if !ok || typ.IsConcurrent() {
		return
	}
	p.pending[id] = &unifiedPending{typ: typ, deco: deco, line: no, text: line}
}

// heap adds a "Name: before->after(capacity)" line to the pending collection
// as a detail. Old generation lines are printed for every collection and are
// not attached: they would make every young collection full.
func (p *unifiedParser) heap(id int, msg string, no int) {
	if strings.Contains(msg, "regions:") {
		return
	}
	colon := strings.IndexByte(msg, ':')
	if colon < 0 {
		return
	}
	mem, _, ok := scanMemory(msg, skipSpaces(msg, colon+1))
	if !ok {
		return
	}
	typ, ok := p.types.Resolve(msg[:colon])
	if !ok {
		return
	}
	switch typ.Generation() {
	case event.GenYoung, event.GenPerm:
	default:
		return
	}
	pd, ok := p.pending[id]
	if !ok {
		return
	}
	d := &event.Event{Type: typ, Line: no}
	p.applyMemory(d, mem)
	pd.details = append(pd.details, d)
}

// summary handles a line that may complete a collection or report a
// concurrent phase:
//
//	Pause Young (Normal) (G1 Evacuation Pause) 24M->3M(256M) 5.123ms
//	Concurrent Mark (2.001s, 2.101s) 100.123ms
func (p *unifiedParser) summary(id int, deco decorations, msg string, no int, line string) {
	var pause float64
	hasPause := false
	if m := unifiedDuration.FindStringSubmatchIndex(msg); m != nil {
		v, _, _ := scanNumber(msg, m[2])
		if msg[m[4]:m[5]] == "ms" {
			v /= 1000
		}
		pause, hasPause = v, true
		msg = strings.TrimSpace(msg[:m[0]])
	}

	name := msg
	var mem memory
	hasMem := false
	if arrow := strings.Index(msg, "->"); arrow >= 0 {
		start := strings.LastIndexByte(msg[:arrow], ' ') + 1
		if m, _, ok := scanMemory(msg, start); ok {
			mem, hasMem = m, true
			name = strings.TrimSpace(msg[:start])
		}
	}

	typ, ok := p.types.Resolve(name)
	if !ok {
		if deco.onlyGC() && hasMem {
			p.report(no, KindUnknownType, fmt.Sprintf("unknown banner %q", name), line)
		}
		return
	}

	e := &event.Event{
		Type:         typ,
		Timestamp:    deco.uptime,
		HasTimestamp: deco.hasUptime,
		Date:         deco.date,
		Pause:        pause,
		HasPause:     hasPause,
		Line:         no,
	}
	if hasMem {
		p.applyMemory(e, mem)
	}

	if typ.IsConcurrent() {
		key := strconv.Itoa(id) + ":" + typ.PhaseKey()
		p.emitKeyed(e, key, line)
		return
	}

	if pd, ok := p.pending[id]; ok && pd.typ == typ {
		delete(p.pending, id)
		e.Timestamp, e.HasTimestamp = pd.deco.uptime, pd.deco.hasUptime
		if pd.deco.date.IsZero() {
			e.Date = deco.date
		} else {
			e.Date = pd.deco.date
		}
		e.Line = pd.line
		for _, d := range pd.details {
			e.AddDetail(d)
		}
	}
	p.emit(e, line)
}
