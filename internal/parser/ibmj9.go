package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// j9DateLayouts are the timestamp attribute formats of the J9 releases.
var j9DateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05",
	"Mon Jan 02 15:04:05 2006",
	"Mon Jan _2 15:04:05 2006",
	"Jan 02 15:04:05 2006",
}

func parseJ9Date(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range j9DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// j9Space is one free/total pair of a heap area, in bytes.
type j9Space struct {
	free, total int64
	ok          bool
}

func (s j9Space) usedKB() int64 { return roundKB(float64(s.total-s.free) / 1024) }

func (s j9Space) totalKB() int64 { return roundKB(float64(s.total) / 1024) }

// j9Record is the collection being assembled between its opening and closing
// elements.
type j9Record struct {
	typeName string
	line     int
	uptime   float64
	date     time.Time
	pause    float64
	hasPause bool

	// before and after the collection, per area: "heap", "nursery", "tenure"
	before, after map[string]j9Space

	// inGC is set between the start and end of the inner <gc> of a legacy
	// <af> record. Areas seen after it describe the heap after collection.
	inGC, afterGC bool
	closing       string
}

// j9Parser reads IBM J9 verbose GC XML as a token stream. Both the legacy
// <af>/<sys> records and the exclusive-start/gc-start/gc-end/exclusive-end
// sequence of later releases are understood.
type j9Parser struct {
	*core

	dec    *xml.Decoder
	base   int
	uptime float64
	cur    *j9Record
	// inEnd is set while inside a <gc-end> element.
	inEnd bool
}

func (p *j9Parser) Dialect() Dialect { return DialectIBMJ9 }

func (p *j9Parser) Read() (*model.Model, error) {
	p.base = p.src.LineNumber()
	p.dec = xml.NewDecoder(p.src.Remaining())
	p.dec.Strict = false
	p.dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	for {
		tok, err := p.dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		var syntax *xml.SyntaxError
		if errors.As(err, &syntax) {
			p.syntaxError(syntax)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.src.Name(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.start(t)
		case xml.EndElement:
			p.end(t)
		}
	}
	return p.finish(), nil
}

// syntaxError ends the parse. An unterminated root element is the normal
// state of a log still being written and is not reported.
func (p *j9Parser) syntaxError(err *xml.SyntaxError) {
	line := p.base + err.Line
	if p.cur != nil {
		p.report(p.cur.line, KindTruncated, "record not terminated at end of input", p.cur.typeName)
		p.cur = nil
		return
	}
	if strings.Contains(err.Msg, "unexpected EOF") {
		return
	}
	p.report(line, KindMalformed, err.Msg, "")
}

func (p *j9Parser) line() int {
	l, _ := p.dec.InputPos()
	return p.base + l
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func attrFloat(t xml.StartElement, name string) (float64, bool) {
	v := attr(t, name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func attrInt(t xml.StartElement, name string) (int64, bool) {
	v := attr(t, name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// open begins a record closed by the element named closing.
func (p *j9Parser) open(t xml.StartElement, typeName, closing string) {
	if p.cur != nil {
		p.report(p.cur.line, KindTruncated, "record interrupted by a new record", p.cur.typeName)
	}
	if ms, ok := attrFloat(t, "intervalms"); ok {
		p.uptime += ms / 1000
	}
	p.cur = &j9Record{
		typeName: typeName,
		line:     p.line(),
		uptime:   p.uptime,
		date:     parseJ9Date(attr(t, "timestamp")),
		before:   make(map[string]j9Space),
		after:    make(map[string]j9Space),
		closing:  closing,
	}
}

func (p *j9Parser) start(t xml.StartElement) {
	switch t.Name.Local {
	case "af":
		p.open(t, "J9 af "+attr(t, "type"), "af")
	case "sys":
		p.open(t, "J9 sys", "sys")
	case "con":
		if attr(t, "event") == "collection" {
			p.open(t, "J9 concurrent collection", "con")
		}
	case "exclusive-start":
		p.open(t, "", "exclusive-end")
	case "gc-start":
		if p.cur == nil {
			p.open(t, "", "gc-end")
		}
		if p.cur.typeName == "" {
			p.cur.typeName = "J9 " + attr(t, "type")
		}
	case "gc-end":
		p.inEnd = true
		if p.cur != nil && !p.cur.hasPause {
			if ms, ok := attrFloat(t, "durationms"); ok {
				p.cur.pause = ms / 1000
			}
		}
	case "exclusive-end":
		// the whole exclusive access window counts as the pause
		if p.cur != nil {
			if ms, ok := attrFloat(t, "durationms"); ok {
				p.cur.pause, p.cur.hasPause = ms/1000, true
			}
		}
	case "gc":
		if p.cur != nil {
			p.cur.inGC = true
		}
	case "mem-info":
		p.space(t, "heap")
	case "mem":
		p.space(t, attr(t, "type"))
	case "nursery":
		p.space(t, "nursery")
	case "tenured":
		p.space(t, "tenure")
	case "time":
		if p.cur == nil || p.cur.inGC {
			return
		}
		if ms, ok := attrFloat(t, "totalms"); ok {
			p.cur.pause, p.cur.hasPause = ms/1000, true
		}
	}
}

// space records a free/total pair for the current record. Legacy records use
// freebytes/totalbytes; later releases use free/total.
func (p *j9Parser) space(t xml.StartElement, area string) {
	r := p.cur
	if r == nil || r.inGC {
		return
	}
	free, okFree := attrInt(t, "free")
	total, okTotal := attrInt(t, "total")
	if !okFree || !okTotal {
		free, okFree = attrInt(t, "freebytes")
		total, okTotal = attrInt(t, "totalbytes")
	}
	if !okFree || !okTotal {
		return
	}
	s := j9Space{free: free, total: total, ok: true}
	if p.inEnd || r.afterGC {
		r.after[area] = s
		return
	}
	r.before[area] = s
}

func (p *j9Parser) end(t xml.EndElement) {
	r := p.cur
	switch t.Name.Local {
	case "gc":
		if r != nil && r.inGC {
			r.inGC, r.afterGC = false, true
		}
		return
	case "gc-end":
		p.inEnd = false
	}
	if r == nil || t.Name.Local != r.closing {
		return
	}
	p.cur = nil
	p.emitRecord(r)
}

func (p *j9Parser) emitRecord(r *j9Record) {
	if r.typeName == "" {
		// exclusive access without a collection
		return
	}
	typ, ok := p.types.Resolve(r.typeName)
	if !ok {
		p.report(r.line, KindUnknownType, fmt.Sprintf("unknown collection type %q", r.typeName), r.typeName)
		return
	}
	e := &event.Event{
		Type:         typ,
		Timestamp:    r.uptime,
		HasTimestamp: true,
		Date:         r.date,
		Pause:        r.pause,
		Line:         r.line,
	}

	before, after := r.before, r.after
	if h, ok := total(before); ok {
		if a, ok := total(after); ok {
			e.SetMemory(h.usedKB(), a.usedKB(), a.totalKB())
		}
	}
	p.addDetail(e, event.NameJ9Nursery, before["nursery"], after["nursery"])
	// a tenure detail would make every scavenge a full collection
	if typ.Generation() == event.GenAll {
		p.addDetail(e, event.NameJ9Tenured, before["tenure"], after["tenure"])
	}
	p.emit(e, r.typeName)
}

// total returns the whole heap, summing nursery and tenure when the record
// has no heap element.
func total(areas map[string]j9Space) (j9Space, bool) {
	if h, ok := areas["heap"]; ok && h.ok {
		return h, true
	}
	n, t := areas["nursery"], areas["tenure"]
	if !n.ok && !t.ok {
		return j9Space{}, false
	}
	return j9Space{free: n.free + t.free, total: n.total + t.total, ok: true}, true
}

func (p *j9Parser) addDetail(e *event.Event, name string, before, after j9Space) {
	if !before.ok || !after.ok {
		return
	}
	typ, ok := p.types.Lookup(name)
	if !ok {
		return
	}
	d := &event.Event{Type: typ, Line: e.Line}
	d.SetMemory(before.usedKB(), after.usedKB(), after.totalKB())
	e.AddDetail(d)
}
