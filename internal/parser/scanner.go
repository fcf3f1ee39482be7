package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/event"
)

// recordScanner walks one reassembled HotSpot record with a cursor. Nested
// generation details become details of their parent; nested concurrent
// phase markers, written by another thread into the middle of the record,
// are spliced out into their own events.
type recordScanner struct {
	c    *core
	s    string
	pos  int
	line int

	// spliced holds the concurrent events found inside the record, in the
	// order they appeared.
	spliced []*event.Event
}

// scanError stops the scan of one record.
type scanError struct {
	kind   Kind
	reason string
}

func (e *scanError) Error() string { return e.reason }

func newScanError(kind Kind, format string, args ...any) *scanError {
	return &scanError{kind: kind, reason: fmt.Sprintf(format, args...)}
}

// prefix is the optional date and uptime in front of a '['.
type prefix struct {
	date    time.Time
	uptime  float64
	hasTime bool
}

// scanPrefix reads "[date: ][uptime: ]" at s[i:] and returns the position
// of the following '['. ok is false when no '[' follows.
func scanPrefix(s string, i int) (prefix, int, bool) {
	var p prefix
	j := skipSpaces(s, i)
	if d, k, ok := scanDate(s, j); ok {
		if k < len(s) && s[k] == ':' {
			p.date = d
			j = skipSpaces(s, k+1)
		}
	}
	if v, k, ok := scanNumber(s, j); ok {
		if k < len(s) && s[k] == ':' {
			p.uptime, p.hasTime = v, true
			j = skipSpaces(s, k+1)
		} else {
			return prefix{}, i, false
		}
	}
	if j >= len(s) || s[j] != '[' {
		return prefix{}, i, false
	}
	return p, j, true
}

// scanName reads a banner from s[i:]. The banner ends at '[', ':', ',' or
// ']' or at a digit outside parentheses. A leading sequence number such as
// the "1 " of "1 CMS-remark" is kept.
func scanName(s string, i int) (string, int) {
	start := i
	j := i
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j > i && j < len(s) && s[j] == ' ' {
		i = j + 1
	} else {
		i = start
	}
	depth := 0
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth > 0:
		case c == '[' || c == ':' || c == ',' || c == ']':
			return strings.TrimSpace(s[start:i]), i
		case isDigit(c):
			return strings.TrimSpace(s[start:i]), i
		}
	}
	return strings.TrimSpace(s[start:i]), i
}

// skipBracket moves past the bracket that opens at s[i].
func skipBracket(s string, i int) (int, bool) {
	depth := 0
	for ; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return len(s), false
}

// skipParens moves past the parenthesized group that opens at s[i].
func skipParens(s string, i int) (int, bool) {
	depth := 0
	for ; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return len(s), false
}

// scanRecords parses every top-level event in the text. Events are returned
// in text order, with spliced concurrent events ahead of the record they
// were found in. A failed record is reported and the scan resumes after it.
func (c *core) scanRecords(text string, line int) []*event.Event {
	var out []*event.Event
	pos := 0
	for {
		pos = skipSpaces(text, pos)
		if pos >= len(text) {
			return out
		}
		rs := &recordScanner{c: c, s: text, pos: pos, line: line}
		e, err := rs.event()
		out = append(out, rs.spliced...)
		if err != nil {
			c.report(line, err.kind, err.reason, text)
			if err.kind != KindUnknownType {
				return out
			}
		}
		if e != nil {
			out = append(out, e)
		}
		pos = rs.pos
	}
}

// event parses one "[prefix][Name body]" at the cursor. It returns nil
// without error for skipped brackets such as "[Times: ...]" and the G1
// ergonomics decisions.
func (r *recordScanner) event() (*event.Event, *scanError) {
	p, open, ok := scanPrefix(r.s, r.pos)
	if !ok {
		rest := strings.TrimSpace(r.s[r.pos:])
		r.pos = len(r.s)
		return nil, newScanError(KindMalformed, "unexpected text %q", clip(rest))
	}

	name, i := scanName(r.s, open+1)
	if name == "Times" || strings.HasPrefix(name, "G1Ergonomics") {
		end, ok := skipBracket(r.s, open)
		if !ok {
			r.pos = len(r.s)
			return nil, newScanError(KindTruncated, "unterminated times bracket")
		}
		r.pos = end
		return nil, nil
	}

	typ, known := r.c.types.Resolve(name)
	if !known {
		end, _ := skipBracket(r.s, open)
		r.pos = end
		return nil, newScanError(KindUnknownType, "unknown banner %q", name)
	}

	e := &event.Event{
		Type:         typ,
		Timestamp:    p.uptime,
		HasTimestamp: p.hasTime,
		Date:         p.date,
		Line:         r.line,
	}
	r.pos = i

	if err := r.body(e); err != nil {
		return nil, err
	}
	return e, nil
}

// body parses the items of e up to and including the closing ']'.
func (r *recordScanner) body(e *event.Event) *scanError {
	for {
		r.pos = skipSpaces(r.s, r.pos)
		if r.pos >= len(r.s) {
			return newScanError(KindTruncated, "record %s not terminated", e.TypeName())
		}
		switch c := r.s[r.pos]; {
		case c == ']':
			r.pos++
			return nil
		case c == ',' || c == ':':
			r.pos++
		case c == '(':
			end, ok := skipParens(r.s, r.pos)
			if !ok {
				return newScanError(KindTruncated, "unbalanced parenthesis in %s", e.TypeName())
			}
			r.pos = end
		case c == '[' || isDigit(c):
			if _, _, ok := scanPrefix(r.s, r.pos); ok {
				if err := r.nested(e); err != nil {
					return err
				}
				continue
			}
			r.value(e)
		default:
			r.skipWord()
		}
	}
}

// nested parses a bracket inside e's body.
func (r *recordScanner) nested(parent *event.Event) *scanError {
	d, err := r.event()
	if err != nil {
		if err.kind == KindUnknownType {
			// drop the unknown detail but keep its parent
			r.c.report(r.line, err.kind, err.reason, r.s)
			return nil
		}
		return err
	}
	if d == nil {
		return nil
	}
	if d.IsConcurrent() {
		r.spliced = append(r.spliced, d)
		return nil
	}
	parent.AddDetail(d)
	return nil
}

// value parses a memory triple or a duration at the cursor.
func (r *recordScanner) value(e *event.Event) {
	if m, next, ok := scanMemory(r.s, r.pos); ok {
		if !e.HasMemory {
			r.c.applyMemory(e, m)
		}
		r.pos = next
		return
	}
	if d, next, ok := scanDuration(r.s, r.pos); ok {
		e.Pause = d
		r.pos = next
		return
	}
	r.skipWord()
}

// skipWord moves past one unrecognized token such as "icms_dc=0".
func (r *recordScanner) skipWord() {
	start := r.pos
	for r.pos < len(r.s) {
		c := r.s[r.pos]
		if isSpace(c) || c == ']' || c == '[' || c == ',' || (c == '(' && r.pos > start) {
			break
		}
		r.pos++
	}
	if r.pos == start {
		r.pos++
	}
}

func clip(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
