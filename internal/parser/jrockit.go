package parser

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// jrockitRecord matches one memory record of JRockit R26 to R28:
//
//	[memory ] 1.234-1.456: GC 1048576K->524288K (2097152K), 222.000 ms
//	[INFO ][memory ] [YC#1] 1.281-1.291: YC 33280KB->8843KB (65536KB), 0.010 s, sum of pauses 9.577 ms, longest pause 9.577 ms.
var jrockitRecord = regexp.MustCompile(`^\s*(?:\[[A-Z]+\s*\]\s*)?\[memory\s*\]\s*(?:\[(?:YC|OC)#\d+\]\s*)?(\d+[.,]\d+)(?:-(\d+[.,]\d+))?:\s*(.+?)\s+(\d.*)$`)

const sumOfPauses = "sum of pauses "

// jrockitParser reads the single-line records JRockit writes with
// -Xverbose:memory.
type jrockitParser struct {
	*core
}

func (p *jrockitParser) Dialect() Dialect { return DialectJRockit }

func (p *jrockitParser) Read() (*model.Model, error) {
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
	return p.finish(), nil
}

func (p *jrockitParser) handle(line string, no int) {
	if !strings.Contains(line, "[memory") || strings.Contains(line, "<s>") {
		return
	}
	m := jrockitRecord.FindStringSubmatch(line)
	if m == nil {
		if strings.Contains(line, "->") {
			p.report(no, KindMalformed, "unrecognized memory record", line)
		}
		return
	}

	start, _, ok := scanNumber(m[1], 0)
	if !ok {
		p.report(no, KindMalformed, "bad timestamp", line)
		return
	}
	name := "JRockit " + strings.TrimSpace(m[3])
	typ, ok := p.types.Resolve(name)
	if !ok {
		p.report(no, KindUnknownType, fmt.Sprintf("unknown banner %q", m[3]), line)
		return
	}

	body := m[4]
	mem, next, ok := scanMemory(body, 0)
	if !ok {
		p.report(no, KindMalformed, "no memory triple", line)
		return
	}
	e := &event.Event{Type: typ, Timestamp: start, HasTimestamp: true, Line: no}
	p.applyMemory(e, mem)

	if i := strings.Index(body, sumOfPauses); i >= 0 {
		if d, _, ok := scanDuration(body, i+len(sumOfPauses)); ok {
			e.Pause = d
		}
	} else {
		i := skipSpaces(body, next)
		if i < len(body) && body[i] == ',' {
			i = skipSpaces(body, i+1)
		}
		if d, _, ok := scanDuration(body, i); ok {
			e.Pause = d
		}
	}
	p.emit(e, line)
}
