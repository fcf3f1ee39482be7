// Package parser turns GC log text of several dialects into events and
// aggregates them into a model.
package parser

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
	"github.com/gc-sentinel/gc-sentinel/internal/reader"
)

// Dialect names one log grammar.
type Dialect string

const (
	DialectClassic    Dialect = "classic"
	DialectCMS        Dialect = "cms"
	DialectG1         Dialect = "g1"
	DialectShenandoah Dialect = "shenandoah"
	DialectJRockit    Dialect = "jrockit"
	DialectIBMJ9      Dialect = "ibmj9"
	DialectUnified    Dialect = "unified"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{
	DialectClassic,
	DialectCMS,
	DialectG1,
	DialectShenandoah,
	DialectJRockit,
	DialectIBMJ9,
	DialectUnified,
}

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	for _, d := range Dialects {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dialect %q", s)
}

// ErrUnrecognizedFormat is returned by Select when no dialect fingerprint
// matches the input.
var ErrUnrecognizedFormat = errors.New("unrecognized gc log format")

// Parser reads one resource to completion.
type Parser interface {
	// Dialect returns the grammar the parser understands.
	Dialect() Dialect

	// Read drains the source into a new model. Malformed records are
	// reported to the diagnostics sink and skipped; only a failure of the
	// underlying stream is returned as an error.
	Read() (*model.Model, error)
}

// Options configures a parser.
type Options struct {
	// Types resolves banners. Defaults to event.StandardTypes().
	Types *event.TypeTable

	// Diagnostics receives recoverable failures. Defaults to a sink logging
	// to Logger.
	Diagnostics *Diagnostics

	// Logger is used when Diagnostics is nil. Defaults to slog.Default().
	Logger *slog.Logger

	// DetectWindow is the number of bytes Select inspects. Defaults to
	// DefaultDetectWindow.
	DetectWindow int

	// FallbackToClassic makes Select return the classic parser instead of
	// ErrUnrecognizedFormat.
	FallbackToClassic bool
}

func (o Options) withDefaults(src *reader.Source) Options {
	if o.Types == nil {
		o.Types = event.StandardTypes()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Diagnostics == nil {
		o.Diagnostics = NewDiagnostics(src.Name(), o.Logger, DefaultMaxSamples)
	}
	if o.DetectWindow <= 0 {
		o.DetectWindow = DefaultDetectWindow
	}
	return o
}

// New returns the parser of dialect d over src.
func New(d Dialect, src *reader.Source, opts Options) (Parser, error) {
	opts = opts.withDefaults(src)
	c := newCore(src, opts)
	switch d {
	case DialectClassic, DialectCMS:
		return &hotspotParser{core: c, dialect: d}, nil
	case DialectG1:
		return &hotspotParser{core: c, dialect: d, g1Blocks: true}, nil
	case DialectShenandoah:
		return &hotspotParser{core: c, dialect: d, bareBanners: true}, nil
	case DialectJRockit:
		return &jrockitParser{core: c}, nil
	case DialectIBMJ9:
		return &j9Parser{core: c}, nil
	case DialectUnified:
		return &unifiedParser{core: c}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", d)
	}
}

// core holds the state every dialect shares: the source, the type table,
// the diagnostics sink, the open concurrent phases and the model being
// built.
type core struct {
	src    *reader.Source
	types  *event.TypeTable
	diag   *Diagnostics
	logger *slog.Logger
	phases *event.PhaseSet
	model  *model.Model

	// last capacity seen per type, for triples that omit it
	lastTotal map[string]int64
}

func newCore(src *reader.Source, opts Options) *core {
	return &core{
		src:       src,
		types:     opts.Types,
		diag:      opts.Diagnostics,
		logger:    opts.Logger,
		phases:    event.NewPhaseSet(),
		model:     model.New(),
		lastTotal: make(map[string]int64),
	}
}

// emit routes e through the phase tracker and adds what it releases to the
// model.
func (c *core) emit(e *event.Event, text string) {
	key := ""
	if e.Type != nil {
		key = e.Type.PhaseKey()
	}
	c.emitKeyed(e, key, text)
}

// emitKeyed is emit with an explicit phase key.
func (c *core) emitKeyed(e *event.Event, key, text string) {
	out, ok := c.phases.HandleKeyed(e, key)
	if !ok {
		c.diag.Report(&LineError{
			Line:   e.Line,
			Kind:   KindInconsistentPhase,
			Reason: fmt.Sprintf("%s without matching start", e.TypeName()),
			Text:   text,
		})
	}
	for _, o := range out {
		c.model.Add(o)
	}
}

// finish releases the phases still open, zero length, and closes the model.
func (c *core) finish() *model.Model {
	for _, e := range c.phases.Drain() {
		c.model.Add(e)
	}
	c.model.Finish()
	return c.model
}

func (c *core) report(line int, kind Kind, reason, text string) {
	c.diag.Report(&LineError{Line: line, Kind: kind, Reason: reason, Text: text})
}

// applyMemory sets m on e, completing a missing capacity from the last
// capacity seen for the same type.
func (c *core) applyMemory(e *event.Event, m memory) {
	name := e.TypeName()
	total := m.total
	if m.hasTotal {
		c.lastTotal[name] = total
	} else {
		total = c.lastTotal[name]
	}
	e.SetMemory(m.pre, m.post, total)
}
