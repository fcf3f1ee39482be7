package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gc-sentinel/gc-sentinel/internal/reader"
)

// DefaultDetectWindow is the number of leading bytes Select inspects.
const DefaultDetectWindow = 8 * 1024

// fingerprint recognizes one dialect from the head of a resource.
type fingerprint struct {
	dialect Dialect
	match   func(head string) bool
}

// unifiedDecorations matches the bracketed decorations of unified logging
// at the start of a line: uptime, uptime in millis, date or level.
var unifiedDecorations = regexp.MustCompile(`(?m)^\[(?:\d+[.,]\d+s|\d+ms|\d{4}-\d\d-\d\dT[^\]]+)\]\[|^\[(?:trace|debug|info|warning|error)\s*\]\[gc`)

func containsAny(head string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(head, t) {
			return true
		}
	}
	return false
}

// fingerprints is checked in order; the first match wins. CMS and G1 logs
// also contain classic records, so they come before the classic dialect.
var fingerprints = []fingerprint{
	{DialectUnified, unifiedDecorations.MatchString},
	{DialectCMS, func(h string) bool {
		return containsAny(h, "CMS-", "[CMS")
	}},
	{DialectG1, func(h string) bool {
		return containsAny(h, "GC pause (", "garbage-first", "[Eden:", "GC concurrent-")
	}},
	{DialectJRockit, func(h string) bool {
		return strings.Contains(h, "[memory")
	}},
	{DialectIBMJ9, func(h string) bool {
		return containsAny(h, "<verbosegc", "<af type", "<exclusive-start", "<gc-start", "<cycle-start", "<sys ")
	}},
	{DialectShenandoah, func(h string) bool {
		return containsAny(h, "Pause Init Mark", "Shenandoah")
	}},
	{DialectClassic, func(h string) bool {
		return containsAny(h, "[GC", "[Full GC")
	}},
}

// Detect returns the dialect of the input without consuming it.
func Detect(src *reader.Source, window int) (Dialect, error) {
	if window <= 0 {
		window = DefaultDetectWindow
	}
	head, err := src.Peek(window)
	if err != nil {
		return "", fmt.Errorf("detecting format: %w", err)
	}
	text := string(head)
	for _, f := range fingerprints {
		if f.match(text) {
			return f.dialect, nil
		}
	}
	return "", fmt.Errorf("%s: %w", src.Name(), ErrUnrecognizedFormat)
}

// Select detects the dialect of src and returns its parser. Without a
// matching fingerprint it returns ErrUnrecognizedFormat, or the classic
// parser when opts.FallbackToClassic is set.
func Select(src *reader.Source, opts Options) (Parser, error) {
	opts = opts.withDefaults(src)
	d, err := Detect(src, opts.DetectWindow)
	if err != nil {
		if !opts.FallbackToClassic || !errors.Is(err, ErrUnrecognizedFormat) {
			return nil, err
		}
		opts.Logger.Warn("no format fingerprint matched, using classic parser", "resource", src.Name())
		d = DialectClassic
	}
	return New(d, src, opts)
}
