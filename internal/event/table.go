package event

import (
	"fmt"
	"strings"
)

// TypeTable is an immutable name to Type lookup. It is built once and
// shared by reference, so concurrent lookups need no locking.
type TypeTable struct {
	byName map[string]*Type
	byFold map[string]*Type
	names  []string
}

// NewTypeTable registers defs. A name may be registered only once.
func NewTypeTable(defs []TypeDef) (*TypeTable, error) {
	t := &TypeTable{
		byName: make(map[string]*Type, len(defs)),
		byFold: make(map[string]*Type, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("type definition without name")
		}
		if _, exists := t.byName[d.Name]; exists {
			return nil, fmt.Errorf("type %q registered twice", d.Name)
		}
		typ := &Type{
			name:        d.Name,
			generation:  d.Generation,
			concurrency: d.Concurrency,
			pattern:     d.Pattern,
			role:        d.Role,
			phaseKey:    d.PhaseKey,
		}
		if typ.concurrency == Concurrent && typ.phaseKey == "" {
			typ.phaseKey = d.Name
		}
		t.byName[d.Name] = typ
		fold := strings.ToLower(d.Name)
		if _, exists := t.byFold[fold]; !exists {
			t.byFold[fold] = typ
		}
		t.names = append(t.names, d.Name)
	}
	return t, nil
}

// Len returns the number of registered types.
func (t *TypeTable) Len() int {
	return len(t.byName)
}

// Names returns the registered names in registration order.
func (t *TypeTable) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Lookup returns the type registered under exactly name.
func (t *TypeTable) Lookup(name string) (*Type, bool) {
	typ, ok := t.byName[name]
	return typ, ok
}

// Resolve maps banner text to a type. It tries an exact match first and then
// falls back to banner variants that differ only by a leading sequence
// number, letter case, trailing punctuation, parenthesized qualifiers or a
// trailing suffix after a known name.
func (t *TypeTable) Resolve(text string) (*Type, bool) {
	text = collapseSpaces(text)
	if text == "" {
		return nil, false
	}
	if typ, ok := t.byName[text]; ok {
		return typ, true
	}

	// "1 CMS-remark"
	if i := strings.IndexByte(text, ' '); i > 0 && isDigits(text[:i]) {
		text = text[i+1:]
		if typ, ok := t.byName[text]; ok {
			return typ, true
		}
	}

	if typ, ok := t.simple(text); ok {
		return typ, true
	}

	groups := parenGroups(text)
	if len(groups) > 0 && len(groups) <= 6 {
		for k := 1; k <= len(groups); k++ {
			var found *Type
			combinations(len(groups), k, func(drop []int) bool {
				if typ, ok := t.simple(removeGroups(text, groups, drop)); ok {
					found = typ
					return false
				}
				return true
			})
			if found != nil {
				return found, true
			}
		}
	}

	return t.longestPrefix(text)
}

func (t *TypeTable) simple(text string) (*Type, bool) {
	if typ, ok := t.byName[text]; ok {
		return typ, true
	}
	if typ, ok := t.byFold[strings.ToLower(text)]; ok {
		return typ, true
	}
	trimmed := strings.TrimRight(text, "-:,. ")
	if trimmed != text && trimmed != "" {
		if typ, ok := t.byName[trimmed]; ok {
			return typ, true
		}
		if typ, ok := t.byFold[strings.ToLower(trimmed)]; ok {
			return typ, true
		}
	}
	return nil, false
}

func (t *TypeTable) longestPrefix(text string) (*Type, bool) {
	var best *Type
	for name, typ := range t.byName {
		if len(name) >= len(text) || !strings.HasPrefix(text, name) {
			continue
		}
		if next := text[len(name)]; next != ' ' && next != '(' {
			continue
		}
		if best == nil || len(name) > len(best.name) {
			best = typ
		}
	}
	return best, best != nil
}

type span struct{ start, end int }

// parenGroups returns the top level balanced "(...)" spans of s.
func parenGroups(s string) []span {
	var groups []span
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				groups = append(groups, span{start, i + 1})
			}
		}
	}
	return groups
}

func removeGroups(s string, groups []span, drop []int) string {
	var sb strings.Builder
	pos := 0
	for _, idx := range drop {
		g := groups[idx]
		sb.WriteString(s[pos:g.start])
		pos = g.end
	}
	sb.WriteString(s[pos:])
	return collapseSpaces(sb.String())
}

// combinations calls fn with every ascending k-subset of [0, n) until fn
// returns false.
func combinations(n, k int, fn func([]int) bool) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
