package parser

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// memory is a parsed before -> after (capacity) triple in KB.
type memory struct {
	pre, post, total int64
	hasTotal         bool
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func skipSpaces(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// scanNumber reads a decimal number at s[i:]. Both '.' and ',' are accepted
// as decimal separator when followed by a digit.
func scanNumber(s string, i int) (float64, int, bool) {
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start {
		return 0, start, false
	}
	end := i
	if i+1 < len(s) && (s[i] == '.' || s[i] == ',') && isDigit(s[i+1]) {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		end = i
	}
	text := s[start:end]
	if strings.IndexByte(text, ',') >= 0 {
		text = strings.Replace(text, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, start, false
	}
	return v, end, true
}

// scanSize reads a memory size at s[i:] and returns it in KB. Accepted
// suffixes are B, K, KB, M, MB, G and GB, optionally after one space. A
// number without suffix counts bytes.
func scanSize(s string, i int) (float64, int, bool) {
	v, j, ok := scanNumber(s, i)
	if !ok {
		return 0, i, false
	}
	k := j
	if k < len(s) && s[k] == ' ' && k+1 < len(s) && isUnit(s[k+1]) && !isUnitWord(s, k+1) {
		k++
	}
	if k < len(s) && isUnit(s[k]) && !isUnitWord(s, k) {
		unit := s[k]
		k++
		if k < len(s) && s[k] == 'B' && unit != 'B' {
			k++
		}
		switch unit {
		case 'B':
			return v / 1024, k, true
		case 'K':
			return v, k, true
		case 'M':
			return v * 1024, k, true
		case 'G':
			return v * 1024 * 1024, k, true
		}
	}
	return v / 1024, j, true
}

func isUnit(b byte) bool {
	return b == 'B' || b == 'K' || b == 'M' || b == 'G'
}

// isUnitWord reports whether the unit letter at s[i] starts a longer word,
// like the "GC" in "12 GC".
func isUnitWord(s string, i int) bool {
	j := i + 1
	if j < len(s) && s[j] == 'B' && s[i] != 'B' {
		j++
	}
	if j >= len(s) {
		return false
	}
	c := s[j]
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func roundKB(v float64) int64 {
	return int64(math.Round(v))
}

// scanCapacity reads "(size)" at s[i:], allowing one space before the
// parenthesis. Percentages such as "(5%)" are skipped and reported absent.
func scanCapacity(s string, i int) (float64, int, bool, bool) {
	j := skipSpaces(s, i)
	if j >= len(s) || s[j] != '(' {
		return 0, i, false, false
	}
	v, k, ok := scanSize(s, j+1)
	if ok && k < len(s) && s[k] == ')' {
		return v, k + 1, true, true
	}
	end := strings.IndexByte(s[j:], ')')
	if end < 0 || !strings.Contains(s[j:j+end], "%") {
		return 0, i, false, false
	}
	return 0, j + end + 1, false, true
}

// scanMemory reads a memory triple at s[i:]. Accepted shapes:
//
//	before->after(capacity)
//	before->after
//	before(capacityBefore)->after(capacityAfter)
//	used(capacity)
//
// The last shape reports before and after equal.
func scanMemory(s string, i int) (memory, int, bool) {
	pre, j, ok := scanSize(s, i)
	if !ok {
		return memory{}, i, false
	}
	var m memory

	if capA, k, hasCap, okCap := scanCapacity(s, j); okCap {
		if strings.HasPrefix(s[k:], "->") {
			post, l, ok := scanSize(s, k+2)
			if !ok {
				return memory{}, i, false
			}
			m.pre, m.post = roundKB(pre), roundKB(post)
			if capB, n, has, ok := scanCapacity(s, l); ok {
				if has {
					m.total, m.hasTotal = roundKB(capB), true
				}
				return m, n, true
			}
			if hasCap {
				m.total, m.hasTotal = roundKB(capA), true
			}
			return m, l, true
		}
		if !hasCap {
			return memory{}, i, false
		}
		m.pre, m.post = roundKB(pre), roundKB(pre)
		m.total, m.hasTotal = roundKB(capA), true
		return m, k, true
	}

	if !strings.HasPrefix(s[j:], "->") {
		return memory{}, i, false
	}
	post, k, ok := scanSize(s, j+2)
	if !ok {
		return memory{}, i, false
	}
	m.pre, m.post = roundKB(pre), roundKB(post)
	if capacity, l, has, ok := scanCapacity(s, k); ok {
		if has {
			m.total, m.hasTotal = roundKB(capacity), true
		}
		return m, l, true
	}
	return m, k, true
}

// scanDuration reads "<n> secs", "<n> sec", "<n> s", "<n> ms" or the CMS
// "<cpu>/<wall> secs" at s[i:] and returns seconds. The CMS form yields the
// wall time.
func scanDuration(s string, i int) (float64, int, bool) {
	v, j, ok := scanNumber(s, i)
	if !ok {
		return 0, i, false
	}
	if j < len(s) && s[j] == '/' {
		if wall, k, ok := scanNumber(s, j+1); ok {
			v, j = wall, k
		}
	}
	k := skipSpaces(s, j)
	rest := s[k:]
	switch {
	case strings.HasPrefix(rest, "secs"):
		return v, k + 4, true
	case strings.HasPrefix(rest, "sec"):
		return v, k + 3, true
	case strings.HasPrefix(rest, "ms"):
		return v / 1000, k + 2, true
	case strings.HasPrefix(rest, "s") && (len(rest) == 1 || !isLetter(rest[1])):
		return v, k + 1, true
	}
	return 0, i, false
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// dateLayout is the HotSpot -XX:+PrintGCDateStamps format.
const dateLayout = "2006-01-02T15:04:05.000-0700"

// scanDate reads a HotSpot date stamp at s[i:].
func scanDate(s string, i int) (time.Time, int, bool) {
	if len(s)-i < len(dateLayout) || !looksLikeDate(s, i) {
		return time.Time{}, i, false
	}
	t, err := time.Parse(dateLayout, s[i:i+len(dateLayout)])
	if err != nil {
		return time.Time{}, i, false
	}
	return t, i + len(dateLayout), true
}

// looksLikeDate checks the "dddd-dd-ddT" prefix.
func looksLikeDate(s string, i int) bool {
	if len(s)-i < 11 {
		return false
	}
	for k, c := range []byte(s[i : i+11]) {
		switch k {
		case 4, 7:
			if c != '-' {
				return false
			}
		case 10:
			if c != 'T' {
				return false
			}
		default:
			if !isDigit(c) {
				return false
			}
		}
	}
	return true
}
