package patch

import (
	"strings"
	"unicode"
)

// lineTransform maps a line to the form compared by one search tier.
type lineTransform func(string) string

// searchTiers are tried in order; an earlier tier always wins over a later,
// looser one.
var searchTiers = []lineTransform{
	trimRight,
	strings.TrimSpace,
	normalizeForMatch,
}

// findSequence returns the first index at or after start where needle occurs
// as a contiguous run in haystack, or -1. When endAnchored is set, only the
// window ending at the last line of haystack is considered.
func findSequence(haystack, needle []string, start int, endAnchored bool) int {
	if len(needle) == 0 {
		return start
	}
	if len(needle) > len(haystack) {
		return -1
	}

	maxStart := len(haystack) - len(needle)
	begin := max(start, 0)
	if endAnchored {
		begin = maxStart
	}
	if begin > maxStart {
		return -1
	}

	if idx := searchExact(haystack, needle, begin, maxStart); idx >= 0 {
		return idx
	}
	for _, transform := range searchTiers {
		if idx := searchWithTransform(haystack, needle, begin, maxStart, transform); idx >= 0 {
			return idx
		}
	}
	return -1
}

func searchExact(haystack, needle []string, begin, maxStart int) int {
	first := needle[0]
	for i := begin; i <= maxStart; i++ {
		if haystack[i] != first {
			continue
		}
		if windowMatches(needle, func(j int) string { return haystack[i+j] }) {
			return i
		}
	}
	return -1
}

func searchWithTransform(haystack, needle []string, begin, maxStart int, transform lineTransform) int {
	want := make([]string, len(needle))
	for i, line := range needle {
		want[i] = transform(line)
	}

	cache := make(map[int]string)
	line := func(index int) string {
		if v, ok := cache[index]; ok {
			return v
		}
		v := transform(haystack[index])
		cache[index] = v
		return v
	}

	for i := begin; i <= maxStart; i++ {
		if line(i) != want[0] {
			continue
		}
		if windowMatches(want, func(j int) string { return line(i + j) }) {
			return i
		}
	}
	return -1
}

func windowMatches(needle []string, at func(int) string) bool {
	for j := 1; j < len(needle); j++ {
		if at(j) != needle[j] {
			return false
		}
	}
	return true
}

func isWhitespace(r rune) bool {
	return unicode.IsSpace(r)
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, isWhitespace)
}

// normalizeForMatch trims the line and folds typographic punctuation and
// space variants onto their ASCII equivalents.
func normalizeForMatch(s string) string {
	trimmed := strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		b.WriteRune(normalizeRune(r))
	}
	return b.String()
}

func normalizeRune(r rune) rune {
	switch r {
	case '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2015', '\u2212':
		return '-'
	case '\u2018', '\u2019', '\u201A', '\u201B':
		return '\''
	case '\u201C', '\u201D', '\u201E', '\u201F':
		return '"'
	case '\u00A0', '\u2002', '\u2003', '\u2004', '\u2005', '\u2006',
		'\u2007', '\u2008', '\u2009', '\u200A', '\u202F', '\u205F', '\u3000':
		return ' '
	}
	return r
}
