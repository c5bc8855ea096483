package dataset

import (
	"slices"
	"strings"
)

// NaturalCompare orders strings by alternating non-digit and digit runs.
// Digit runs compare by numeric value and non-digit runs compare
// case-insensitively, so "batch_2" sorts before "batch_10". Names whose runs
// are all equal fall back to a plain byte comparison to keep the order total.
func NaturalCompare(a, b string) int {
	ka, kb := naturalKey(a), naturalKey(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		var c int
		if i%2 == 0 {
			c = strings.Compare(ka[i], kb[i])
		} else {
			c = compareDigits(ka[i], kb[i])
		}
		if c != 0 {
			return c
		}
	}
	if len(ka) != len(kb) {
		if len(ka) < len(kb) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func NaturalLess(a, b string) bool {
	return NaturalCompare(a, b) < 0
}

func NaturalSort(names []string) {
	slices.SortFunc(names, NaturalCompare)
}

// naturalKey splits s into runs. Even positions hold lowercased text (possibly
// empty), odd positions hold digit runs, so keys of different strings line up
// position by position.
func naturalKey(s string) []string {
	key := make([]string, 0, 4)
	start := 0
	inDigits := false
	for i := 0; i < len(s); i++ {
		digit := isDigit(s[i])
		if digit == inDigits {
			continue
		}
		key = appendRun(key, s[start:i], inDigits)
		start = i
		inDigits = digit
	}
	key = appendRun(key, s[start:], inDigits)
	if len(key)%2 == 0 {
		// A trailing digit run is followed by an empty text run.
		key = append(key, "")
	}
	return key
}

func appendRun(key []string, run string, digits bool) []string {
	if digits {
		return append(key, run)
	}
	return append(key, strings.ToLower(run))
}

func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
