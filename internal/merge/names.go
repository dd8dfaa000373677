package merge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// importedMarker is appended to a colliding computer name, followed by the
// index and a closing parenthesis.
const importedMarker = " (Imported #"

// DisambiguatedName returns base with the import suffix for index n.
func DisambiguatedName(base string, n int) string {
	return base + importedMarker + strconv.Itoa(n) + ")"
}

// nextSuffix returns the lowest index not yet used for base among the
// target's computer names.
func nextSuffix(ctx context.Context, t Target, base string) (int, error) {
	prefix := base + importedMarker
	names, err := t.ComputerNamesWithPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list computer names: %w", err)
	}

	used := make(map[int]bool, len(names))
	for _, name := range names {
		if n, ok := suffixIndex(name, prefix); ok {
			used[n] = true
		}
	}
	n := 0
	for used[n] {
		n++
	}
	return n, nil
}

// suffixIndex parses the index out of a disambiguated name. Names that only
// look similar, such as "x (Imported #1) copy", are ignored.
func suffixIndex(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, ")")
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
