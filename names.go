package prepfan

// names.go makes derived column names safe for downstream modeling code.

import (
	"fmt"
	"strings"
)

// sanitizeName maps an arbitrary level string to a legal downstream identifier: ASCII letters
// are lowercased, anything not alphanumeric becomes '_', a leading minus becomes "minus_",
// a leading digit gets an "x_" prefix, and runs of '_' collapse to one.
func sanitizeName(lvl string) string {
	var sb strings.Builder

	minus := strings.HasPrefix(lvl, "-")
	if minus {
		lvl = lvl[1:]
	}

	lastUnder := false

	for _, r := range lvl {
		var out rune

		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			out = r
		case r >= 'A' && r <= 'Z':
			out = r + ('a' - 'A')
		default:
			out = '_'
		}

		if out == '_' {
			if lastUnder {
				continue
			}

			lastUnder = true
		} else {
			lastUnder = false
		}

		sb.WriteRune(out)
	}

	name := sb.String()

	if minus {
		name = "minus_" + name
	}

	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "x_" + name
	}

	return name
}

// uniqueNames resolves collisions after sanitization by appending _2, _3, ...
// The input order is preserved; the first occurrence keeps the bare name.
func uniqueNames(names []string) []string {
	seen := make(map[string]int)
	out := make([]string, len(names))

	for ind, nm := range names {
		seen[nm]++
		if seen[nm] == 1 {
			out[ind] = nm

			continue
		}

		for {
			cand := fmt.Sprintf("%s_%d", nm, seen[nm])
			if _, ok := seen[cand]; !ok {
				seen[cand] = 1
				out[ind] = cand

				break
			}

			seen[nm]++
		}
	}

	return out
}
