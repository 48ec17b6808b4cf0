// Package strings holds small string-slice helpers for request parsing.
package strings

import "strings"

// DedupeTrimmed trims each value, drops blanks and keeps the first occurrence
// of each remaining value. With fold set, values are lowercased first so
// case variants collapse. Order is preserved.
func DedupeTrimmed(values []string, fold bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
