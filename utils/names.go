// utils/names.go
package utils

import "strings"

// NormalizeName trims surrounding whitespace (including full-width spaces) so
// configured names compare equal to what the API returns.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// NameSet builds a lookup of normalized names; blanks are dropped.
func NameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = NormalizeName(n); n != "" {
			set[n] = true
		}
	}
	return set
}
