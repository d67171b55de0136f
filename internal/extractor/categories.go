package extractor

import (
	"sort"
	"strings"
)

// categoryPatterns maps strict filter types to the substrings (Polish and
// English) that appear in vendor breadcrumb categories.
var categoryPatterns = []struct {
	name    string
	matches []string
}{
	{"gravel", []string{"gravel"}},
	{"mtb", []string{"mtb", "górsk"}},
	{"trekking", []string{"trekking"}},
	{"cross", []string{"cross"}},
	{"road", []string{"szos", "road"}},
	{"city", []string{"miejsk", "city"}},
	{"kids", []string{"dzieci", "kids", "junior"}},
	{"touring", []string{"turyst"}},
	{"women", []string{"damsk", "women"}},
}

// SimpleTypes normalizes messy vendor categories into strict filter types.
// Always returns at least ["other"].
func SimpleTypes(categories []string) []string {
	found := make(map[string]struct{})
	for _, raw := range categories {
		cat := strings.ToLower(raw)
		for _, p := range categoryPatterns {
			for _, sub := range p.matches {
				if strings.Contains(cat, sub) {
					found[p.name] = struct{}{}
					break
				}
			}
		}
	}
	if len(found) == 0 {
		return []string{"other"}
	}
	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var materialPatterns = []struct {
	group   string
	matches []string
}{
	{"carbon", []string{"carbon", "węgiel", "węglow"}},
	{"aluminum", []string{"aluminum", "aluminium", "aluninium", "alu"}},
	{"steel", []string{"steel", "stal", "crmo", "chromoly"}},
	{"titanium", []string{"titanium", "tytan"}},
}

// MaterialGroup folds messy frame material names into one of five groups.
func MaterialGroup(material string) string {
	mat := strings.ToLower(material)
	if mat == "" {
		return "other"
	}
	for _, p := range materialPatterns {
		for _, sub := range p.matches {
			if strings.Contains(mat, sub) {
				return p.group
			}
		}
	}
	return "other"
}
