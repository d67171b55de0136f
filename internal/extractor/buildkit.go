package extractor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/velofit/framesearch/internal/pipeline"
)

// componentKeywords buckets spec-sheet attribute names into build-kit slots.
// The source pages label components in Polish. Buckets are matched in order
// so categorization is deterministic when keywords overlap.
var componentKeywords = []struct {
	bucket   string
	keywords []string
}{
	{"groupset", []string{
		"przerzutka", "manetki", "korba", "kaseta", "łańcuch",
		"oś suportu", "mechanizm korbowy", "hamulce", "hamulcowy",
		"klamkomanetki",
	}},
	{"wheelset", []string{"piasta", "obręcze", "obręcz", "szprychy", "nyple", "koła", "koło"}},
	{"cockpit", []string{
		"kierownica", "wspornik", "siodło", "stery", "chwyty",
		"owijka", "pedał", "sztyca", "mostek",
	}},
	{"tires", []string{"opony", "opona"}},
}

// componentSet accumulates categorized spec-sheet entries while preserving
// first-seen order within each bucket.
type componentSet struct {
	buckets map[string][]string
	seen    map[string]struct{}
}

func newComponentSet() *componentSet {
	return &componentSet{
		buckets: make(map[string][]string),
		seen:    make(map[string]struct{}),
	}
}

// Add categorizes one attribute row. Returns false when the attribute is not
// a recognized component.
func (c *componentSet) Add(attrName, attrContent string) bool {
	lower := strings.ToLower(attrName)
	for _, group := range componentKeywords {
		matched := false
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		switch {
		case group.bucket == "tires":
			c.append(group.bucket, attrContent)
		case group.bucket == "wheelset" && strings.Contains(lower, "rozmiar"):
			// Wheel dimensions masquerade as wheelset rows; skip them.
		default:
			c.append(group.bucket, capitalize(attrName)+": "+attrContent)
		}
		return true
	}
	return false
}

func (c *componentSet) append(bucket, entry string) {
	key := bucket + "\x00" + entry
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.buckets[bucket] = append(c.buckets[bucket], entry)
}

// BuildKit assembles the final kit. The kit name is derived from the rear
// derailleur entry when one is present, since that component names the
// drivetrain tier ("Shimano Deore", "SRAM Apex").
func (c *componentSet) BuildKit() pipeline.BuildKit {
	kit := pipeline.BuildKit{
		Name:     "Standard Build",
		Groupset: strings.Join(c.buckets["groupset"], " | "),
		Wheelset: strings.Join(c.buckets["wheelset"], " | "),
		Cockpit:  strings.Join(c.buckets["cockpit"], " | "),
		Tires:    strings.Join(c.buckets["tires"], " | "),
	}
	if name, ok := kitNameFromGroupset(c.buckets["groupset"]); ok {
		kit.Name = name
	}
	return kit
}

func kitNameFromGroupset(groupset []string) (string, bool) {
	var rd string
	for _, entry := range groupset {
		if strings.Contains(entry, "Przerzutka tył") || strings.Contains(entry, "Przerzutka tylna") {
			rd = entry
			break
		}
	}
	if rd == "" {
		return "", false
	}
	_, val, ok := strings.Cut(rd, ": ")
	if !ok {
		return "", false
	}
	words := strings.Fields(val)
	switch {
	case len(words) >= 3 && strings.HasPrefix(words[2], "R"):
		// Shimano road tiers carry the RXXXX series token.
		return strings.Join(words[:3], " "), true
	case len(words) >= 2:
		return strings.Join(words[:2], " "), true
	case len(words) == 1:
		return words[0], true
	}
	return "", false
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
