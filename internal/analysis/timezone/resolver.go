package timezone

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Alias maps a user-facing spelling to a canonical zone identifier.
type Alias struct {
	Key  string `json:"key"`
	Zone string `json:"zone"`
}

// aliases is the only copy of the abbreviation table; lookup order matters.
var aliases = []Alias{
	{Key: "pst", Zone: "America/Los_Angeles"},
	{Key: "pdt", Zone: "America/Los_Angeles"},
	{Key: "pacific", Zone: "America/Los_Angeles"},
	{Key: "cst", Zone: "America/Chicago"},
	{Key: "cdt", Zone: "America/Chicago"},
	{Key: "central", Zone: "America/Chicago"},
	{Key: "mst", Zone: "America/Denver"},
	{Key: "mdt", Zone: "America/Denver"},
	{Key: "mountain", Zone: "America/Denver"},
	{Key: "est", Zone: "America/New_York"},
	{Key: "edt", Zone: "America/New_York"},
	{Key: "eastern", Zone: "America/New_York"},
	{Key: "utc", Zone: "UTC"},
	{Key: "gmt", Zone: "UTC"},
}

var aliasIndex = func() map[string]string {
	index := make(map[string]string, len(aliases))
	for _, alias := range aliases {
		index[alias.Key] = alias.Zone
	}
	return index
}()

var hintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`([a-z]+)[\s-]+time\b`),
	regexp.MustCompile(`([a-z]+)[\s-]+timezone\b`),
	regexp.MustCompile(`([a-z]+)[\s-]+tz\b`),
	regexp.MustCompile(`\bin[\s-]+([a-z]+)`),
	regexp.MustCompile(`([a-z]+)[\s-]+zone\b`),
}

// Aliases returns a copy of the lookup table in lookup order.
func Aliases() []Alias {
	return append([]Alias(nil), aliases...)
}

// Resolve maps a free-text timezone hint to a canonical zone identifier.
func Resolve(text string) (string, bool) {
	normalized := strings.ToLower(text)
	if strings.TrimSpace(normalized) == "" {
		return "", false
	}

	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(normalized) {
		token := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if token != "" {
			tokens[token] = struct{}{}
		}
	}

	for _, alias := range aliases {
		if _, ok := tokens[alias.Key]; ok {
			return alias.Zone, true
		}
	}

	for _, pattern := range hintPatterns {
		match := pattern.FindStringSubmatch(normalized)
		if match == nil {
			continue
		}
		if zone, ok := aliasIndex[match[1]]; ok {
			return zone, true
		}
	}

	return "", false
}

// Normalize accepts an IANA id or anything Resolve understands, such as "PST".
// Empty input is valid and stays empty.
func Normalize(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true
	}
	// tzdata also ships fixed-offset "EST" and "MST"; the aliases win.
	if zone, ok := aliasIndex[strings.ToLower(value)]; ok {
		return zone, true
	}
	if _, err := time.LoadLocation(value); err == nil {
		return value, true
	}
	return Resolve(value)
}
