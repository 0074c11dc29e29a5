package intent

import (
	"strings"
	"unicode"
)

// Category 表示一条消息的意图分类。
type Category string

const (
	Booking      Category = "booking"
	Persona      Category = "persona"
	Availability Category = "availability"
	General      Category = "general"
)

// Match explains which keyword decided the category.
type Match struct {
	Category Category `json:"category"`
	Keyword  string   `json:"keyword,omitempty"`
}

type bucket struct {
	category Category
	keywords []string
}

// Checked in order; the first bucket with a hit wins.
var buckets = []bucket{
	{
		category: Booking,
		keywords: []string{
			"book", "booking", "schedule", "scheduling", "reschedule", "meeting", "meetings",
			"appointment", "reserve", "set up a call", "set up a meeting", "hop on a call",
			"calendly", "invite", "sign me up",
		},
	},
	{
		category: Persona,
		keywords: []string{
			"who are you", "who is enrique", "about enrique", "about you", "about yourself",
			"tell me about", "background", "interests", "hobbies", "projects", "experience",
			"what do you do", "what does enrique do", "studying", "expertise", "skills",
		},
	},
	{
		category: Availability,
		keywords: []string{
			"available", "availability", "free", "busy", "open slot", "open slots",
			"when can", "what times", "what time works", "calendar", "slots",
		},
	},
}

// Classify maps text to exactly one category, defaulting to General.
func Classify(text string) Category {
	return Explain(text).Category
}

// Explain is Classify plus the keyword that triggered the decision.
func Explain(text string) Match {
	haystack := normalize(text)
	if strings.TrimSpace(haystack) == "" {
		return Match{Category: General}
	}

	for _, b := range buckets {
		for _, keyword := range b.keywords {
			if strings.Contains(haystack, " "+keyword+" ") {
				return Match{Category: b.category, Keyword: keyword}
			}
		}
	}
	return Match{Category: General}
}

// Categories lists every category in priority order, General last.
func Categories() []Category {
	out := make([]Category, 0, len(buckets)+1)
	for _, b := range buckets {
		out = append(out, b.category)
	}
	return append(out, General)
}

// normalize lowercases, turns punctuation into spaces, collapses whitespace and
// pads both ends so keywords match on word boundaries.
func normalize(text string) string {
	var builder strings.Builder
	builder.Grow(len(text) + 2)
	builder.WriteByte(' ')

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if r == '\'' || r == '’' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			builder.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		builder.WriteByte(' ')
	}
	return builder.String()
}
