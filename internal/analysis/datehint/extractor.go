package datehint

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind separates relative keywords from literal calendar dates.
type Kind string

const (
	Relative Kind = "relative"
	Literal  Kind = "literal"
)

// Pattern names, in extraction priority order.
const (
	PatternDay        = "day"
	PatternWeekPhrase = "week-phrase"
	PatternWeekday    = "weekday"
	PatternUSDate     = "mm/dd/yyyy"
	PatternISODate    = "yyyy-mm-dd"
)

// ErrUnresolvable is returned when a hint cannot become a calendar date.
var ErrUnresolvable = errors.New("date hint cannot be resolved")

// DateHint is a coarse date reference found in free text.
type DateHint struct {
	Text    string `json:"text"`
	Kind    Kind   `json:"kind"`
	Pattern string `json:"pattern"`
}

type hintPattern struct {
	name string
	kind Kind
	re   *regexp.Regexp
}

const weekdayAlternation = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

var hintPatterns = []hintPattern{
	{name: PatternDay, kind: Relative, re: regexp.MustCompile(`(?i)\b(?:today|tomorrow)\b`)},
	{name: PatternWeekPhrase, kind: Relative, re: regexp.MustCompile(`(?i)\b(?:this|next)\s+(?:week|` + weekdayAlternation + `)\b`)},
	{name: PatternWeekday, kind: Relative, re: regexp.MustCompile(`(?i)\b(?:` + weekdayAlternation + `)\b`)},
	{name: PatternUSDate, kind: Literal, re: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)},
	{name: PatternISODate, kind: Literal, re: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
}

// Extract returns the first date reference in text, matched verbatim.
func Extract(text string) (DateHint, bool) {
	for _, p := range hintPatterns {
		if match := p.re.FindString(text); match != "" {
			return DateHint{Text: match, Kind: p.kind, Pattern: p.name}, true
		}
	}
	return DateHint{}, false
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Resolve turns a hint into midnight of the date it names, relative to ref and
// in ref's location.
//
//	today      -> ref
//	tomorrow   -> ref + 1 day
//	this week  -> ref
//	next week  -> Monday of the following Monday-Sunday week
//	next <day> -> that weekday inside the following week
//	<day>, this <day> -> the upcoming occurrence, today included
func Resolve(hint DateHint, ref time.Time) (time.Time, error) {
	day := midnight(ref)
	text := strings.Join(strings.Fields(strings.ToLower(hint.Text)), " ")

	switch hint.Pattern {
	case PatternDay:
		switch text {
		case "today":
			return day, nil
		case "tomorrow":
			return day.AddDate(0, 0, 1), nil
		}
	case PatternWeekPhrase:
		qualifier, rest, _ := strings.Cut(text, " ")
		if rest == "week" {
			if qualifier == "this" {
				return day, nil
			}
			return startOfNextWeek(day), nil
		}
		if wd, ok := weekdays[rest]; ok {
			if qualifier == "this" {
				return upcoming(day, wd), nil
			}
			return startOfNextWeek(day).AddDate(0, 0, mondayOffset(wd)), nil
		}
	case PatternWeekday:
		if wd, ok := weekdays[text]; ok {
			return upcoming(day, wd), nil
		}
	case PatternUSDate:
		return parseLiteral("1/2/2006", hint.Text, ref.Location())
	case PatternISODate:
		return parseLiteral("2006-01-02", hint.Text, ref.Location())
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvable, hint.Text)
}

func parseLiteral(layout, value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	return t, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func mondayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func startOfNextWeek(day time.Time) time.Time {
	return day.AddDate(0, 0, 7-mondayOffset(day.Weekday()))
}

func upcoming(day time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, delta)
}
