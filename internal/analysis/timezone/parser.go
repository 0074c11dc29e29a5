package timezone

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrParse 表示无法从文本中识别出时间。
var ErrParse = errors.New("could not parse time")

// ParseError carries the text that failed to parse.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("could not parse time: %q", e.Input)
	}
	return fmt.Sprintf("could not parse time %q: %s", e.Input, e.Reason)
}

// Is lets errors.Is(err, ErrParse) match any *ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// ParsedTime is a wall-clock time of day.
type ParsedTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// String renders the time in 24-hour HH:MM form.
func (p ParsedTime) String() string {
	return fmt.Sprintf("%02d:%02d", p.Hour, p.Minute)
}

type clockFormat int

const (
	twelveHour clockFormat = iota
	twentyFourHour
)

type timePattern struct {
	re     *regexp.Regexp
	format clockFormat
}

// Anchored at the start of the input; order is priority.
var timePatterns = []timePattern{
	{re: regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(am|pm)\b`), format: twelveHour},
	{re: regexp.MustCompile(`^(\d{1,2})()\s*(am|pm)\b`), format: twelveHour},
	{re: regexp.MustCompile(`^(\d{1,2}):(\d{2})`), format: twentyFourHour},
}

// Unanchored forms used to locate a time inside a sentence.
var timeSearchPattern = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:am|pm)\b|\b\d{1,2}:\d{2}\b`)

// ParseTime parses "2pm", "2:30 PM" or "14:00" into a ParsedTime.
func ParseTime(text string) (ParsedTime, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return ParsedTime{}, &ParseError{Input: text, Reason: "empty input"}
	}

	for _, pattern := range timePatterns {
		groups := pattern.re.FindStringSubmatch(normalized)
		if groups == nil {
			continue
		}

		hour, _ := strconv.Atoi(groups[1])
		minute := 0
		if groups[2] != "" {
			minute, _ = strconv.Atoi(groups[2])
		}

		if pattern.format == twentyFourHour {
			if hour > 23 || minute > 59 {
				return ParsedTime{}, &ParseError{Input: text, Reason: "value out of range"}
			}
			return ParsedTime{Hour: hour, Minute: minute}, nil
		}

		if hour < 1 || hour > 12 || minute > 59 {
			return ParsedTime{}, &ParseError{Input: text, Reason: "value out of range"}
		}
		return ParsedTime{Hour: to24Hour(hour, groups[3]), Minute: minute}, nil
	}

	return ParsedTime{}, &ParseError{Input: text}
}

func to24Hour(hour int, period string) int {
	switch {
	case period == "pm" && hour != 12:
		return hour + 12
	case period == "am" && hour == 12:
		return 0
	default:
		return hour
	}
}

// FindTimeExpression returns the first time-looking fragment inside text.
func FindTimeExpression(text string) (string, bool) {
	match := timeSearchPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}

// FindAllTimeExpressions returns every parseable time fragment in text, in order.
// Fragments of machine timestamps ("2025-01-15T14:00:00-05:00") are skipped.
func FindAllTimeExpressions(text string) []ParsedTime {
	var out []ParsedTime
	for _, span := range timeSearchPattern.FindAllStringIndex(text, -1) {
		if insideTimestamp(text, span[0], span[1]) {
			continue
		}
		if parsed, err := ParseTime(text[span[0]:span[1]]); err == nil {
			out = append(out, parsed)
		}
	}
	return out
}

func insideTimestamp(text string, start, end int) bool {
	if start > 0 && strings.IndexByte("0123456789T:-+/", text[start-1]) >= 0 {
		return true
	}
	return end < len(text) && strings.IndexByte("0123456789:", text[end]) >= 0
}
