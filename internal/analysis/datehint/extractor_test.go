package datehint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractWeekdayPhrase(t *testing.T) {
	hint, ok := Extract("let's meet next Tuesday")
	require.True(t, ok)
	assert.Equal(t, DateHint{Text: "next Tuesday", Kind: Relative, Pattern: PatternWeekPhrase}, hint)
}

func TestExtractNone(t *testing.T) {
	_, ok := Extract("hello there")
	assert.False(t, ok)

	// Substrings of longer words are not hints.
	_, ok = Extract("todays mondays")
	assert.False(t, ok)
}

func TestExtractPriorityOrder(t *testing.T) {
	cases := []struct {
		text string
		want DateHint
	}{
		{"Tomorrow or next week?", DateHint{Text: "Tomorrow", Kind: Relative, Pattern: PatternDay}},
		{"sometime this week", DateHint{Text: "this week", Kind: Relative, Pattern: PatternWeekPhrase}},
		{"on 2025-02-03 or friday", DateHint{Text: "friday", Kind: Relative, Pattern: PatternWeekday}},
		{"how about 1/31/2025 or 2025-02-03", DateHint{Text: "1/31/2025", Kind: Literal, Pattern: PatternUSDate}},
		{"book 2025-02-03 please", DateHint{Text: "2025-02-03", Kind: Literal, Pattern: PatternISODate}},
	}
	for _, tc := range cases {
		got, ok := Extract(tc.text)
		require.True(t, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func resolveText(t *testing.T, text string, ref time.Time) time.Time {
	t.Helper()
	hint, ok := Extract(text)
	require.True(t, ok, text)
	got, err := Resolve(hint, ref)
	require.NoError(t, err, text)
	return got
}

func TestResolveRelativeFromWednesday(t *testing.T) {
	wednesday := time.Date(2025, time.January, 15, 16, 45, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"today":          date(2025, time.January, 15),
		"tomorrow":       date(2025, time.January, 16),
		"this week":      date(2025, time.January, 15),
		"next week":      date(2025, time.January, 20),
		"next tuesday":   date(2025, time.January, 21),
		"next friday":    date(2025, time.January, 24),
		"this friday":    date(2025, time.January, 17),
		"friday":         date(2025, time.January, 17),
		"Wednesday":      date(2025, time.January, 15),
		"monday":         date(2025, time.January, 20),
		"next  Saturday": date(2025, time.January, 25),
	}
	for text, want := range cases {
		assert.Equal(t, want, resolveText(t, text, wednesday), text)
	}
}

func TestResolveNextWeekdayAcrossWeekBoundary(t *testing.T) {
	friday := date(2025, time.January, 17)
	assert.Equal(t, date(2025, time.January, 20), resolveText(t, "next monday", friday))

	monday := date(2025, time.January, 13)
	assert.Equal(t, date(2025, time.January, 24), resolveText(t, "next friday", monday))

	sunday := date(2025, time.January, 19)
	assert.Equal(t, date(2025, time.January, 20), resolveText(t, "next week", sunday))
}

func TestResolveLiteralDates(t *testing.T) {
	ref := date(2025, time.January, 15)
	assert.Equal(t, date(2025, time.January, 31), resolveText(t, "01/31/2025", ref))
	assert.Equal(t, date(2025, time.February, 3), resolveText(t, "2025-02-03", ref))
}

func TestResolveKeepsReferenceLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	ref := time.Date(2025, time.March, 8, 23, 0, 0, 0, loc)
	got := resolveText(t, "tomorrow", ref)
	assert.Equal(t, time.Date(2025, time.March, 9, 0, 0, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestResolveInvalidLiteral(t *testing.T) {
	hint, ok := Extract("13/45/2025")
	require.True(t, ok)

	_, err := Resolve(hint, date(2025, time.January, 15))
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveUnknownPattern(t *testing.T) {
	_, err := Resolve(DateHint{Text: "someday", Pattern: "vibes"}, date(2025, time.January, 15))
	assert.ErrorIs(t, err, ErrUnresolvable)
}
