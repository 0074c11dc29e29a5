package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	calendarService "github.com/zhouzirui/enrique/backend/internal/service/calendar"
)

var wednesday = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return wednesday }

func newRegistry(t *testing.T, personaPath string) (*Registry, *calendarService.OfficeHoursBackend) {
	t.Helper()
	backend := calendarService.NewOfficeHoursBackend(time.UTC, "https://calendly.com/enrique/30min",
		calendarService.WithBookingClock(clock))

	registry, err := NewRegistry(context.Background(), zaptest.NewLogger(t),
		NewPersonaTool(personaPath),
		NewAvailabilityTool(backend, time.UTC, clock, zaptest.NewLogger(t)),
		NewBookingTool(backend, time.UTC, clock),
		WordCountTool{},
	)
	require.NoError(t, err)
	return registry, backend
}

func TestRegistryInfos(t *testing.T) {
	registry, _ := newRegistry(t, "missing.md")

	infos := registry.Infos()
	require.Len(t, infos, 4)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{PersonaToolName, AvailabilityToolName, BookingToolName, WordCountToolName}, names)
	assert.True(t, registry.Has(BookingToolName))
	assert.NotNil(t, infos[2].ParamsOneOf)
	assert.Nil(t, infos[0].ParamsOneOf)

	_, err := registry.Invoke(context.Background(), "launch_rockets", "{}")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistryDescribe(t *testing.T) {
	registry, _ := newRegistry(t, "missing.md")

	descriptions := registry.Describe()
	require.Len(t, descriptions, 4)

	booking := descriptions[2]
	assert.Equal(t, BookingToolName, booking.Name)
	assert.Equal(t, []any{"name", "email", "start"}, booking.Parameters["required"])
	props := booking.Parameters["properties"].(map[string]any)
	assert.Equal(t, "email", props["email"].(map[string]any)["format"])
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(context.Background(), nil, WordCountTool{}, WordCountTool{})
	assert.Error(t, err)
}

func TestPersonaTool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.md")
	require.NoError(t, os.WriteFile(path, []byte("# Enrique\nAI Studio student."), 0o600))

	out, err := NewPersonaTool(path).InvokableRun(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "AI Studio student")

	out, err = NewPersonaTool(filepath.Join(t.TempDir(), "nope.md")).InvokableRun(context.Background(), "{}")
	require.NoError(t, err)
	assert.Equal(t, PersonaUnavailable, out)
}

func TestAvailabilityTool(t *testing.T) {
	registry, _ := newRegistry(t, "missing.md")

	out, err := registry.Invoke(context.Background(), AvailabilityToolName, `{}`)
	require.NoError(t, err)
	assert.Equal(t, FlexibleCalendar, out)

	out, err = registry.Invoke(context.Background(), AvailabilityToolName, `{"date":"tomorrow"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Available slots for Thursday, January 16 (UTC):"), out)
	assert.Contains(t, out, "\n- 09:00 AM - 09:30 AM")
	assert.Contains(t, out, "\n- 04:30 PM - 05:00 PM")

	// Weekends have no office hours.
	out, err = registry.Invoke(context.Background(), AvailabilityToolName, `{"date":"saturday"}`)
	require.NoError(t, err)
	assert.Equal(t, FlexibleCalendar, out)

	_, err = registry.Invoke(context.Background(), AvailabilityToolName, `{"date":"whenever"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = registry.Invoke(context.Background(), AvailabilityToolName, `{"date":7}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestBookingTool(t *testing.T) {
	registry, backend := newRegistry(t, "missing.md")

	out, err := registry.Invoke(context.Background(), BookingToolName,
		`{"name":"Ada Lovelace","email":"ada@example.com","start":"tomorrow 2pm","notes":"engines"}`)
	require.NoError(t, err)
	bookings := backend.Bookings()
	require.Len(t, bookings, 1)
	assert.Regexp(t, `^ENR-20250115100000-[0-9A-F]{6}$`, bookings[0].BookingID)
	assert.Equal(t, BookingMessage(bookings[0].BookingID,
		"Ada Lovelace <ada@example.com>, Thursday, January 16 at 02:00 PM UTC (engines)"), out)
	assert.True(t, strings.HasPrefix(out, "🎉 Meeting Successfully Booked!\nBooking ID: ENR-"))

	_, err = registry.Invoke(context.Background(), BookingToolName,
		`{"name":"Ada Lovelace","email":"ada@example.com","start":"2025-01-16 14:00"}`)
	assert.ErrorIs(t, err, calendarService.ErrSlotTaken)
}

func TestBookingToolValidatesArguments(t *testing.T) {
	registry, _ := newRegistry(t, "missing.md")

	for _, args := range []string{
		`{"email":"ada@example.com","start":"tomorrow 2pm"}`,
		`{"name":"Ada","email":"not an email","start":"tomorrow 2pm"}`,
		`{"name":"Ada","email":"ada@example.com","start":"tomorrow 2pm","extra":true}`,
		`{"name":"Ada","email":"ada@example.com","start":"someday"}`,
		`not json`,
	} {
		_, err := registry.Invoke(context.Background(), BookingToolName, args)
		assert.ErrorIs(t, err, ErrInvalidArguments, args)
	}
}

func TestParseStart(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ref := time.Date(2025, time.January, 15, 10, 0, 0, 0, ny)

	cases := map[string]time.Time{
		"2025-01-20T15:00:00Z":  time.Date(2025, time.January, 20, 15, 0, 0, 0, time.UTC),
		"2025-01-20 15:00":      time.Date(2025, time.January, 20, 15, 0, 0, 0, ny),
		"next friday at 9:30am": time.Date(2025, time.January, 24, 9, 30, 0, 0, ny),
		"3pm":                   time.Date(2025, time.January, 15, 15, 0, 0, 0, ny),
	}
	for in, want := range cases {
		got, err := ParseStart(in, ref)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s: got %s", in, got)
	}

	_, err = ParseStart("tomorrow", ref)
	assert.Error(t, err)
}

func TestWordCountTool(t *testing.T) {
	var counter tool.InvokableTool = WordCountTool{}
	out, err := counter.InvokableRun(context.Background(), `{"text":"  one two\tthree\n"}`)
	require.NoError(t, err)
	assert.Equal(t, "The text contains 3 words.", out)
}
