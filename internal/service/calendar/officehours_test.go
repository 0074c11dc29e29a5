package calendar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
)

func newOfficeHours(t *testing.T) *OfficeHoursBackend {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return NewOfficeHoursBackend(loc, "https://calendly.com/enrique/30min",
		WithBookingClock(func() time.Time { return time.Date(2025, time.January, 15, 14, 0, 0, 0, time.UTC) }))
}

func TestOfficeHoursWeekday(t *testing.T) {
	b := newOfficeHours(t)
	wednesday := time.Date(2025, time.January, 15, 12, 0, 0, 0, b.loc)

	slots, err := b.CheckAvailability(context.Background(), wednesday)
	require.NoError(t, err)
	require.Len(t, slots, 16)
	assert.Equal(t, 9, slots[0].Start.Hour())
	assert.Equal(t, 16, slots[15].Start.Hour())
	assert.Equal(t, 30, slots[15].Start.Minute())
	assert.Equal(t, b.loc, slots[0].Start.Location())
}

func TestOfficeHoursWeekendEmpty(t *testing.T) {
	b := newOfficeHours(t)
	saturday := time.Date(2025, time.January, 18, 0, 0, 0, 0, b.loc)

	slots, err := b.CheckAvailability(context.Background(), saturday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestOfficeHoursBooking(t *testing.T) {
	b := newOfficeHours(t)
	start := time.Date(2025, time.January, 16, 10, 0, 0, 0, b.loc)
	req := calendarModel.BookingRequest{
		Slot:    calendarModel.TimeSlot{Start: start},
		Contact: calendarModel.Contact{Name: "Ada", Email: "ada@example.com"},
	}

	confirmation, err := b.BookMeeting(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, calendarModel.StatusBooked, confirmation.Status)
	assert.Regexp(t, `^ENR-20250115090000-[0-9A-F]{6}$`, confirmation.BookingID)

	_, err = b.BookMeeting(context.Background(), req)
	assert.ErrorIs(t, err, ErrSlotTaken)

	slots, err := b.CheckAvailability(context.Background(), start)
	require.NoError(t, err)
	assert.Len(t, slots, 15)
	for _, slot := range slots {
		assert.False(t, slot.Start.Equal(start))
	}
	assert.Len(t, b.Bookings(), 1)
}

func TestOfficeHoursRejectsUnofferedSlots(t *testing.T) {
	b := newOfficeHours(t)
	contact := calendarModel.Contact{Name: "Ada", Email: "ada@example.com"}

	for _, start := range []time.Time{
		time.Date(2025, time.January, 16, 8, 30, 0, 0, b.loc),
		time.Date(2025, time.January, 16, 17, 0, 0, 0, b.loc),
		time.Date(2025, time.January, 16, 10, 15, 0, 0, b.loc),
		time.Date(2025, time.January, 18, 10, 0, 0, 0, b.loc),
	} {
		_, err := b.BookMeeting(context.Background(), calendarModel.BookingRequest{
			Slot:    calendarModel.TimeSlot{Start: start},
			Contact: contact,
		})
		assert.ErrorIs(t, err, ErrSlotUnavailable, start.String())
	}
}

func TestOfficeHoursConcurrentBookingOnlyOneWins(t *testing.T) {
	b := newOfficeHours(t)
	start := time.Date(2025, time.January, 16, 11, 0, 0, 0, b.loc)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.BookMeeting(context.Background(), calendarModel.BookingRequest{
				Slot:    calendarModel.TimeSlot{Start: start},
				Contact: calendarModel.Contact{Name: "Ada", Email: "ada@example.com"},
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestNearestAlternatives(t *testing.T) {
	b := newOfficeHours(t)
	preferred := time.Date(2025, time.January, 16, 13, 10, 0, 0, b.loc)

	slots, err := NearestAlternatives(context.Background(), Instrument(b, zap.NewNop()), preferred, 0)
	require.NoError(t, err)
	require.Len(t, slots, DefaultAlternatives)
	assert.Equal(t, time.Date(2025, time.January, 16, 13, 0, 0, 0, b.loc), slots[0].Start)
	assert.Equal(t, time.Date(2025, time.January, 16, 13, 30, 0, 0, b.loc), slots[1].Start)
	assert.Equal(t, time.Date(2025, time.January, 16, 12, 30, 0, 0, b.loc), slots[2].Start)
}

func TestNearestAlternativesSkipsWeekend(t *testing.T) {
	b := newOfficeHours(t)
	saturday := time.Date(2025, time.January, 18, 10, 0, 0, 0, b.loc)

	slots, err := NearestAlternatives(context.Background(), b, saturday, 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2025, time.January, 20, 9, 0, 0, 0, b.loc), slots[0].Start)
}

func TestNewBookingID(t *testing.T) {
	at := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	first, second := NewBookingID(at), NewBookingID(at)
	assert.Regexp(t, `^ENR-20250102030405-[0-9A-F]{6}$`, first)
	assert.Regexp(t, `^ENR-20250102030405-[0-9A-F]{6}$`, second)
	assert.NotEqual(t, first, second, "same second, different bookings")
}

func TestOfficeHoursBookingsInSameSecondGetDistinctIDs(t *testing.T) {
	b := newOfficeHours(t)
	ids := make(map[string]struct{})
	for _, hour := range []int{10, 11} {
		confirmation, err := b.BookMeeting(context.Background(), calendarModel.BookingRequest{
			Slot:    calendarModel.TimeSlot{Start: time.Date(2025, time.January, 16, hour, 0, 0, 0, b.loc)},
			Contact: calendarModel.Contact{Name: "Ada", Email: "ada@example.com"},
		})
		require.NoError(t, err)
		ids[confirmation.BookingID] = struct{}{}
	}
	assert.Len(t, ids, 2)
}
