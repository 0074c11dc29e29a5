package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
)

// OfficeHoursBackend 在内存中提供工作日 09:00-17:00、每 30 分钟一个的时段。
type OfficeHoursBackend struct {
	mu       sync.RWMutex
	loc      *time.Location
	link     string
	openHour int
	endHour  int
	now      func() time.Time
	booked   map[int64]calendarModel.BookingConfirmation
}

// OfficeHoursOption customizes an OfficeHoursBackend.
type OfficeHoursOption func(*OfficeHoursBackend)

// WithHours overrides the working window.
func WithHours(open, end int) OfficeHoursOption {
	return func(b *OfficeHoursBackend) {
		b.openHour, b.endHour = open, end
	}
}

// WithBookingClock overrides the clock used for booking ids.
func WithBookingClock(now func() time.Time) OfficeHoursOption {
	return func(b *OfficeHoursBackend) { b.now = now }
}

// NewOfficeHoursBackend creates the in-memory backend in loc.
func NewOfficeHoursBackend(loc *time.Location, bookingLink string, opts ...OfficeHoursOption) *OfficeHoursBackend {
	if loc == nil {
		loc = time.UTC
	}
	b := &OfficeHoursBackend{
		loc:      loc,
		link:     bookingLink,
		openHour: 9,
		endHour:  17,
		now:      time.Now,
		booked:   make(map[int64]calendarModel.BookingConfirmation),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *OfficeHoursBackend) Name() string { return "office_hours" }

// CheckAvailability lists the open slots of day. Weekends are empty.
func (b *OfficeHoursBackend) CheckAvailability(ctx context.Context, day time.Time) ([]calendarModel.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.openSlots(midnight(day.In(b.loc))), nil
}

// CheckRange lists open slots starting inside [start, end).
func (b *OfficeHoursBackend) CheckRange(ctx context.Context, start, end time.Time) ([]calendarModel.TimeSlot, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var all []calendarModel.TimeSlot
	for _, day := range daysBetween(start.In(b.loc), end.In(b.loc)) {
		all = append(all, b.openSlots(day)...)
	}
	return withinRange(all, start, end), nil
}

// BookMeeting reserves an offered slot. Booking a slot twice fails with ErrSlotTaken.
func (b *OfficeHoursBackend) BookMeeting(ctx context.Context, req calendarModel.BookingRequest) (calendarModel.BookingConfirmation, error) {
	if err := validateBooking(req); err != nil {
		return calendarModel.BookingConfirmation{}, err
	}
	if err := ctx.Err(); err != nil {
		return calendarModel.BookingConfirmation{}, err
	}

	start := req.Slot.Start.In(b.loc)
	if !b.offered(start) {
		return calendarModel.BookingConfirmation{}, fmt.Errorf("%w: %s", ErrSlotUnavailable, start.Format(time.RFC3339))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := start.Unix()
	if _, taken := b.booked[key]; taken {
		return calendarModel.BookingConfirmation{}, fmt.Errorf("%w: %s", ErrSlotTaken, start.Format(time.RFC3339))
	}

	slot := b.slotAt(start)
	confirmation := calendarModel.BookingConfirmation{
		Status:       calendarModel.StatusBooked,
		Start:        slot.Start,
		End:          slot.End,
		InviteeEmail: req.Contact.Email,
		MeetingLink:  slot.BookingURL,
		BookingID:    NewBookingID(b.now().In(b.loc)),
	}
	b.booked[key] = confirmation
	return confirmation, nil
}

// Bookings returns every confirmed booking, unordered.
func (b *OfficeHoursBackend) Bookings() []calendarModel.BookingConfirmation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]calendarModel.BookingConfirmation, 0, len(b.booked))
	for _, c := range b.booked {
		out = append(out, c)
	}
	return out
}

// openSlots must be called with mu held.
func (b *OfficeHoursBackend) openSlots(day time.Time) []calendarModel.TimeSlot {
	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		return nil
	}

	var slots []calendarModel.TimeSlot
	closing := time.Date(day.Year(), day.Month(), day.Day(), b.endHour, 0, 0, 0, b.loc)
	for start := time.Date(day.Year(), day.Month(), day.Day(), b.openHour, 0, 0, 0, b.loc); !start.Add(SlotLength).After(closing); start = start.Add(SlotLength) {
		if _, taken := b.booked[start.Unix()]; taken {
			continue
		}
		slots = append(slots, b.slotAt(start))
	}
	return slots
}

func (b *OfficeHoursBackend) offered(start time.Time) bool {
	if start.Weekday() == time.Saturday || start.Weekday() == time.Sunday {
		return false
	}
	if start.Second() != 0 || start.Nanosecond() != 0 || start.Minute()%30 != 0 {
		return false
	}
	minutes := start.Hour()*60 + start.Minute()
	return minutes >= b.openHour*60 && minutes+int(SlotLength/time.Minute) <= b.endHour*60
}

func (b *OfficeHoursBackend) slotAt(start time.Time) calendarModel.TimeSlot {
	slot := calendarModel.TimeSlot{
		Start:     start,
		End:       start.Add(SlotLength),
		EventType: calendarModel.DefaultEventType,
	}
	if b.link != "" {
		slot.BookingURL = b.link + "?date=" + start.Format("2006-01-02T15:04")
	}
	return slot
}
