package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
)

var (
	// ErrSlotTaken 目标时段已被预约。
	ErrSlotTaken = errors.New("slot already booked")
	// ErrSlotUnavailable 目标时段不在可预约范围内。
	ErrSlotUnavailable = errors.New("slot is not offered")
	// ErrInvalidRange 查询区间非法。
	ErrInvalidRange = errors.New("invalid date range")
	// ErrInvalidBooking 预约请求缺少必要信息。
	ErrInvalidBooking = errors.New("invalid booking request")
)

// DefaultAlternatives is how many nearby slots are suggested when none is given.
const DefaultAlternatives = 3

// maxRangeDays 限制单次区间查询的天数。
const maxRangeDays = 31

// SlotLength is the length of a generated slot.
const SlotLength = 30 * time.Minute

// Backend is a calendar provider that can list open slots and book them.
type Backend interface {
	Name() string
	CheckAvailability(ctx context.Context, day time.Time) ([]calendarModel.TimeSlot, error)
	CheckRange(ctx context.Context, start, end time.Time) ([]calendarModel.TimeSlot, error)
	BookMeeting(ctx context.Context, req calendarModel.BookingRequest) (calendarModel.BookingConfirmation, error)
}

// NearestAlternatives 从 preferred 当天 09:00 起的 7 天内查找空闲时段，按与 preferred 的距离排序。
func NearestAlternatives(ctx context.Context, backend Backend, preferred time.Time, limit int) ([]calendarModel.TimeSlot, error) {
	if limit <= 0 {
		limit = DefaultAlternatives
	}

	y, m, d := preferred.Date()
	start := time.Date(y, m, d, 9, 0, 0, 0, preferred.Location())
	end := start.AddDate(0, 0, 7)

	slots, err := backend.CheckRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return absDuration(slots[i].Start.Sub(preferred)) < absDuration(slots[j].Start.Sub(preferred))
	})

	if len(slots) > limit {
		slots = slots[:limit]
	}
	return slots, nil
}

// NewBookingID formats a booking id from the booking time. The random suffix
// keeps bookings made within the same second apart.
func NewBookingID(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ENR-" + at.Format("20060102150405") + "-" + suffix
}

func validateBooking(req calendarModel.BookingRequest) error {
	if strings.TrimSpace(req.Contact.Name) == "" {
		return fmt.Errorf("%w: contact name is required", ErrInvalidBooking)
	}
	if _, err := mail.ParseAddress(req.Contact.Email); err != nil {
		return fmt.Errorf("%w: contact email %q is invalid", ErrInvalidBooking, req.Contact.Email)
	}
	if req.Slot.Start.IsZero() {
		return fmt.Errorf("%w: slot start is required", ErrInvalidBooking)
	}
	if !req.Slot.End.IsZero() && !req.Slot.End.After(req.Slot.Start) {
		return fmt.Errorf("%w: slot must end after it starts", ErrInvalidBooking)
	}
	return nil
}

func validateRange(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return fmt.Errorf("%w: ranges are limited to %d days", ErrInvalidRange, maxRangeDays)
	}
	return nil
}

// daysBetween yields the midnight of each calendar day touched by [start, end).
func daysBetween(start, end time.Time) []time.Time {
	var days []time.Time
	for day := midnight(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

func withinRange(slots []calendarModel.TimeSlot, start, end time.Time) []calendarModel.TimeSlot {
	out := slots[:0]
	for _, slot := range slots {
		if !slot.Start.Before(start) && slot.Start.Before(end) {
			out = append(out, slot)
		}
	}
	return out
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
