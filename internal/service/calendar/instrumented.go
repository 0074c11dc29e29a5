package calendar

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/metrics"
	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
)

type instrumented struct {
	next   Backend
	logger *zap.Logger
}

// Instrument wraps a backend with request metrics and debug logging.
func Instrument(next Backend, logger *zap.Logger) Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{next: next, logger: logger.Named("calendar")}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) observe(method string, started time.Time, err error) {
	metrics.CalendarRequests.WithLabelValues(i.next.Name(), method, metrics.StatusOf(err)).Inc()
	metrics.CalendarDuration.WithLabelValues(i.next.Name(), method).Observe(time.Since(started).Seconds())
	if err != nil {
		i.logger.Warn("calendar call failed", zap.String("backend", i.next.Name()), zap.String("method", method), zap.Error(err))
	}
}

func (i *instrumented) CheckAvailability(ctx context.Context, day time.Time) ([]calendarModel.TimeSlot, error) {
	started := time.Now()
	slots, err := i.next.CheckAvailability(ctx, day)
	i.observe("check_availability", started, err)
	i.logger.Debug("availability checked", zap.Time("day", day), zap.Int("slots", len(slots)))
	return slots, err
}

func (i *instrumented) CheckRange(ctx context.Context, start, end time.Time) ([]calendarModel.TimeSlot, error) {
	started := time.Now()
	slots, err := i.next.CheckRange(ctx, start, end)
	i.observe("check_range", started, err)
	return slots, err
}

func (i *instrumented) BookMeeting(ctx context.Context, req calendarModel.BookingRequest) (calendarModel.BookingConfirmation, error) {
	started := time.Now()
	confirmation, err := i.next.BookMeeting(ctx, req)
	i.observe("book_meeting", started, err)
	if err == nil {
		i.logger.Info("meeting booked", zap.String("bookingId", confirmation.BookingID), zap.Time("start", confirmation.Start))
	}
	return confirmation, err
}
