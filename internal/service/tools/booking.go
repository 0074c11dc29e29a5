package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/enrique/backend/internal/analysis/datehint"
	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
	calendarService "github.com/zhouzirui/enrique/backend/internal/service/calendar"
)

var bookingDescriptor = descriptor{
	name: BookingToolName,
	desc: "Book a meeting with Enrique. Requires the proposed date and time, attendee name, and email.",
	args: []argument{
		{name: "name", desc: "Attendee full name.", required: true, minLength: 1},
		{name: "email", desc: "Attendee email address.", required: true, format: "email"},
		{name: "start", desc: "Meeting start: RFC3339, \"YYYY-MM-DD HH:MM\", or a day plus a time such as \"tomorrow 2pm\".", required: true, minLength: 1},
		{name: "notes", desc: "Optional agenda or notes."},
	},
}

type bookingArgs struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Start string `json:"start"`
	Notes string `json:"notes"`
}

// BookingTool books a slot through the calendar backend.
type BookingTool struct {
	backend calendarService.Backend
	loc     *time.Location
	now     func() time.Time
}

var _ tool.InvokableTool = (*BookingTool)(nil)

// NewBookingTool creates the tool; local times are read in loc.
func NewBookingTool(backend calendarService.Backend, loc *time.Location, now func() time.Time) *BookingTool {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BookingTool{backend: backend, loc: loc, now: now}
}

func (t *BookingTool) Info(context.Context) (*schema.ToolInfo, error) {
	return bookingDescriptor.info(), nil
}

func (t *BookingTool) describe() Description { return bookingDescriptor.describe() }

func (t *BookingTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args bookingArgs
	if err := bookingDescriptor.decode(argumentsInJSON, &args); err != nil {
		return "", err
	}

	start, err := ParseStart(args.Start, t.now().In(t.loc))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, BookingToolName, err)
	}

	confirmation, err := t.backend.BookMeeting(ctx, calendarModel.BookingRequest{
		Slot:    calendarModel.TimeSlot{Start: start, End: start.Add(calendarService.SlotLength)},
		Contact: calendarModel.Contact{Name: strings.TrimSpace(args.Name), Email: strings.TrimSpace(args.Email)},
		Notes:   args.Notes,
	})
	if err != nil {
		return "", fmt.Errorf("book meeting: %w", err)
	}

	details := fmt.Sprintf("%s <%s>, %s at %s %s", args.Name, args.Email,
		confirmation.Start.In(t.loc).Format("Monday, January 2"),
		confirmation.Start.In(t.loc).Format("03:04 PM"),
		timezone.FriendlyName(t.loc.String()))
	if args.Notes != "" {
		details += " (" + args.Notes + ")"
	}
	return BookingMessage(confirmation.BookingID, details), nil
}

// BookingMessage is the confirmation text shown to the visitor.
func BookingMessage(bookingID, details string) string {
	return "🎉 Meeting Successfully Booked!\n" +
		"Booking ID: " + bookingID + "\n" +
		"Details: " + details + "\n\n" +
		"A calendar invitation with the meeting link has been sent to the attendee. " +
		"Enrique is looking forward to the conversation!"
}

// ParseStart 解析会议开始时间，支持 RFC3339、"2006-01-02 15:04" 以及 "tomorrow 2pm" 这类组合；没有日期时取 ref 当天。
func ParseStart(text string, ref time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", text, ref.Location()); err == nil {
		return t, nil
	}

	expr, ok := timezone.FindTimeExpression(text)
	if !ok {
		return time.Time{}, fmt.Errorf("no time of day in %q", text)
	}
	clock, err := timezone.ParseTime(expr)
	if err != nil {
		return time.Time{}, err
	}

	day := ref
	if hint, ok := datehint.Extract(strings.Replace(text, expr, " ", 1)); ok {
		if day, err = datehint.Resolve(hint, ref); err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour, clock.Minute, 0, 0, ref.Location()), nil
}
