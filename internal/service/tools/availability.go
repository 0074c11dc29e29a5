package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/analysis/datehint"
	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
	calendarService "github.com/zhouzirui/enrique/backend/internal/service/calendar"
)

// FlexibleCalendar is the answer when no concrete slots can be offered.
const FlexibleCalendar = "Enrique's calendar is quite flexible this week. To find the perfect time, " +
	"could you please suggest a few dates and times that work for you? " +
	"That will make it easier to coordinate and book a meeting."

var availabilityDescriptor = descriptor{
	name: AvailabilityToolName,
	desc: "Check Enrique's calendar for available time slots. Use this when a user asks about " +
		"Enrique's availability or wants to see his schedule.",
	args: []argument{
		{name: "date", desc: "Day to check: YYYY-MM-DD, MM/DD/YYYY, or phrases like \"tomorrow\" or \"next friday\"."},
	},
}

type availabilityArgs struct {
	Date string `json:"date"`
}

// AvailabilityTool lists open slots from the calendar backend.
type AvailabilityTool struct {
	backend calendarService.Backend
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

var _ tool.InvokableTool = (*AvailabilityTool)(nil)

// NewAvailabilityTool creates the tool; dates are interpreted in loc.
func NewAvailabilityTool(backend calendarService.Backend, loc *time.Location, now func() time.Time, logger *zap.Logger) *AvailabilityTool {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityTool{backend: backend, loc: loc, now: now, logger: logger.Named("tools")}
}

func (t *AvailabilityTool) Info(context.Context) (*schema.ToolInfo, error) {
	return availabilityDescriptor.info(), nil
}

func (t *AvailabilityTool) describe() Description { return availabilityDescriptor.describe() }

func (t *AvailabilityTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args availabilityArgs
	if err := availabilityDescriptor.decode(argumentsInJSON, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Date) == "" || t.backend == nil {
		return FlexibleCalendar, nil
	}

	day, err := ResolveDay(args.Date, t.now().In(t.loc))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, AvailabilityToolName, err)
	}

	slots, err := t.backend.CheckAvailability(ctx, day)
	if err != nil {
		t.logger.Warn("availability lookup failed", zap.Error(err))
		return FlexibleCalendar, nil
	}
	if len(slots) == 0 {
		return FlexibleCalendar, nil
	}
	return FormatSlots(day, slots, t.loc), nil
}

// ResolveDay reads a date hint relative to ref.
func ResolveDay(text string, ref time.Time) (time.Time, error) {
	hint, ok := datehint.Extract(text)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", datehint.ErrUnresolvable, text)
	}
	return datehint.Resolve(hint, ref)
}

// FormatSlots renders slots as a bulleted list in loc.
func FormatSlots(day time.Time, slots []calendarModel.TimeSlot, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available slots for %s (%s):", day.In(loc).Format("Monday, January 2"), timezone.FriendlyName(loc.String()))
	for _, slot := range slots {
		fmt.Fprintf(&b, "\n- %s - %s", slot.Start.In(loc).Format("03:04 PM"), slot.End.In(loc).Format("03:04 PM"))
	}
	return b.String()
}
