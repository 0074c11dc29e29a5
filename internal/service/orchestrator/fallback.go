package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
	"github.com/zhouzirui/enrique/backend/internal/service/tools"
)

// BookingPrompt asks for what the scheduler needs to book.
const BookingPrompt = "To book the meeting, please share your name, your email and the slot you prefer."

func formatSlot(slot calendarModel.TimeSlot, loc *time.Location) string {
	start := slot.Start.In(loc)
	return fmt.Sprintf("%s at %s %s",
		start.Format("Monday, January 2"),
		start.Format("03:04 PM"),
		timezone.FriendlyName(loc.String()))
}

func fallbackReply(turn *Turn, loc *time.Location) string {
	r := turn.Result
	switch r.Intent.Category {
	case intent.Booking:
		var b strings.Builder
		if r.Conversion != nil {
			b.WriteString(r.Conversion.Message)
			b.WriteString(" ")
		}
		if len(r.Alternatives) > 0 {
			b.WriteString("Here are the closest open slots:")
			for _, slot := range r.Alternatives {
				b.WriteString("\n- ")
				b.WriteString(formatSlot(slot, loc))
			}
			b.WriteString("\n")
		}
		b.WriteString(BookingPrompt)
		return b.String()

	case intent.Availability:
		if r.Day == nil || len(r.Slots) == 0 {
			return tools.FlexibleCalendar
		}
		return tools.FormatSlots(sameDate(*r.Day, loc), r.Slots, loc)

	case intent.Persona:
		p := turn.Persona
		parts := []string{p.Description, p.Background, "Would you like to book a meeting to learn more?"}
		return strings.TrimSpace(strings.Join(nonEmpty(parts), " "))

	default:
		return turn.Persona.OpeningLine
	}
}

func nonEmpty(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
