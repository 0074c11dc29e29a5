package calendar

import "time"

// Booking statuses.
const (
	StatusBooked  = "booked"
	StatusPending = "pending"
)

// DefaultEventType is the Calendly event slug offered to visitors.
const DefaultEventType = "30min"

// TimeSlot is one bookable window on Enrique's calendar.
type TimeSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	BookingURL string    `json:"bookingUrl,omitempty"`
	EventType  string    `json:"eventType,omitempty"`
}

// Duration returns the slot length.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Contact identifies the invitee.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BookingRequest asks a backend to reserve a slot.
type BookingRequest struct {
	Slot    TimeSlot `json:"slot"`
	Contact Contact  `json:"contact"`
	Notes   string   `json:"notes,omitempty"`
	Guests  []string `json:"guests,omitempty"`
}

// BookingConfirmation is what a backend reports after a booking attempt.
type BookingConfirmation struct {
	Status            string    `json:"status"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	InviteeEmail      string    `json:"inviteeEmail"`
	MeetingLink       string    `json:"meetingLink,omitempty"`
	CalendarInviteURL string    `json:"calendarInviteUrl,omitempty"`
	BookingID         string    `json:"bookingId,omitempty"`
}
