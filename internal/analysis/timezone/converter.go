package timezone

import (
	"errors"
	"fmt"
	"time"
)

// DefaultTargetZone is Enrique's calendar zone.
const DefaultTargetZone = "America/New_York"

// ErrUnknownZone 表示时区标识无法在时区数据库中找到。
var ErrUnknownZone = errors.New("unknown timezone")

var friendlyNames = map[string]string{
	"America/Los_Angeles": "Pacific Time",
	"America/Chicago":     "Central Time",
	"America/Denver":      "Mountain Time",
	"America/New_York":    "Eastern Time",
	"UTC":                 "UTC",
}

// FriendlyName returns the display name for a zone, or the id itself.
func FriendlyName(zone string) string {
	if name, ok := friendlyNames[zone]; ok {
		return name
	}
	return zone
}

// ConversionResult is a time projected into the target zone.
type ConversionResult struct {
	Instant time.Time `json:"instant"`
	Message string    `json:"message"`
	Source  string    `json:"source"`
	Target  string    `json:"target"`
}

// Converter projects user-supplied times into one fixed target zone.
type Converter struct {
	target *time.Location
	now    func() time.Time
}

// Option customises a Converter.
type Option func(*Converter)

// WithClock overrides the clock used when no reference date is given.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		c.now = now
	}
}

// NewConverter builds a Converter targeting the named zone.
func NewConverter(targetZone string, opts ...Option) (*Converter, error) {
	if targetZone == "" {
		targetZone = DefaultTargetZone
	}
	loc, err := loadLocation(targetZone)
	if err != nil {
		return nil, err
	}

	c := &Converter{target: loc, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target returns the zone every conversion lands in.
func (c *Converter) Target() *time.Location {
	return c.target
}

// Convert interprets timeText in sourceZone on the date of ref and projects it
// into the target zone. A zero ref means today in the source zone.
func (c *Converter) Convert(timeText, sourceZone string, ref time.Time) (ConversionResult, error) {
	parsed, err := ParseTime(timeText)
	if err != nil {
		return ConversionResult{}, err
	}

	src, err := loadLocation(sourceZone)
	if err != nil {
		return ConversionResult{}, err
	}

	if ref.IsZero() {
		ref = c.now().In(src)
	}
	year, month, day := ref.Date()

	local := time.Date(year, month, day, parsed.Hour, parsed.Minute, 0, 0, src)
	converted := local.In(c.target)

	message := fmt.Sprintf("I'll convert %s %s to %s %s.",
		timeText,
		FriendlyName(sourceZone),
		converted.Format("03:04 PM"),
		FriendlyName(c.target.String()),
	)

	return ConversionResult{
		Instant: converted,
		Message: message,
		Source:  sourceZone,
		Target:  c.target.String(),
	}, nil
}

// FormatInZone renders t as "03:04 PM <friendly zone>".
func FormatInZone(t time.Time, zone string) (string, error) {
	loc, err := loadLocation(zone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", t.In(loc).Format("03:04 PM"), FriendlyName(zone)), nil
}

func loadLocation(zone string) (*time.Location, error) {
	if zone == "" {
		return nil, fmt.Errorf("%w: empty zone", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownZone, zone, err)
	}
	return loc, nil
}
