package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntentClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrique_intent_classified_total",
			Help: "Messages classified per intent category",
		},
		[]string{"category"},
	)

	TimeConversions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrique_time_conversions_total",
			Help: "Time conversions attempted, by outcome",
		},
		[]string{"status"},
	)

	CalendarRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrique_calendar_requests_total",
			Help: "Calendar backend calls by backend, method and status",
		},
		[]string{"backend", "method", "status"},
	)

	CalendarDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "enrique_calendar_request_duration_seconds",
			Help: "Duration of calendar backend calls in seconds",
		},
		[]string{"backend", "method"},
	)

	SpeechRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrique_speech_requests_total",
			Help: "Speech API calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrique_tool_invocations_total",
			Help: "Tool invocations by tool name and status",
		},
		[]string{"tool", "status"},
	)

	ReplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "enrique_reply_duration_seconds",
			Help: "Time to produce an assistant reply",
		},
		[]string{"agent", "source"},
	)
)

// Status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
