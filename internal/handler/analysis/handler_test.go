package analysis

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	conv, err := timezone.NewConverter("America/New_York")
	require.NoError(t, err)
	wednesday := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

	r := chi.NewRouter()
	New(conv, func() time.Time { return wednesday }).RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, path, body string, dst any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if dst != nil && resp.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.Code
}

func TestIntent(t *testing.T) {
	r := newRouter(t)

	var match intent.Match
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/intent", `{"text":"Can I book a meeting about your projects?"}`, &match))
	assert.Equal(t, intent.Booking, match.Category)
	assert.Equal(t, "book", match.Keyword)
}

func TestTimezone(t *testing.T) {
	r := newRouter(t)

	var resp TimezoneResponse
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/timezone", `{"text":"I'm on pacific time"}`, &resp))
	assert.Equal(t, TimezoneResponse{Found: true, Zone: "America/Los_Angeles", FriendlyName: "Pacific Time"}, resp)

	resp = TimezoneResponse{}
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/timezone", `{"text":"best upstream"}`, &resp))
	assert.False(t, resp.Found)
}

func TestParseTime(t *testing.T) {
	r := newRouter(t)

	var parsed ParsedTimeResponse
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/time", `{"text":"12:30 am"}`, &parsed))
	assert.Equal(t, ParsedTimeResponse{Hour: 0, Minute: 30, Clock: "00:30"}, parsed)

	assert.Equal(t, http.StatusUnprocessableEntity, post(t, r, "/analysis/time", `{"text":"14"}`, nil))
}

func TestConvert(t *testing.T) {
	r := newRouter(t)

	var result timezone.ConversionResult
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/convert", `{"time":"2pm","zone":"PST","date":"2025-01-15"}`, &result))
	assert.Equal(t, "I'll convert 2pm Pacific Time to 05:00 PM Eastern Time.", result.Message)
	assert.Equal(t, "America/New_York", result.Target)

	result = timezone.ConversionResult{}
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/convert", `{"text":"how about 9:30 am central time","date":"2025-07-01"}`, &result))
	assert.Equal(t, "I'll convert 9:30 am Central Time to 10:30 AM Eastern Time.", result.Message)
}

func TestConvertErrors(t *testing.T) {
	r := newRouter(t)

	cases := map[string]int{
		`{"time":"25:00","zone":"UTC"}`:          http.StatusUnprocessableEntity,
		`{"time":"2pm","zone":"Mars/Olympus"}`:   http.StatusBadRequest,
		`{"time":"2pm"}`:                         http.StatusBadRequest,
		`{"zone":"UTC"}`:                         http.StatusBadRequest,
		`{"time":"2pm","zone":"UTC","date":"x"}`: http.StatusBadRequest,
	}
	for body, want := range cases {
		assert.Equal(t, want, post(t, r, "/analysis/convert", body, nil), body)
	}
}

func TestDateHint(t *testing.T) {
	r := newRouter(t)

	var resp DateHintResponse
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/date-hint", `{"text":"how about next friday?"}`, &resp))
	require.True(t, resp.Found)
	assert.Equal(t, "next friday", resp.Hint.Text)
	assert.Equal(t, "2025-01-24", resp.Date)

	resp = DateHintResponse{}
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/date-hint", `{"text":"tomorrow","reference":"2025-02-28"}`, &resp))
	assert.Equal(t, "2025-03-01", resp.Date)

	resp = DateHintResponse{}
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/date-hint", `{"text":"13/45/2025"}`, &resp))
	assert.True(t, resp.Found)
	assert.Empty(t, resp.Date)
	assert.NotEmpty(t, resp.Error)

	resp = DateHintResponse{}
	require.Equal(t, http.StatusOK, post(t, r, "/analysis/date-hint", `{"text":"whenever"}`, &resp))
	assert.False(t, resp.Found)
}
