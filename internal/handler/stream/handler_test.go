package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/enrique/backend/internal/service/chat"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
)

type fakeStreamer struct {
	chunks []string
}

func (f *fakeStreamer) StreamingEnabled() bool { return true }

func (f *fakeStreamer) StreamResponse(context.Context, *persona.Persona, []chat.Message, string, *ai.Briefing) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func setup(t *testing.T, streamer Streamer) (http.Handler, *chatservice.Service, string) {
	t.Helper()
	chatSvc := chatservice.NewService()
	session, err := chatSvc.CreateSession(context.Background(), persona.DefaultID)
	require.NoError(t, err)

	orch := orchestrator.New(orchestrator.Deps{
		Personas: persona.NewMemoryStore(persona.Seed()),
		Sessions: chatSvc,
		Logger:   zaptest.NewLogger(t),
	})
	r := chi.NewRouter()
	New(orch, streamer, zaptest.NewLogger(t)).RegisterRoutes(r)
	return r, chatSvc, session.ID
}

func readEvents(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev StreamResponse
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	return events
}

func eventNames(events []StreamResponse) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	return names
}

func TestStreamDeltas(t *testing.T) {
	r, chatSvc, sessionID := setup(t, &fakeStreamer{chunks: []string{"Enrique ", "studies AI."}})

	req := httptest.NewRequest(http.MethodGet, "/stream/"+sessionID+"?message="+url.QueryEscape("who is Enrique?"), nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	events := readEvents(t, resp.Body.String())
	assert.Equal(t, []string{"start", "intent", "delta", "delta", "message", "end"}, eventNames(events))
	assert.Equal(t, "persona", events[1].Intent)
	assert.Equal(t, "Enrique studies AI.", events[4].Content)

	transcript, err := chatSvc.LoadTranscript(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, "Enrique studies AI.", transcript[1].Content)
}

func TestStreamWithoutModelUsesFallback(t *testing.T) {
	r, _, sessionID := setup(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/"+sessionID+"?message=hello", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	events := readEvents(t, resp.Body.String())
	assert.Equal(t, []string{"start", "intent", "message", "end"}, eventNames(events))
	assert.Equal(t, persona.Seed()[0].OpeningLine, events[2].Content)
	assert.Equal(t, orchestrator.SourceFallback, events[3].Source)
}

func TestStreamErrors(t *testing.T) {
	r, _, _ := setup(t, nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream/missing?message=hi", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream/missing", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
