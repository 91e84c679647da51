package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEvents_ReplaysSinceLastEventID(t *testing.T) {
	s := newTestServer(t, &mockSessions{}, nil)
	s.events.Publish("session.starting", map[string]any{"session_id": "a"})
	s.events.Publish("session.ready", map[string]any{"session_id": "a"})
	// A closed hub ends the stream once the backlog is written.
	s.events.Close()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.NotContains(t, body, "id: 1\n")
	assert.Contains(t, body, "id: 2\nevent: session.ready\ndata: {\"session_id\":\"a\"}\n\n")
	assert.Equal(t, 1, strings.Count(body, "data: "))
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

func TestHandleEvents_Filters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "no filter", query: "", want: []string{"id: 1\n", "id: 2\n", "id: 3\n", "id: 4\n"}},
		{name: "by session", query: "?session=a", want: []string{"id: 1\n", "id: 2\n"}},
		{name: "by family", query: "?type=tool", want: []string{"id: 3\n"}},
		{name: "by exact type", query: "?type=session.ready,tool.called", want: []string{"id: 2\n", "id: 3\n"}},
		{name: "session and family", query: "?session=b&type=session", want: []string{"id: 4\n"}},
		{name: "since query", query: "?since=3", want: []string{"id: 4\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &mockSessions{}, nil)
			s.events.Publish("session.starting", map[string]any{"session_id": "a"})
			s.events.Publish("session.ready", map[string]any{"session_id": "a"})
			s.events.Publish("tool.called", map[string]any{"tool": "add", "is_error": false})
			s.events.Publish("session.exited", map[string]any{"session_id": "b", "exit_code": 0})
			s.events.Close()

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events"+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			body := rec.Body.String()
			assert.True(t, strings.HasPrefix(body, "retry: 3000\n\n"))
			assert.Equal(t, len(tt.want), strings.Count(body, "data: "), body)
			for _, id := range tt.want {
				assert.Contains(t, body, id)
			}
		})
	}
}

func TestLastEventIDHeaderWinsOverSince(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events?since=9", nil)
	assert.Equal(t, int64(9), resumeID(req))

	req.Header.Set("Last-Event-ID", "4")
	assert.Equal(t, int64(4), resumeID(req))
}
