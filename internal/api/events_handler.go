package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/mcpserve/internal/events"
)

const (
	sseKeepAlive = 15 * time.Second
	// sseRetry is the reconnect delay suggested to EventSource clients.
	sseRetry = 3 * time.Second
)

// eventFilter narrows the stream to one session and/or a set of event
// families. Types match exactly ("tool.called") or by family ("session").
type eventFilter struct {
	sessionID string
	types     []string
}

func parseEventFilter(r *http.Request) eventFilter {
	q := r.URL.Query()
	f := eventFilter{sessionID: strings.TrimSpace(q.Get("session"))}
	for _, t := range strings.Split(q.Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.types = append(f.types, t)
		}
	}
	return f
}

func (f eventFilter) match(ev events.Event) bool {
	if len(f.types) > 0 {
		ok := false
		for _, t := range f.types {
			if ev.Type == t || strings.HasPrefix(ev.Type, t+".") {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.sessionID == "" {
		return true
	}
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return false
	}
	return payload.SessionID == f.sessionID
}

// resumeID is where a reconnecting client left off: the Last-Event-ID header
// set by EventSource, or ?since= for clients that cannot set headers.
func resumeID(r *http.Request) int64 {
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		return parseLastEventID(v)
	}
	return parseLastEventID(r.URL.Query().Get("since"))
}

func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// sseStream frames hub events on a flushing response.
// SSE framing: https://html.spec.whatwg.org/multipage/server-sent-events.html
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s sseStream) send(ev events.Event) error {
	// Payloads are single-line JSON, so one data: line is enough.
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s sseStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleEvents streams session lifecycle and tool call events, replaying the
// hub's history after the client's resume id first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	filter := parseEventFilter(r)
	since := resumeID(r)

	// Subscribe before reading the backlog so nothing published in between is lost.
	ch, cancel := s.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := sseStream{w: w, flusher: flusher}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds()); err != nil {
		return
	}

	for _, ev := range s.events.SnapshotSince(since) {
		if ev.ID > since {
			since = ev.ID
		}
		if !filter.match(ev) {
			continue
		}
		if err := stream.send(ev); err != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			// Already sent from the backlog.
			if ev.ID <= since || !filter.match(ev) {
				continue
			}
			if err := stream.send(ev); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := stream.comment("keep-alive"); err != nil {
				return
			}
		}
	}
}
