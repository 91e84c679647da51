package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/mcpserve/internal/events"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Mode           string `json:"mode"`
	SessionsActive int    `json:"sessions_active"`
	ToolsLoaded    int    `json:"tools_loaded"`
}

type sessionsMsg struct {
	Sessions []supervisor.Info `json:"sessions"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// sseFrame accumulates the fields of one server-sent event.
type sseFrame struct {
	id   int64
	typ  string
	data string
}

// feed applies one SSE line. It returns the completed event on the blank
// line that terminates a frame.
func (f *sseFrame) feed(line string) (events.Event, bool) {
	switch {
	case line == "":
		if f.data == "" {
			return events.Event{}, false
		}
		ev := events.Event{ID: f.id, Type: f.typ, At: time.Now(), Data: json.RawMessage(f.data)}
		*f = sseFrame{}
		return ev, true
	case strings.HasPrefix(line, "id: "):
		if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
			f.id = id
		}
	case strings.HasPrefix(line, "event: "):
		f.typ = line[7:]
	case strings.HasPrefix(line, "data: "):
		f.data = line[6:]
	}
	return events.Event{}, false
}

// --- Commands ---

// subscribeToEvents connects to the SSE /events endpoint and feeds events
// into ch. It returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(apiURL string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()

		var frame sseFrame
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if ev, ok := frame.feed(scanner.Text()); ok {
				ch <- ev
			}
		}
		return sseDisconnectedMsg{}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func getJSON(url string, v any) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL string) tea.Msg {
	var h healthMsg
	if err := getJSON(apiURL+"/healthz", &h); err != nil {
		return errMsg(err)
	}
	return h
}

// fetchSessions queries the live session list.
func fetchSessions(apiURL string) tea.Msg {
	var s sessionsMsg
	if err := getJSON(apiURL+"/sessions", &s); err != nil {
		return errMsg(err)
	}
	return s
}
