package api

import (
	"github.com/mattjoyce/mcpserve/internal/protocol"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// relay owns the streams of one stream-mode session started through the API.
type relay struct {
	handle *supervisor.Handle
	client *protocol.Client
}

// attachRelay takes ownership of h's streams: stdout is read by the relay
// client and stderr is drained to the log.
func (s *Server) attachRelay(h *supervisor.Handle) *relay {
	logger := s.logger.With("session_id", h.ID)
	rl := &relay{
		handle: h,
		client: protocol.NewClient(h.Stdin, h.Stdout),
	}
	rl.client.OnMessage = func(line []byte) {
		logger.Debug("unsolicited worker message", "message", string(line))
	}

	s.mu.Lock()
	s.relays[h.ID] = rl
	s.mu.Unlock()

	go func() {
		err := supervisor.ForwardLines(h.Stderr, func(line string) {
			logger.Warn("worker stderr", "line", line)
		})
		if err != nil {
			logger.Debug("stderr drain stopped", "error", err)
		}
	}()
	go func() {
		<-h.Exited()
		s.mu.Lock()
		if cur, ok := s.relays[h.ID]; ok && cur == rl {
			delete(s.relays, h.ID)
		}
		s.mu.Unlock()
	}()
	return rl
}

// relayFor returns the relay attached to h, or nil if h was not started here.
func (s *Server) relayFor(h *supervisor.Handle) *relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl, ok := s.relays[h.ID]
	if !ok || rl.handle != h {
		return nil
	}
	return rl
}

func (s *Server) dropRelay(sessionID string) {
	s.mu.Lock()
	delete(s.relays, sessionID)
	s.mu.Unlock()
}
