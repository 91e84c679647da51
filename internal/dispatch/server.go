package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mattjoyce/mcpserve/internal/log"
	"github.com/mattjoyce/mcpserve/internal/protocol"
)

// EventToolCalled is published after every tools/call that reached a tool.
const EventToolCalled = "tool.called"

// Publisher receives dispatch events.
type Publisher interface {
	Publish(eventType string, data any)
}

// Server answers MCP requests against a Catalog. It is safe for concurrent use.
type Server struct {
	catalog   *Catalog
	info      protocol.Implementation
	validate  bool
	schemas   schemaSet
	logger    *slog.Logger
	publisher Publisher
}

// Option configures a Server.
type Option func(*Server)

// WithInfo sets the name and version reported on initialize.
func WithInfo(name, version string) Option {
	return func(s *Server) { s.info = protocol.Implementation{Name: name, Version: version} }
}

// WithValidation enables JSON-schema validation of tools/call arguments.
func WithValidation(enabled bool) Option {
	return func(s *Server) { s.validate = enabled }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPublisher sets the sink for tool.called events.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// NewServer creates a Server over catalog.
func NewServer(catalog *Catalog, opts ...Option) (*Server, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	s := &Server{
		catalog: catalog,
		info:    protocol.Implementation{Name: "mcpserve", Version: "dev"},
		logger:  log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validate {
		schemas, err := compileSchemas(catalog.List())
		if err != nil {
			return nil, err
		}
		s.schemas = schemas
	}
	return s, nil
}

// ListTools returns the tool descriptors. It never fails.
func (s *Server) ListTools() []protocol.Tool {
	return s.catalog.List()
}

// CallTool runs the named tool. Unknown names fail with *UnknownToolError
// before anything runs; when validation is enabled, bad arguments fail with
// *InvalidArgumentsError. Failures inside the tool come back as a result
// with IsError set.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*protocol.CallToolResult, error) {
	tool, ok := s.catalog.Lookup(name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	if s.schemas != nil {
		if err := s.schemas.validate(name, args); err != nil {
			return nil, err
		}
	}

	logger := s.logger.With("tool", name)
	start := time.Now()

	result, err := tool.Handler(ctx, args)
	if err != nil {
		logger.Warn("tool failed", "error", err)
		result = protocol.ErrorResult(err.Error())
	}
	if result == nil {
		result = &protocol.CallToolResult{Content: []protocol.Content{}}
	}

	elapsed := time.Since(start)
	logger.Debug("tool called", "is_error", result.IsError, "duration", elapsed)
	if s.publisher != nil {
		s.publisher.Publish(EventToolCalled, map[string]any{
			"tool":        name,
			"is_error":    result.IsError,
			"duration_ms": elapsed.Milliseconds(),
		})
	}
	return result, nil
}

// Handle answers one request. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	resp := s.handle(ctx, req)
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Method {
	case protocol.MethodInitialize:
		var params protocol.InitializeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return protocol.NewError(req.ID, protocol.CodeInvalidParams, "invalid params: "+err.Error(), nil)
			}
		}
		s.logger.Info("client initialized",
			"client", params.ClientInfo.Name,
			"client_version", params.ClientInfo.Version,
			"protocol_version", params.ProtocolVersion)
		return s.result(req.ID, protocol.InitializeResult{
			ProtocolVersion: protocol.LatestProtocolVersion,
			Capabilities:    protocol.ServerCapabilities{Tools: &protocol.ToolsCapability{}},
			ServerInfo:      s.info,
		})

	case protocol.MethodInitialized:
		return nil

	case protocol.MethodPing:
		return s.result(req.ID, struct{}{})

	case protocol.MethodToolsList:
		return s.result(req.ID, protocol.ListToolsResult{Tools: s.ListTools()})

	case protocol.MethodToolsCall:
		return s.callTool(ctx, req)

	default:
		return protocol.NewError(req.ID, protocol.CodeMethodNotFound, "unsupported request: "+req.Method, nil)
	}
}

func (s *Server) callTool(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.CallToolParams
	if len(req.Params) == 0 {
		return protocol.NewError(req.ID, protocol.CodeInvalidParams, "invalid params: missing tool name", nil)
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewError(req.ID, protocol.CodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.Name == "" {
		return protocol.NewError(req.ID, protocol.CodeInvalidParams, "invalid params: missing tool name", nil)
	}

	result, err := s.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var unknown *UnknownToolError
		var invalid *InvalidArgumentsError
		switch {
		case errors.As(err, &unknown):
			return protocol.NewError(req.ID, protocol.CodeInvalidParams, unknown.Error(), map[string]string{"name": unknown.Name})
		case errors.As(err, &invalid):
			return protocol.NewError(req.ID, protocol.CodeInvalidParams, invalid.Error(), map[string]any{
				"tool":     invalid.Tool,
				"problems": invalid.Problems,
			})
		default:
			s.logger.Error("tool call failed", "tool", params.Name, "error", err)
			return protocol.NewError(req.ID, protocol.CodeInternalError, err.Error(), nil)
		}
	}
	return s.result(req.ID, result)
}

func (s *Server) result(id json.RawMessage, v any) *protocol.Response {
	resp, err := protocol.NewResult(id, v)
	if err != nil {
		s.logger.Error("failed to encode result", "error", err)
		return protocol.NewError(id, protocol.CodeInternalError, err.Error(), nil)
	}
	return resp
}

// HandleMessage decodes one raw message and answers it. Malformed JSON gets a
// parse error with a null id; a well-formed but invalid envelope gets an
// invalid-request error. It returns nil when no response is due.
func (s *Server) HandleMessage(ctx context.Context, line []byte) *protocol.Response {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return protocol.NewError(nil, protocol.CodeInvalidRequest, "batch requests are not supported", nil)
	}

	req, err := protocol.DecodeRequest(trimmed)
	if err != nil {
		if req == nil {
			return protocol.NewError(nil, protocol.CodeParseError, "parse error: "+err.Error(), nil)
		}
		return protocol.NewError(req.ID, protocol.CodeInvalidRequest, "invalid request: "+err.Error(), nil)
	}
	return s.Handle(ctx, req)
}

// Serve reads newline-delimited requests from r and writes responses to w
// until r is exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := protocol.NewDecoder(r)
	enc := protocol.NewEncoder(w)

	type readResult struct {
		line []byte
		err  error
	}
	lines := make(chan readResult)
	go func() {
		defer close(lines)
		for {
			line, err := dec.ReadLine()
			select {
			case lines <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	s.logger.Info("serving tools", "count", s.catalog.Len())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rr, ok := <-lines:
			if !ok {
				return ctx.Err()
			}
			if rr.err != nil {
				if errors.Is(rr.err, io.EOF) {
					s.logger.Info("input closed")
					return nil
				}
				return fmt.Errorf("read request: %w", rr.err)
			}
			resp := s.HandleMessage(ctx, rr.line)
			if resp == nil {
				continue
			}
			if err := enc.Encode(resp); err != nil {
				return err
			}
		}
	}
}
