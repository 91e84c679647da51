package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// maxMessageBytes caps a single newline-delimited message.
const maxMessageBytes = 4 * 1024 * 1024

// ErrMessageTooLarge is returned when a line exceeds maxMessageBytes.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Encoder writes newline-delimited JSON messages. It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode serializes v as a single line and writes it.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited JSON messages.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadLine returns the next non-blank line without its terminator.
// io.EOF is returned only when no further data is available.
func (d *Decoder) ReadLine() ([]byte, error) {
	for {
		var line []byte
		for {
			chunk, err := d.r.ReadSlice('\n')
			line = append(line, chunk...)
			if len(line) > maxMessageBytes {
				return nil, ErrMessageTooLarge
			}
			if err == bufio.ErrBufferFull {
				continue
			}
			if err != nil {
				if err == io.EOF && len(bytes.TrimSpace(line)) > 0 {
					return bytes.TrimSpace(line), nil
				}
				return nil, err
			}
			break
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
	}
}

// DecodeRequest parses and validates a request envelope.
func DecodeRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := ValidateRequest(&req); err != nil {
		return &req, err
	}
	return &req, nil
}

// ValidateRequest checks the envelope fields required by JSON-RPC 2.0.
func ValidateRequest(req *Request) error {
	if req.JSONRPC != Version {
		return fmt.Errorf("invalid jsonrpc version: %q (must be %q)", req.JSONRPC, Version)
	}
	if req.Method == "" {
		return fmt.Errorf("request missing required field: method")
	}
	return nil
}

// DecodeResponse parses a response envelope.
func DecodeResponse(line []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.JSONRPC != Version {
		return nil, fmt.Errorf("invalid jsonrpc version: %q (must be %q)", resp.JSONRPC, Version)
	}
	if resp.Error == nil && resp.Result == nil {
		return nil, fmt.Errorf("response has neither result nor error")
	}
	return &resp, nil
}

// IsResponse reports whether a raw message is a response rather than a
// request or notification.
func IsResponse(line []byte) bool {
	var probe struct {
		Method *string         `json:"method"`
		ID     json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return false
	}
	return probe.Method == nil && len(probe.ID) > 0
}
