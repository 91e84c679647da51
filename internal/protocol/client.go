package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrClientBroken is returned after a call was abandoned mid-read; the
// stream position is no longer known.
var ErrClientBroken = errors.New("client stream is out of sync")

// Client issues JSON-RPC calls over a newline-delimited stream pair and
// waits for the matching response. Calls are serialized.
type Client struct {
	enc *Encoder
	dec *Decoder

	mu     sync.Mutex
	nextID atomic.Int64
	broken atomic.Bool

	// OnMessage, when set, receives every non-matching message read while
	// waiting for a response (server notifications, log lines).
	OnMessage func(line []byte)
}

// NewClient returns a Client writing requests to w and reading responses from r.
func NewClient(w io.Writer, r io.Reader) *Client {
	return &Client{enc: NewEncoder(w), dec: NewDecoder(r)}
}

// Call sends method with params and decodes the result into result (if non-nil).
// A JSON-RPC error response is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		raw = data
	}

	id := json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10))
	resp, err := c.Do(ctx, &Request{JSONRPC: Version, ID: id, Method: method, Params: raw})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// Do forwards a prepared request. Notifications return (nil, nil) as soon as
// they are written.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken.Load() {
		return nil, ErrClientBroken
	}

	if err := c.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if req.IsNotification() {
		return nil, nil
	}

	type readResult struct {
		resp *Response
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		resp, err := c.readUntil(req.ID)
		done <- readResult{resp, err}
	}()

	select {
	case <-ctx.Done():
		c.broken.Store(true)
		return nil, ctx.Err()
	case res := <-done:
		return res.resp, res.err
	}
}

func (c *Client) readUntil(id json.RawMessage) (*Response, error) {
	for {
		line, err := c.dec.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read response: %w", err)
		}
		if !IsResponse(line) {
			if c.OnMessage != nil {
				c.OnMessage(line)
			}
			continue
		}
		resp, err := DecodeResponse(line)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(compact(resp.ID), compact(id)) {
			if c.OnMessage != nil {
				c.OnMessage(line)
			}
			continue
		}
		return resp, nil
	}
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
