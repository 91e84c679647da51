// Package webtools provides the fetch and search tools backed by the Jina
// reader and search endpoints, and translate backed by DeepL.
package webtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/dispatch"
	"github.com/mattjoyce/mcpserve/internal/log"
	"github.com/mattjoyce/mcpserve/internal/protocol"
)

// maxBodyBytes caps the page or result text returned to the caller.
const maxBodyBytes = 5 * 1024 * 1024

const (
	defaultFromLang = "zh"
	defaultToLang   = "en"
)

// Client calls the Jina and DeepL endpoints.
type Client struct {
	http         *http.Client
	readerURL    string
	searchURL    string
	translateURL string
	apiKey       func() string
	deeplKey     func() string
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithAPIKey replaces the key source (JINA_API_KEY from the environment by default).
func WithAPIKey(fn func() string) Option {
	return func(cl *Client) { cl.apiKey = fn }
}

// WithDeeplKey replaces the translate key source (DEEPL_API_KEY by default).
func WithDeeplKey(fn func() string) Option {
	return func(cl *Client) { cl.deeplKey = fn }
}

// New returns a Client for cfg.
func New(cfg config.WebToolsConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		http:         &http.Client{Timeout: timeout},
		readerURL:    cfg.ReaderURL,
		searchURL:    cfg.SearchURL,
		translateURL: cfg.TranslateURL,
		apiKey:       func() string { return os.Getenv("JINA_API_KEY") },
		deeplKey:     func() string { return os.Getenv("DEEPL_API_KEY") },
		logger:       log.WithComponent("webtools"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tools returns the fetch, search and translate tools.
func (c *Client) Tools() []dispatch.Tool {
	return []dispatch.Tool{
		{
			Descriptor: protocol.Tool{
				Name:        "fetch",
				Description: "Fetch the content of a web page using Jina AI",
				InputSchema: protocol.InputSchema{
					Type: "object",
					Properties: map[string]protocol.Property{
						"url": {Type: "string", Description: "The URL to fetch"},
					},
					Required: []string{"url"},
				},
			},
			Handler: c.fetch,
		},
		{
			Descriptor: protocol.Tool{
				Name:        "search",
				Description: "Search the web using Jina AI",
				InputSchema: protocol.InputSchema{
					Type: "object",
					Properties: map[string]protocol.Property{
						"query": {Type: "string", Description: "The search query"},
					},
					Required: []string{"query"},
				},
			},
			Handler: c.search,
		},
		{
			Descriptor: protocol.Tool{
				Name:        "translate",
				Description: "Translate text between languages using DeepL",
				InputSchema: protocol.InputSchema{
					Type: "object",
					Properties: map[string]protocol.Property{
						"text":      {Type: "string", Description: "The text to translate"},
						"from_lang": {Type: "string", Description: "Source language (default: zh)"},
						"to_lang":   {Type: "string", Description: "Target language (default: en)"},
					},
					Required: []string{"text"},
				},
			},
			Handler: c.translate,
		},
	}
}

func (c *Client) fetch(ctx context.Context, args map[string]any) (*protocol.CallToolResult, error) {
	target, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}
	return c.get(ctx, "fetching", target, c.readerURL+target)
}

func (c *Client) search(ctx context.Context, args map[string]any) (*protocol.CallToolResult, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	return c.get(ctx, "searching", query, c.searchURL+url.PathEscape(query))
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

func (c *Client) translate(ctx context.Context, args map[string]any) (*protocol.CallToolResult, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}
	from := optionalArg(args, "from_lang", defaultFromLang)
	to := optionalArg(args, "to_lang", defaultToLang)

	key := c.deeplKey()
	if key == "" {
		return protocol.ErrorResult("DEEPL_API_KEY not set"), nil
	}

	form := url.Values{
		"text":        {text},
		"source_lang": {strings.ToUpper(from)},
		"target_lang": {strings.ToUpper(to)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.translateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return protocol.ErrorResult(fmt.Sprintf("Error translating from %s to %s: %v", from, to, err)), nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+key)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "endpoint", c.translateURL, "error", err)
		return protocol.ErrorResult(fmt.Sprintf("Error translating from %s to %s: %v", from, to, err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("unexpected status", "endpoint", c.translateURL, "status", resp.StatusCode)
		return protocol.ErrorResult(fmt.Sprintf("Error translating from %s to %s: %d", from, to, resp.StatusCode)), nil
	}

	var out deeplResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode translation: %w", err)
	}
	if len(out.Translations) == 0 {
		return protocol.ErrorResult("translation service returned no text"), nil
	}
	return protocol.TextResult(out.Translations[0].Text), nil
}

// get issues an authenticated GET. Missing credentials, transport failures
// and non-200 responses become error results.
func (c *Client) get(ctx context.Context, verb, subject, endpoint string) (*protocol.CallToolResult, error) {
	key := c.apiKey()
	if key == "" {
		return protocol.ErrorResult("JINA_API_KEY not set"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return protocol.ErrorResult(fmt.Sprintf("Error %s %s: %v", verb, subject, err)), nil
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "endpoint", endpoint, "error", err)
		return protocol.ErrorResult(fmt.Sprintf("Error %s %s: %v", verb, subject, err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("unexpected status", "endpoint", endpoint, "status", resp.StatusCode)
		return protocol.ErrorResult(fmt.Sprintf("Error %s %s: %d", verb, subject, resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return protocol.TextResult(string(body)), nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", errors.New(name + " parameter is required")
	}
	return v, nil
}

func optionalArg(args map[string]any, name, fallback string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return fallback
}
