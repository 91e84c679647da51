package config

import "time"

// Worker modes.
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
)

// Config represents the complete mcpserve configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Worker  WorkerConfig  `yaml:"worker"`
	Session SessionConfig `yaml:"session,omitempty"`
	State   StateConfig   `yaml:"state"`
	API     APIConfig     `yaml:"api,omitempty"`
	Tools   ToolsConfig   `yaml:"tools,omitempty"`

	// SourcePath is the file the config was loaded from (empty for defaults).
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// WorkerConfig describes how the supervised worker process is launched.
type WorkerConfig struct {
	// Mode is stdio (piped streams, immediate readiness) or http (grace period, own port).
	Mode string `yaml:"mode"`
	// Command overrides the platform default interpreter (python / python3).
	Command string `yaml:"command,omitempty"`
	// Args overrides the mode's default module arguments.
	Args        []string      `yaml:"args,omitempty"`
	GracePeriod time.Duration `yaml:"grace_period"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
	// Port and LogLevel are injected as WEB_PORT / LOG_LEVEL in http mode when nothing else sets them.
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// SessionConfig carries the per-session credentials and endpoints handed to the worker
// as environment variables. Empty fields never override the ambient environment.
type SessionConfig struct {
	JinaAPIKey   string `yaml:"jina_api_key,omitempty" json:"jinaApiKey,omitempty"`
	GeminiAPIKey string `yaml:"gemini_api_key,omitempty" json:"geminiApiKey,omitempty"`
	DeeplAPIKey  string `yaml:"deepl_api_key,omitempty" json:"deeplApiKey,omitempty"`
	RedisURL     string `yaml:"redis_url,omitempty" json:"redisUrl,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty" json:"logLevel,omitempty"`
}

// Overlay returns s with every non-empty field of o applied on top.
func (s SessionConfig) Overlay(o SessionConfig) SessionConfig {
	if o.JinaAPIKey != "" {
		s.JinaAPIKey = o.JinaAPIKey
	}
	if o.GeminiAPIKey != "" {
		s.GeminiAPIKey = o.GeminiAPIKey
	}
	if o.DeeplAPIKey != "" {
		s.DeeplAPIKey = o.DeeplAPIKey
	}
	if o.RedisURL != "" {
		s.RedisURL = o.RedisURL
	}
	if o.LogLevel != "" {
		s.LogLevel = o.LogLevel
	}
	return s
}

// StateConfig defines session ledger storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings. `serve` refuses to start with
// the API disabled since it is the only way to reach its sessions.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ToolsConfig defines the tool dispatch server settings.
type ToolsConfig struct {
	ValidateArguments bool           `yaml:"validate_arguments"`
	Web               WebToolsConfig `yaml:"web,omitempty"`
}

// WebToolsConfig enables the Jina-backed fetch and search tools and the
// DeepL-backed translate tool.
type WebToolsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ReaderURL    string        `yaml:"reader_url"`
	SearchURL    string        `yaml:"search_url"`
	TranslateURL string        `yaml:"translate_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "mcpserve",
			LogLevel: "info",
		},
		Worker: WorkerConfig{
			Mode:        ModeStdio,
			GracePeriod: 1500 * time.Millisecond,
			StopTimeout: 5 * time.Second,
			Port:        8001,
			LogLevel:    "INFO",
		},
		State: StateConfig{
			Path: "./data/sessions.db",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8080",
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				ReaderURL:    "https://r.jina.ai/",
				SearchURL:    "https://s.jina.ai/",
				TranslateURL: "https://api-free.deepl.com/v2/translate",
				Timeout:      30 * time.Second,
			},
		},
	}
}
