package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// A directory is accepted and resolved to its config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefaults loads configPath when set. With an empty path it tries
// $MCPSERVE_CONFIG and ./mcpserve.yaml, and falls back to Defaults().
func LoadOrDefaults(configPath string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}
	if p := os.Getenv("MCPSERVE_CONFIG"); p != "" {
		return Load(p)
	}
	if _, err := os.Stat("mcpserve.yaml"); err == nil {
		return Load("mcpserve.yaml")
	}
	cfg := Defaults()
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	// Parse on top of the defaults so that booleans which default to true
	// (api.enabled) survive a file that does not mention them.
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return cfg, nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}

	if cfg.Worker.Mode == "" {
		cfg.Worker.Mode = defaults.Worker.Mode
	}
	if cfg.Worker.GracePeriod == 0 {
		cfg.Worker.GracePeriod = defaults.Worker.GracePeriod
	}
	if cfg.Worker.StopTimeout == 0 {
		cfg.Worker.StopTimeout = defaults.Worker.StopTimeout
	}
	if cfg.Worker.Port == 0 {
		cfg.Worker.Port = defaults.Worker.Port
	}
	if cfg.Worker.LogLevel == "" {
		cfg.Worker.LogLevel = defaults.Worker.LogLevel
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Tools.Web.ReaderURL == "" {
		cfg.Tools.Web.ReaderURL = defaults.Tools.Web.ReaderURL
	}
	if cfg.Tools.Web.SearchURL == "" {
		cfg.Tools.Web.SearchURL = defaults.Tools.Web.SearchURL
	}
	if cfg.Tools.Web.TranslateURL == "" {
		cfg.Tools.Web.TranslateURL = defaults.Tools.Web.TranslateURL
	}
	if cfg.Tools.Web.Timeout == 0 {
		cfg.Tools.Web.Timeout = defaults.Tools.Web.Timeout
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	switch cfg.Worker.Mode {
	case ModeStdio, ModeHTTP:
	default:
		return fmt.Errorf("worker.mode must be one of: %s, %s (got %q)", ModeStdio, ModeHTTP, cfg.Worker.Mode)
	}
	if cfg.Worker.GracePeriod < 0 {
		return fmt.Errorf("worker.grace_period must not be negative")
	}
	if cfg.Worker.StopTimeout < 0 {
		return fmt.Errorf("worker.stop_timeout must not be negative")
	}
	if cfg.Worker.Port < 1 || cfg.Worker.Port > 65535 {
		return fmt.Errorf("worker.port must be between 1 and 65535 (got %d)", cfg.Worker.Port)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when the API is enabled")
	}

	if cfg.Tools.Web.Enabled && cfg.Tools.Web.Timeout <= 0 {
		return fmt.Errorf("tools.web.timeout must be positive")
	}

	// Unresolved placeholders would otherwise be handed to the worker verbatim.
	fields := map[string]string{
		"worker.command":         cfg.Worker.Command,
		"session.jina_api_key":   cfg.Session.JinaAPIKey,
		"session.gemini_api_key": cfg.Session.GeminiAPIKey,
		"session.deepl_api_key":  cfg.Session.DeeplAPIKey,
		"session.redis_url":      cfg.Session.RedisURL,
		"session.log_level":      cfg.Session.LogLevel,
	}
	for field, value := range fields {
		if err := checkUnresolvedEnvVar(field, value); err != nil {
			return err
		}
	}
	for i, arg := range cfg.Worker.Args {
		if err := checkUnresolvedEnvVar(fmt.Sprintf("worker.args[%d]", i), arg); err != nil {
			return err
		}
	}

	return nil
}

func checkUnresolvedEnvVar(field, value string) error {
	if !envVarPattern.MatchString(value) {
		return nil
	}
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return fmt.Errorf("%s: unresolved environment variable", field)
}
