package supervisor

import (
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/zeebo/blake3"
)

// Environment variable names handed to the worker.
const (
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvDeeplAPIKey  = "DEEPL_API_KEY"
	EnvRedisURL     = "REDIS_URL"
	EnvLogLevel     = "LOG_LEVEL"
	EnvIOEncoding   = "PYTHONIOENCODING"
	EnvWebPort      = "WEB_PORT"
)

// sessionBindings maps each recognized session config field to its variable.
var sessionBindings = []struct {
	name  string
	value func(config.SessionConfig) string
}{
	{EnvJinaAPIKey, func(c config.SessionConfig) string { return c.JinaAPIKey }},
	{EnvGeminiAPIKey, func(c config.SessionConfig) string { return c.GeminiAPIKey }},
	{EnvDeeplAPIKey, func(c config.SessionConfig) string { return c.DeeplAPIKey }},
	{EnvRedisURL, func(c config.SessionConfig) string { return c.RedisURL }},
	{EnvLogLevel, func(c config.SessionConfig) string { return c.LogLevel }},
}

// EnvDefaults are the values used when neither the session config nor the
// ambient environment sets a variable.
type EnvDefaults struct {
	Mode     Mode
	Port     int
	LogLevel string
}

// Environment is the composed process environment of one session.
// It is a value built from copies; the ambient input is never modified.
type Environment struct {
	vars       map[string]string
	overridden []string
}

// ComposeEnvironment overlays ambient (KEY=VALUE entries, later duplicates
// winning) with the non-empty fields of sc. Precedence per variable is
// session config, then ambient, then defaults. PYTHONIOENCODING is always
// forced to utf-8.
func ComposeEnvironment(ambient []string, sc config.SessionConfig, d EnvDefaults) Environment {
	env := Environment{vars: make(map[string]string, len(ambient)+8)}

	for _, kv := range ambient {
		// Skip the first byte so Windows "=C:=C:\" entries keep their name.
		i := strings.Index(kv[min(1, len(kv)):], "=")
		if i < 0 {
			continue
		}
		i += min(1, len(kv))
		env.vars[kv[:i]] = kv[i+1:]
	}

	for _, b := range sessionBindings {
		if v := b.value(sc); v != "" {
			env.vars[b.name] = v
			env.overridden = append(env.overridden, b.name)
		}
	}

	env.vars[EnvIOEncoding] = "utf-8"

	if d.Mode == ModeNetwork {
		if _, ok := env.vars[EnvWebPort]; !ok && d.Port > 0 {
			env.vars[EnvWebPort] = strconv.Itoa(d.Port)
		}
		if _, ok := env.vars[EnvLogLevel]; !ok && d.LogLevel != "" {
			env.vars[EnvLogLevel] = d.LogLevel
		}
	}

	return env
}

// Get returns the value of name and whether it is set.
func (e Environment) Get(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Len returns the number of variables.
func (e Environment) Len() int {
	return len(e.vars)
}

// Environ returns KEY=VALUE entries sorted by name, suitable for exec.Cmd.Env.
func (e Environment) Environ() []string {
	names := make([]string, 0, len(e.vars))
	for k := range e.vars {
		names = append(names, k)
	}
	slices.Sort(names)

	out := make([]string, 0, len(names))
	for _, k := range names {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}

// Overridden lists the variables set from the session config.
func (e Environment) Overridden() []string {
	return slices.Clone(e.overridden)
}

// Fingerprint is a BLAKE3 digest of the session-supplied variables. It lets
// the ledger tell sessions apart without storing secrets.
func (e Environment) Fingerprint() string {
	names := e.Overridden()
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(e.vars[name])
		b.WriteByte('\n')
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
