package supervisor

import (
	"runtime"
	"testing"

	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeEnvironmentPrecedence(t *testing.T) {
	ambient := []string{
		"PATH=/usr/bin",
		"JINA_API_KEY=ambient-jina",
		"REDIS_URL=redis://ambient",
		"PYTHONIOENCODING=latin-1",
	}
	sc := config.SessionConfig{JinaAPIKey: "session-jina", GeminiAPIKey: "session-gemini"}

	env := ComposeEnvironment(ambient, sc, EnvDefaults{Mode: ModeStream})

	get := func(name string) string {
		v, ok := env.Get(name)
		require.True(t, ok, "%s should be set", name)
		return v
	}
	assert.Equal(t, "session-jina", get(EnvJinaAPIKey))
	assert.Equal(t, "session-gemini", get(EnvGeminiAPIKey))
	assert.Equal(t, "redis://ambient", get(EnvRedisURL))
	assert.Equal(t, "/usr/bin", get("PATH"))
	assert.Equal(t, "utf-8", get(EnvIOEncoding))

	_, ok := env.Get(EnvDeeplAPIKey)
	assert.False(t, ok, "empty session fields must not create variables")
	assert.ElementsMatch(t, []string{EnvJinaAPIKey, EnvGeminiAPIKey}, env.Overridden())

	// Ambient input is left alone.
	assert.Equal(t, "JINA_API_KEY=ambient-jina", ambient[1])
}

func TestComposeEnvironmentNetworkDefaults(t *testing.T) {
	d := EnvDefaults{Mode: ModeNetwork, Port: 8001, LogLevel: "INFO"}

	t.Run("defaults fill gaps", func(t *testing.T) {
		env := ComposeEnvironment(nil, config.SessionConfig{}, d)
		port, _ := env.Get(EnvWebPort)
		level, _ := env.Get(EnvLogLevel)
		assert.Equal(t, "8001", port)
		assert.Equal(t, "INFO", level)
	})

	t.Run("ambient beats default", func(t *testing.T) {
		env := ComposeEnvironment([]string{"WEB_PORT=9100", "LOG_LEVEL=WARNING"}, config.SessionConfig{}, d)
		port, _ := env.Get(EnvWebPort)
		level, _ := env.Get(EnvLogLevel)
		assert.Equal(t, "9100", port)
		assert.Equal(t, "WARNING", level)
	})

	t.Run("session config beats ambient", func(t *testing.T) {
		env := ComposeEnvironment([]string{"LOG_LEVEL=WARNING"}, config.SessionConfig{LogLevel: "DEBUG"}, d)
		level, _ := env.Get(EnvLogLevel)
		assert.Equal(t, "DEBUG", level)
	})

	t.Run("stream mode has no network defaults", func(t *testing.T) {
		env := ComposeEnvironment(nil, config.SessionConfig{}, EnvDefaults{Mode: ModeStream, Port: 8001, LogLevel: "INFO"})
		_, ok := env.Get(EnvWebPort)
		assert.False(t, ok)
		_, ok = env.Get(EnvLogLevel)
		assert.False(t, ok)
		assert.Equal(t, 1, env.Len())
	})
}

func TestComposeEnvironmentAmbientParsing(t *testing.T) {
	env := ComposeEnvironment([]string{
		"=C:=C:\\work",
		"NOVALUE",
		"EMPTY=",
		"DUP=first",
		"DUP=second",
		"EQ=a=b",
	}, config.SessionConfig{}, EnvDefaults{Mode: ModeStream})

	v, ok := env.Get("=C:")
	assert.True(t, ok)
	assert.Equal(t, "C:\\work", v)

	_, ok = env.Get("NOVALUE")
	assert.False(t, ok)

	v, ok = env.Get("EMPTY")
	assert.True(t, ok)
	assert.Empty(t, v)

	v, _ = env.Get("DUP")
	assert.Equal(t, "second", v)

	v, _ = env.Get("EQ")
	assert.Equal(t, "a=b", v)
}

func TestEnvironmentEnvironSorted(t *testing.T) {
	env := ComposeEnvironment([]string{"ZED=1", "ALPHA=2"}, config.SessionConfig{RedisURL: "redis://x"}, EnvDefaults{Mode: ModeStream})
	assert.Equal(t, []string{
		"ALPHA=2",
		"PYTHONIOENCODING=utf-8",
		"REDIS_URL=redis://x",
		"ZED=1",
	}, env.Environ())
}

func TestEnvironmentFingerprint(t *testing.T) {
	a := ComposeEnvironment([]string{"HOME=/a"}, config.SessionConfig{JinaAPIKey: "k1"}, EnvDefaults{Mode: ModeStream})
	b := ComposeEnvironment([]string{"HOME=/b"}, config.SessionConfig{JinaAPIKey: "k1"}, EnvDefaults{Mode: ModeNetwork, Port: 1})
	c := ComposeEnvironment(nil, config.SessionConfig{JinaAPIKey: "k2"}, EnvDefaults{Mode: ModeStream})

	assert.Len(t, a.Fingerprint(), 32)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "only session-supplied variables are fingerprinted")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestDefaultInvocation(t *testing.T) {
	tests := []struct {
		mode Mode
		goos string
		want Invocation
	}{
		{ModeStream, "linux", Invocation{Path: "python3", Args: []string{"-m", "enhanced_mcp_server.core.server"}}},
		{ModeStream, "windows", Invocation{Path: "python", Args: []string{"-m", "enhanced_mcp_server.core.server"}}},
		{ModeNetwork, "darwin", Invocation{Path: "python3", Args: []string{"-m", "enhanced_mcp_server.main", "--http"}}},
		{ModeNetwork, "windows", Invocation{Path: "python", Args: []string{"-m", "enhanced_mcp_server.main", "--http"}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.goos, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultInvocation(tt.mode, tt.goos))
		})
	}
}

func TestInvocationFromConfig(t *testing.T) {
	inv := InvocationFromConfig(config.WorkerConfig{Command: "/opt/py/bin/python"}, ModeNetwork)
	assert.Equal(t, "/opt/py/bin/python", inv.Path)
	assert.Equal(t, []string{"-m", "enhanced_mcp_server.main", "--http"}, inv.Args)

	args := []string{"-m", "other"}
	inv = InvocationFromConfig(config.WorkerConfig{Args: args}, ModeStream)
	assert.Equal(t, DefaultInvocation(ModeStream, runtime.GOOS).Path, inv.Path)
	assert.Equal(t, args, inv.Args)
	args[1] = "mutated"
	assert.Equal(t, "other", inv.Args[1])
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("stdio")
	require.NoError(t, err)
	assert.Equal(t, ModeStream, m)

	m, err = ParseMode("http")
	require.NoError(t, err)
	assert.Equal(t, ModeNetwork, m)

	_, err = ParseMode("grpc")
	assert.Error(t, err)
}
