package supervisor

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardLines(t *testing.T) {
	var lines []string
	err := ForwardLines(strings.NewReader("one\r\ntwo\n\nthree"), func(l string) {
		lines = append(lines, l)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "", "three"}, lines)
}

func TestForwardLinesTooLong(t *testing.T) {
	long := strings.Repeat("x", maxLineBytes+10) + "\n"
	err := ForwardLines(strings.NewReader(long), func(string) {})
	assert.Error(t, err)
}

func TestLineTapPassesThrough(t *testing.T) {
	var lines []string
	src := io.NopCloser(strings.NewReader("{\"id\":1}\npartial"))
	tap := newLineTap(src, func(l string) { lines = append(lines, l) })

	data, err := io.ReadAll(tap)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1}\npartial", string(data))
	assert.Equal(t, []string{"{\"id\":1}", "partial"}, lines)
	assert.NoError(t, tap.Close())
}

func TestLineTapSplitAcrossReads(t *testing.T) {
	var lines []string
	r, w := io.Pipe()
	tap := newLineTap(r, func(l string) { lines = append(lines, l) })

	go func() {
		_, _ = w.Write([]byte("hel"))
		_, _ = w.Write([]byte("lo\nwor"))
		_, _ = w.Write([]byte("ld\n"))
		_ = w.Close()
	}()

	data, err := io.ReadAll(tap)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
	assert.Equal(t, []string{"hello", "world"}, lines)
}

func TestLineTapCapsLongLines(t *testing.T) {
	var lines []string
	src := io.NopCloser(strings.NewReader(strings.Repeat("y", maxLineBytes*2)))
	tap := newLineTap(src, func(l string) { lines = append(lines, l) })

	_, err := io.ReadAll(tap)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), maxLineBytes)
	}
}
