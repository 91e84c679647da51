package supervisor

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
)

// maxLineBytes caps a single forwarded output line.
const maxLineBytes = 64 * 1024

// LineFunc receives one line of worker output without its terminator.
type LineFunc func(line string)

// lineTap passes reads through unchanged and mirrors complete lines to emit.
// Mirroring never blocks or fails the caller's read.
type lineTap struct {
	r    io.ReadCloser
	emit LineFunc
	buf  []byte
}

func newLineTap(r io.ReadCloser, emit LineFunc) *lineTap {
	return &lineTap{r: r, emit: emit}
}

func (t *lineTap) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.scan(p[:n])
	}
	if err != nil && len(t.buf) > 0 {
		t.flush()
	}
	return n, err
}

func (t *lineTap) Close() error {
	return t.r.Close()
}

func (t *lineTap) scan(data []byte) {
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			t.buf = append(t.buf, data...)
			if len(t.buf) >= maxLineBytes {
				t.flush()
			}
			return
		}
		t.buf = append(t.buf, data[:i]...)
		t.flush()
		data = data[i+1:]
	}
}

func (t *lineTap) flush() {
	line := bytes.TrimRight(t.buf, "\r")
	if len(line) > maxLineBytes {
		line = line[:maxLineBytes]
	}
	t.emit(string(line))
	t.buf = t.buf[:0]
}

// ForwardLines reads r to EOF and hands every line to emit. It returns the
// read error, if any, other than EOF or a closed pipe.
func ForwardLines(r io.Reader, emit LineFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		emit(string(bytes.TrimRight(scanner.Bytes(), "\r")))
	}
	err := scanner.Err()
	if err == nil || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
