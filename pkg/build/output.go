package build

import (
	"bytes"

	"github.com/hsbg-ai/forge/pkg/status"
)

// tailWriter mirrors the last full line of build tool output onto a
// transient status line, so long compiles show signs of life without
// scrolling the terminal.
type tailWriter struct {
	line    *status.Line
	partial []byte
}

func newTailWriter(line *status.Line) *tailWriter {
	return &tailWriter{line: line}
}

func (t *tailWriter) Write(b []byte) (int, error) {
	t.partial = append(t.partial, b...)

	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx == -1 {
			break
		}

		full := bytes.TrimRight(t.partial[:idx], "\r")
		t.partial = t.partial[idx+1:]

		if len(full) == 0 {
			continue
		}

		if len(full) > 120 {
			full = full[:120]
		}

		err := t.line.Set(string(full))
		if err != nil {
			return len(b), err
		}
	}

	return len(b), nil
}

func (t *tailWriter) Flush() error {
	t.partial = nil
	return t.line.Set("")
}
