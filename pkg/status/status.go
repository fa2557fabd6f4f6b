package status

import (
	"io"

	"github.com/morikuni/aec"
)

// Line writes a single transient line, erasing whatever was there before.
type Line struct {
	output io.Writer
}

func NewLine(w io.Writer) *Line {
	return &Line{output: w}
}

func (l *Line) Set(s string) error {
	seq := aec.EmptyBuilder.Column(0).EraseLine(aec.EraseModes.All).ANSI.String()

	_, err := io.WriteString(l.output, seq+s)
	return err
}
