package status

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLine(t *testing.T) {
	var buf bytes.Buffer

	l := NewLine(&buf)

	require.NoError(t, l.Set("compiling hsbg.cpp"))

	out := buf.String()

	// erases the previous line before writing the new one
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "compiling hsbg.cpp")

	buf.Reset()

	require.NoError(t, l.Set(""))

	assert.NotContains(t, buf.String(), "compiling")
}
