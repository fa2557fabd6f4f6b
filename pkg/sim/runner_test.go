package sim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSimulator writes a shell script that behaves like the hsbg binary:
// it rejects configs naming an unknown minion and prints a canned
// statistics block otherwise.
func fakeSimulator(t *testing.T, dir string) string {
	t.Helper()

	script := fmt.Sprintf(`#!/bin/sh
if grep -q Allycat "$1"; then
  echo "Error: unknown minion: Allycat"
  exit 0
fi
cat <<'EOF'
%s
EOF
`, sampleOutput)

	path := filepath.Join(dir, "hsbg")

	err := os.WriteFile(path, []byte(script), 0755)
	require.NoError(t, err)

	return path
}

func TestRunner(t *testing.T) {
	dir := t.TempDir()
	bin := fakeSimulator(t, dir)

	ctx := context.Background()

	t.Run("simulates a config file", func(t *testing.T) {
		cfgPath := filepath.Join(dir, "battle")

		err := os.WriteFile(cfgPath, []byte(SmokeConfig), 0644)
		require.NoError(t, err)

		r := &Runner{Binary: bin}

		b, err := r.SimulateFile(ctx, cfgPath, 0)
		require.NoError(t, err)

		assert.InDelta(t, 0.769, b.WinProbability, 1e-9)
	})

	t.Run("appends a run command when missing", func(t *testing.T) {
		r := &Runner{Binary: bin}

		b, err := r.Simulate(ctx, "Board\n* 1/1 Alleycat\nVS\nBoard\n* 1/1 Alleycat\n", 500)
		require.NoError(t, err)

		assert.InDelta(t, 0.231, b.LoseProbability, 1e-9)
	})

	t.Run("surfaces simulator config errors", func(t *testing.T) {
		r := &Runner{Binary: bin}

		_, err := r.Simulate(ctx, "Board\n* 1/1 Allycat\nVS\nBoard\n* 1/1 Alleycat\n", 100)
		require.Error(t, err)

		assert.Contains(t, err.Error(), "unknown minion")
	})

	t.Run("cleans up the staged config", func(t *testing.T) {
		r := &Runner{Binary: bin}

		_, err := r.Smoke(ctx)
		require.NoError(t, err)

		matches, err := filepath.Glob(filepath.Join(dir, ".battle-*"))
		require.NoError(t, err)

		assert.Empty(t, matches)
	})
}
