package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreflight(t *testing.T) {
	fakeTool := func(t *testing.T, dir, name string) {
		t.Helper()

		err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0755)
		require.NoError(t, err)
	}

	t.Run("passes with make and a compiler on the path", func(t *testing.T) {
		dir := t.TempDir()

		fakeTool(t, dir, "make")
		fakeTool(t, dir, "g++")

		assert.NoError(t, Preflight(dir))
	})

	t.Run("reports a missing make", func(t *testing.T) {
		dir := t.TempDir()

		fakeTool(t, dir, "g++")

		err := Preflight(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "make")
	})

	t.Run("reports a missing compiler", func(t *testing.T) {
		dir := t.TempDir()

		fakeTool(t, dir, "make")

		err := Preflight(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no compiler")
	})

	t.Run("slash paths bypass the search", func(t *testing.T) {
		path, err := lookPath("/bin/sh", "")
		require.NoError(t, err)
		assert.Equal(t, "/bin/sh", path)
	})

	t.Run("non executables are skipped", func(t *testing.T) {
		dir := t.TempDir()

		err := os.WriteFile(filepath.Join(dir, "make"), []byte("x"), 0644)
		require.NoError(t, err)

		_, err = lookPath("make", dir)
		assert.Error(t, err)
	})
}
