package source

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoName(t *testing.T) {
	name, err := RepoName("https://github.com/twanvl/hearthstone-battlegrounds-simulator")
	require.NoError(t, err)

	assert.Equal(t, "github.com/twanvl/hearthstone-battlegrounds-simulator", name)

	name, err = RepoName("https://example.com/Some/Repo.git")
	require.NoError(t, err)

	// escaped for case-insensitive filesystems, like module paths
	assert.Equal(t, "example.com/!some/!repo", name)
}

func TestMirrorDir(t *testing.T) {
	a := MirrorDir("/cache", "https://example.com/a")
	b := MirrorDir("/cache", "https://example.com/b")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, MirrorDir("/cache", "https://example.com/a"))
	assert.Equal(t, "/cache", filepath.Dir(a))
}

func TestSplitSum(t *testing.T) {
	t.Run("sha256", func(t *testing.T) {
		st, val, err := splitSum("sha256:deadbeef")
		require.NoError(t, err)

		assert.Equal(t, "sha256", st)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, val)
	})

	t.Run("etag", func(t *testing.T) {
		st, val, err := splitSum("etag:abc123")
		require.NoError(t, err)

		assert.Equal(t, "etag", st)
		assert.Equal(t, []byte("abc123"), val)
	})

	t.Run("empty is unpinned", func(t *testing.T) {
		st, val, err := splitSum("")
		require.NoError(t, err)

		assert.Equal(t, "", st)
		assert.Nil(t, val)
	})

	t.Run("rejects malformed sums", func(t *testing.T) {
		_, _, err := splitSum("nocolon")
		require.Error(t, err)

		_, _, err = splitSum("md5:abc")
		require.Error(t, err)
	})
}

func TestRepoId(t *testing.T) {
	t.Run("falls back to the directory name", func(t *testing.T) {
		dir := t.TempDir()

		id, err := RepoId(dir)
		require.NoError(t, err)

		assert.Equal(t, filepath.Base(dir), id)
	})
}

func TestRemoteRepoId(t *testing.T) {
	id, err := remoteRepoId("git@github.com:twanvl/hearthstone-battlegrounds-simulator.git")
	require.NoError(t, err)

	assert.Equal(t, "github.com/twanvl/hearthstone-battlegrounds-simulator", id)

	id, err = remoteRepoId("https://github.com/twanvl/hearthstone-battlegrounds-simulator.git")
	require.NoError(t, err)

	assert.Equal(t, "github.com/twanvl/hearthstone-battlegrounds-simulator", id)
}
