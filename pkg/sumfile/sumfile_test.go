package sumfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumfile(t *testing.T) {
	t.Run("adds entries", func(t *testing.T) {
		var sf Sumfile

		sf.Add("ab", "b2", []byte{1, 2, 3})
		sf.Add("b", "b2", []byte{4, 5, 6})

		algo, data, ok := sf.Lookup("ab")
		require.True(t, ok)

		assert.Equal(t, "b2", algo)
		assert.Equal(t, []byte{1, 2, 3}, data)

		_, _, ok = sf.Lookup("c")
		require.False(t, ok)

		_, _, ok = sf.Lookup("a")
		require.False(t, ok)
	})

	t.Run("replaces an entry on re-add", func(t *testing.T) {
		var sf Sumfile

		sf.Add("hsbg", "b2", []byte{1, 2, 3})
		sf.Add("hsbg", "b2", []byte{9, 9, 9})

		require.Equal(t, 1, len(sf.entities))

		_, data, ok := sf.Lookup("hsbg")
		require.True(t, ok)

		assert.Equal(t, []byte{9, 9, 9}, data)
	})

	t.Run("removes entries", func(t *testing.T) {
		var sf Sumfile

		sf.Add("a", "b2", []byte{1})
		sf.Add("b", "b2", []byte{2})

		assert.True(t, sf.Remove("a"))
		assert.False(t, sf.Remove("a"))

		_, _, ok := sf.Lookup("a")
		assert.False(t, ok)

		_, _, ok = sf.Lookup("b")
		assert.True(t, ok)
	})

	t.Run("loads entries", func(t *testing.T) {
		var buf bytes.Buffer

		fmt.Fprintf(&buf, "b2:%s a\n", base58.Encode([]byte{1, 2, 3}))
		fmt.Fprintf(&buf, "b2:%s b\n", base58.Encode([]byte{4, 5, 6}))

		var sf Sumfile

		err := sf.Load(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)

		require.Equal(t, 2, len(sf.entities))

		he := sf.entities[0]

		assert.Equal(t, "a", he.entity)
		assert.Equal(t, "b2", he.algo)
		assert.Equal(t, []byte{1, 2, 3}, he.hash)
	})

	t.Run("saves entries", func(t *testing.T) {
		var sf Sumfile

		sf.Add("a", "b2", []byte{1, 2, 3})
		sf.Add("b", "b2", []byte{4, 5, 6})

		var buf bytes.Buffer

		err := sf.Save(&buf)
		require.NoError(t, err)

		expected := fmt.Sprintf("b2:%s a\nb2:%s b\n",
			base58.Encode([]byte{1, 2, 3}),
			base58.Encode([]byte{4, 5, 6}),
		)

		assert.Equal(t, expected, buf.String())
	})

	t.Run("round trips through a file", func(t *testing.T) {
		dir := t.TempDir()

		path := filepath.Join(dir, "sums")

		var sf Sumfile

		sf.Add("hsbg", "b2", []byte{7, 7, 7})

		err := sf.SaveFile(path)
		require.NoError(t, err)

		loaded, err := LoadFile(path)
		require.NoError(t, err)

		_, data, ok := loaded.Lookup("hsbg")
		require.True(t, ok)

		assert.Equal(t, []byte{7, 7, 7}, data)
	})

	t.Run("missing file loads empty", func(t *testing.T) {
		sf, err := LoadFile(filepath.Join(os.TempDir(), "does-not-exist-sums"))
		require.NoError(t, err)

		_, _, ok := sf.Lookup("anything")
		assert.False(t, ok)
	})
}
