package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest(t *testing.T) {
	t.Run("parses a manifest", func(t *testing.T) {
		m, err := Parse([]byte(`
artifacts:
  - name: hsbg
    source: https://github.com/twanvl/hearthstone-battlegrounds-simulator
    ref: master
    build:
      - make hsbg
    artifacts:
      - hsbg
      - hsbg.*
`))
		require.NoError(t, err)

		require.Len(t, m.Artifacts, 1)

		art := m.Artifacts[0]

		assert.Equal(t, "hsbg", art.Name)
		assert.Equal(t, "git", art.SourceKind())
		assert.Equal(t, "master", art.BuildRef())
		assert.Equal(t, []string{"make hsbg"}, art.BuildSteps())
		assert.Equal(t, []string{"hsbg", "hsbg.*"}, art.ArtifactPatterns())
	})

	t.Run("fills defaults", func(t *testing.T) {
		m, err := Parse([]byte(`
artifacts:
  - name: hsbg
    source: https://example.com/sim.git
`))
		require.NoError(t, err)

		art := m.Artifacts[0]

		assert.Equal(t, "git", art.SourceKind())
		assert.Equal(t, "master", art.BuildRef())
		assert.Equal(t, []string{"make"}, art.BuildSteps())
		assert.Equal(t, []string{"hsbg", "hsbg.*"}, art.ArtifactPatterns())
	})

	t.Run("rejects duplicates and missing fields", func(t *testing.T) {
		_, err := Parse([]byte(`
artifacts:
  - name: hsbg
    source: https://example.com/a
  - name: hsbg
    source: https://example.com/b
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate artifact")

		_, err = Parse([]byte(`
artifacts:
  - name: hsbg
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing source")

		_, err = Parse([]byte(`
artifacts:
  - name: hsbg
    source: https://example.com/a
    kind: svn
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown source kind")
	})

	t.Run("rejects bad constraints", func(t *testing.T) {
		_, err := Parse([]byte(`
artifacts:
  - name: hsbg
    source: https://example.com/a
    constraint: "not a constraint"
`))
		require.Error(t, err)
	})

	t.Run("checks constraints against versions", func(t *testing.T) {
		art := &Artifact{Name: "hsbg", Source: "x", Constraint: ">= 1.2"}

		assert.True(t, art.Accepts("1.2"))
		assert.True(t, art.Accepts("2.0"))
		assert.False(t, art.Accepts("1.1"))
		assert.False(t, art.Accepts("garbage"))

		unconstrained := &Artifact{Name: "hsbg", Source: "x"}

		assert.True(t, unconstrained.Accepts("garbage"))
		assert.True(t, unconstrained.Accepts("0.1"))
	})

	t.Run("falls back to the default manifest", func(t *testing.T) {
		m, err := Load(filepath.Join(t.TempDir(), "forge.yaml"))
		require.NoError(t, err)

		require.Len(t, m.Artifacts, 1)

		assert.Equal(t, "hsbg", m.Artifacts[0].Name)
		assert.Equal(t, DefaultSimulatorSource, m.Artifacts[0].Source)
	})

	t.Run("looks up artifacts by name", func(t *testing.T) {
		m := Default()

		art, err := m.Lookup("hsbg")
		require.NoError(t, err)
		assert.Equal(t, "hsbg", art.Name)

		_, err = m.Lookup("nope")
		require.Error(t, err)
	})
}
