package build

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/hsbg-ai/forge/pkg/manifest"
)

type candidate struct {
	path    string
	version string
}

// Locate finds the built artifact under dir. Patterns are tried in order;
// an exact name wins outright, and among suffixed matches (hsbg.1.2) the
// highest version satisfying the manifest constraint is picked.
func Locate(dir string, art *manifest.Artifact) (string, string, error) {
	for _, pattern := range art.ArtifactPatterns() {
		cands, err := scan(dir, art, pattern)
		if err != nil {
			return "", "", err
		}

		if len(cands) == 0 {
			continue
		}

		sort.Slice(cands, func(i, j int) bool {
			return LessVersion(cands[i].version, cands[j].version)
		})

		best := cands[len(cands)-1]
		return best.path, best.version, nil
	}

	return "", "", errors.Errorf("no artifact matching %s under %s",
		strings.Join(art.ArtifactPatterns(), ", "), dir)
}

func scan(dir string, art *manifest.Artifact, pattern string) ([]candidate, error) {
	var cands []candidate

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		base := filepath.Base(path)

		ok, err := filepath.Match(pattern, base)
		if err != nil {
			return err
		}

		if !ok {
			return nil
		}

		// Build products only; sources like hsbg.cpp also match hsbg.*
		if info.Mode().Perm()&0111 == 0 {
			return nil
		}

		version := ""
		if base != art.Name && strings.HasPrefix(base, art.Name+".") {
			version = strings.TrimPrefix(base, art.Name+".")
		}

		if version != "" && !art.Accepts(version) {
			return nil
		}

		cands = append(cands, candidate{path: path, version: version})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cands, nil
}

// LessVersion orders version suffixes the way `sort -V` would, semver
// first, falling back to a plain string compare.
func LessVersion(a, b string) bool {
	va, erra := semver.NewVersion(a)
	vb, errb := semver.NewVersion(b)

	if erra == nil && errb == nil {
		return va.LessThan(vb)
	}

	return a < b
}
