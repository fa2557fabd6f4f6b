package instance

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/hsbg-ai/forge/pkg/build"
	"github.com/hsbg-ai/forge/pkg/data"
	"github.com/hsbg-ai/forge/pkg/fileutils"
	"github.com/hsbg-ai/forge/pkg/manifest"
	"github.com/hsbg-ai/forge/pkg/sumfile"
)

const (
	stateFile = ".forge-state.json"
	sumsFile  = ".forge-sums"
)

// Store is the instance directory: the flat directory of installed
// simulator binaries that consumers look binaries up in, plus the state and
// checksum records the tool keeps beside them.
type Store struct {
	L   hclog.Logger
	Dir string
}

func Open(l hclog.Logger, dir string) (*Store, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}

	if l == nil {
		l = hclog.L()
	}

	return &Store{L: l, Dir: dir}, nil
}

// Install copies a built artifact into the instance directory, records its
// checksum and build info, and points the bare artifact name at it when the
// file carries a version suffix. The read-only bits mirror a frozen store
// entry.
func (s *Store) Install(ctx context.Context, art *manifest.Artifact, res *build.Result) (*data.ArtifactInfo, error) {
	base := filepath.Base(res.Artifact)
	dest := filepath.Join(s.Dir, base)

	os.Remove(dest)

	inst := fileutils.Install{
		Ctx:     ctx,
		L:       s.L,
		Pattern: res.Artifact,
		Dest:    dest,
		ModeOr:  0555,
	}

	err := inst.Install()
	if err != nil {
		return nil, errors.Wrapf(err, "installing %s", base)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}

	err = os.Chmod(dest, fi.Mode().Perm()&0555)
	if err != nil {
		return nil, errors.Wrapf(err, "freezing %s", base)
	}

	sum, size, err := hashFile(dest)
	if err != nil {
		return nil, err
	}

	ai := &data.ArtifactInfo{
		ID:      res.Info.Name + "-" + base58.Encode(sum[:8]),
		Name:    art.Name,
		Version: res.Info.Version,
		File:    base,
		SumType: "b2",
		Sum:     base58.Encode(sum),
		Size:    size,
		Build:   res.Info,
	}

	if base != art.Name {
		link := filepath.Join(s.Dir, art.Name)
		os.Remove(link)

		li := fileutils.Install{
			L:       s.L,
			Pattern: dest,
			Dest:    link,
			Linked:  true,
		}

		err = li.Install()
		if err != nil {
			return nil, err
		}
	}

	sf, err := sumfile.LoadFile(filepath.Join(s.Dir, sumsFile))
	if err != nil {
		return nil, err
	}

	_, err = sf.Add(base, "b2", sum)
	if err != nil {
		return nil, err
	}

	err = sf.SaveFile(filepath.Join(s.Dir, sumsFile))
	if err != nil {
		return nil, err
	}

	state, err := s.State()
	if err != nil {
		return nil, err
	}

	prev := state.Upsert(ai)
	state.Current = art.Name

	err = s.SaveState(state)
	if err != nil {
		return nil, err
	}

	if prev != nil && prev.File != ai.File {
		s.L.Debug("removing replaced artifact", "file", prev.File)
		os.Remove(filepath.Join(s.Dir, prev.File))
		sf.Remove(prev.File)
		sf.SaveFile(filepath.Join(s.Dir, sumsFile))
	}

	s.L.Info("installed artifact",
		"name", ai.Name, "file", ai.File, "id", ai.ID, "sum", "b2:"+ai.Sum)

	return ai, nil
}

// Resolve returns the path consumers should invoke for an artifact: the
// bare name if present, else the highest installed versioned file.
func (s *Store) Resolve(name string) (string, error) {
	exact := filepath.Join(s.Dir, name)

	if fi, err := os.Stat(exact); err == nil && fi.Mode().IsRegular() {
		return exact, nil
	}

	if _, err := os.Lstat(exact); err == nil {
		return exact, nil
	}

	matches, err := filepath.Glob(filepath.Join(s.Dir, name+".*"))
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return "", errors.Errorf("no %s binary installed under %s", name, s.Dir)
	}

	sort.Slice(matches, func(i, j int) bool {
		vi := strings.TrimPrefix(filepath.Base(matches[i]), name+".")
		vj := strings.TrimPrefix(filepath.Base(matches[j]), name+".")
		return build.LessVersion(vi, vj)
	})

	return matches[len(matches)-1], nil
}

// Verify re-hashes an installed artifact against the recorded sum.
func (s *Store) Verify(name string) (*data.ArtifactInfo, error) {
	state, err := s.State()
	if err != nil {
		return nil, err
	}

	ai := state.Lookup(name)
	if ai == nil {
		return nil, errors.Errorf("not installed: %s", name)
	}

	sf, err := sumfile.LoadFile(filepath.Join(s.Dir, sumsFile))
	if err != nil {
		return nil, err
	}

	algo, want, ok := sf.Lookup(ai.File)
	if !ok {
		return nil, errors.Errorf("no recorded sum for: %s", ai.File)
	}

	if algo != "b2" {
		return nil, errors.Errorf("unknown sum algo for %s: %s", ai.File, algo)
	}

	sum, _, err := hashFile(filepath.Join(s.Dir, ai.File))
	if err != nil {
		return nil, err
	}

	if base58.Encode(sum) != base58.Encode(want) {
		return nil, errors.Errorf("sum mismatch for %s: have b2:%s, want b2:%s",
			ai.File, base58.Encode(sum), base58.Encode(want))
	}

	return ai, nil
}

// Remove deletes an installed artifact along with its records.
func (s *Store) Remove(name string) error {
	state, err := s.State()
	if err != nil {
		return err
	}

	ai := state.Lookup(name)
	if ai == nil {
		return errors.Errorf("not installed: %s", name)
	}

	os.Remove(filepath.Join(s.Dir, ai.File))

	if ai.File != ai.Name {
		os.Remove(filepath.Join(s.Dir, ai.Name))
	}

	sf, err := sumfile.LoadFile(filepath.Join(s.Dir, sumsFile))
	if err == nil && sf.Remove(ai.File) {
		sf.SaveFile(filepath.Join(s.Dir, sumsFile))
	}

	var kept []*data.ArtifactInfo

	for _, a := range state.Artifacts {
		if a.Name != name {
			kept = append(kept, a)
		}
	}

	state.Artifacts = kept

	if state.Current == name {
		state.Current = ""
	}

	return s.SaveState(state)
}

func (s *Store) DiskUsage() (int64, error) {
	var total int64

	state, err := s.State()
	if err != nil {
		return 0, err
	}

	for _, ai := range state.Artifacts {
		fi, err := os.Stat(filepath.Join(s.Dir, ai.File))
		if err != nil {
			continue
		}

		total += fi.Size()
	}

	return total, nil
}

func hashFile(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	defer f.Close()

	h, _ := blake2b.New256(nil)

	size, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, err
	}

	return h.Sum(nil), size, nil
}
