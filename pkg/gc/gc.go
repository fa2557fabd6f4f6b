package gc

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/mod/module"

	"github.com/hsbg-ai/forge/pkg/config"
	"github.com/hsbg-ai/forge/pkg/instance"
	"github.com/hsbg-ai/forge/pkg/manifest"
	"github.com/hsbg-ai/forge/pkg/progress"
	"github.com/hsbg-ai/forge/pkg/source"
)

// Collector removes whatever the manifest and instance state no longer
// reference: stale scratch build dirs, exported source trees and mirror
// caches for artifacts that left the manifest, and instance files the state
// doesn't claim.
type Collector struct {
	L   hclog.Logger
	cfg *config.Config
	man *manifest.Manifest
}

func NewCollector(l hclog.Logger, cfg *config.Config, man *manifest.Manifest) (*Collector, error) {
	if l == nil {
		l = hclog.L()
	}

	return &Collector{L: l, cfg: cfg, man: man}, nil
}

type Result struct {
	Kept           []string
	Removed        []string
	BytesRecovered int64
	EntriesRemoved int
}

// Mark returns the set of absolute paths still referenced.
func (c *Collector) Mark() (map[string]struct{}, error) {
	keep := map[string]struct{}{}

	for _, art := range c.man.Artifacts {
		escName, err := source.RepoName(art.Source)
		if err != nil {
			return nil, err
		}

		if art.SourceKind() == "git" {
			escRef, err := module.EscapeVersion(art.BuildRef())
			if err != nil {
				return nil, err
			}

			keep[filepath.Join(c.cfg.SourcePath(), escName+"@"+escRef)] = struct{}{}
		} else {
			keep[filepath.Join(c.cfg.SourcePath(), escName)] = struct{}{}
		}
	}

	instDir, err := c.cfg.InstancePath()
	if err != nil {
		return nil, err
	}

	store, err := instance.Open(c.L, instDir)
	if err != nil {
		return nil, err
	}

	state, err := store.State()
	if err != nil {
		return nil, err
	}

	for _, ai := range state.Artifacts {
		keep[filepath.Join(instDir, ai.File)] = struct{}{}

		if ai.File != ai.Name {
			keep[filepath.Join(instDir, ai.Name)] = struct{}{}
		}
	}

	return keep, nil
}

// Sweep removes everything unmarked. With dryRun it only reports what would
// go.
func (c *Collector) Sweep(ctx context.Context, keep map[string]struct{}, dryRun bool) (*Result, error) {
	var res Result

	for p := range keep {
		res.Kept = append(res.Kept, p)
	}

	sort.Strings(res.Kept)

	var doomed []string

	// Scratch dirs never survive a completed install; all of them go.
	doomed = append(doomed, entries(c.cfg.BuildPath(), nil)...)

	doomed = append(doomed, staleSourceTrees(c.cfg.SourcePath(), keep)...)

	// Mirror caches are cheap to rebuild; drop any for sources that left
	// the manifest.
	doomed = append(doomed, staleMirrors(c.cfg.CachePath(), c.man)...)

	instDir, err := c.cfg.InstancePath()
	if err != nil {
		return nil, err
	}

	doomed = append(doomed, strayInstanceFiles(instDir, keep)...)

	sort.Strings(doomed)

	bar := progress.Count(ctx, int64(len(doomed)), "Collecting garbage")
	defer bar.Close()

	for _, path := range doomed {
		sz, cnt := diskUsage(path)

		res.Removed = append(res.Removed, path)
		res.BytesRecovered += sz
		res.EntriesRemoved += cnt

		if !dryRun {
			c.L.Debug("gc remove", "path", path)

			err := os.RemoveAll(path)
			if err != nil {
				return nil, err
			}
		}

		bar.Tick()
	}

	return &res, nil
}

// DiskUsage totals the on-disk size of the given paths.
func (c *Collector) DiskUsage(paths []string) (int64, error) {
	var total int64

	for _, p := range paths {
		sz, _ := diskUsage(p)
		total += sz
	}

	return total, nil
}

func entries(dir string, keep map[string]struct{}) []string {
	var out []string

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	for _, e := range ents {
		path := filepath.Join(dir, e.Name())

		if keep != nil {
			if _, ok := keep[path]; ok {
				continue
			}
		}

		out = append(out, path)
	}

	return out
}

// staleSourceTrees finds unreferenced trees under the source dir. Trees live
// at nested escaped paths (host/owner/repo@ref), so the scan descends through
// any directory that still leads to a kept tree and dooms the rest whole.
func staleSourceTrees(dir string, keep map[string]struct{}) []string {
	parents := map[string]struct{}{}

	for p := range keep {
		if !strings.HasPrefix(p, dir+string(filepath.Separator)) {
			continue
		}

		for q := filepath.Dir(p); len(q) > len(dir); q = filepath.Dir(q) {
			parents[q] = struct{}{}
		}
	}

	var out []string

	var walk func(d string)
	walk = func(d string) {
		ents, err := os.ReadDir(d)
		if err != nil {
			return
		}

		for _, e := range ents {
			path := filepath.Join(d, e.Name())

			if _, ok := keep[path]; ok {
				continue
			}

			if _, ok := parents[path]; ok {
				walk(path)
				continue
			}

			out = append(out, path)
		}
	}

	walk(dir)

	return out
}

func staleMirrors(cacheDir string, man *manifest.Manifest) []string {
	live := map[string]struct{}{}

	for _, art := range man.Artifacts {
		if art.SourceKind() != "git" {
			continue
		}

		live[source.MirrorDir(cacheDir, art.Source)] = struct{}{}
	}

	var out []string

	ents, err := os.ReadDir(cacheDir)
	if err != nil {
		return nil
	}

	for _, e := range ents {
		path := filepath.Join(cacheDir, e.Name())
		if _, ok := live[path]; !ok {
			out = append(out, path)
		}
	}

	return out
}

func strayInstanceFiles(dir string, keep map[string]struct{}) []string {
	var out []string

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	for _, e := range ents {
		name := e.Name()

		// The tool's own records stay.
		if name[0] == '.' {
			continue
		}

		path := filepath.Join(dir, name)
		if _, ok := keep[path]; !ok {
			out = append(out, path)
		}
	}

	return out
}

func diskUsage(path string) (int64, int) {
	var (
		total int64
		count int
	)

	filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.Mode().IsRegular() {
			total += info.Size()
			count++
		}

		return nil
	})

	return total, count
}
