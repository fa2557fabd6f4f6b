package source

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/module"

	"github.com/hsbg-ai/forge/pkg/manifest"
	"github.com/hsbg-ai/forge/pkg/progress"
)

// Tree is a materialized source checkout ready to build.
type Tree struct {
	Path        string
	Ref         string
	ResolvedRef string
}

// Fetcher maintains a bare mirror per origin under CacheDir and exports
// pristine trees under SourceDir, one per name@ref. The layout follows what
// go's module fetch does for vcs repos.
type Fetcher struct {
	L         hclog.Logger
	CacheDir  string
	SourceDir string
}

func (f *Fetcher) logger() hclog.Logger {
	if f.L == nil {
		f.L = hclog.L()
	}

	return f.L
}

func (f *Fetcher) run(ctx context.Context, dir string, cmds ...string) error {
	f.logger().Debug("run", "dir", dir, "cmd", strings.Join(cmds, " "))

	cmd := exec.CommandContext(ctx, cmds[0], cmds[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

func (f *Fetcher) capture(ctx context.Context, dir string, cmds ...string) ([]byte, error) {
	var buf bytes.Buffer

	cmd := exec.CommandContext(ctx, cmds[0], cmds[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &buf
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func cacheKey(kind, location string) string {
	sum := blake2b.Sum256([]byte(kind + ":" + location))
	return base58.Encode(sum[:])
}

// MirrorDir is the bare mirror path a git source maps to under cacheDir.
func MirrorDir(cacheDir, location string) string {
	return filepath.Join(cacheDir, cacheKey("git", location))
}

// RepoName derives the escaped directory name for a source url.
func RepoName(location string) (string, error) {
	name := location

	u, err := url.Parse(location)
	if err == nil && u.Host != "" {
		name = filepath.Join(u.Host, u.Path)
	}

	name = strings.TrimSuffix(name, ".git")

	return module.EscapePath(name)
}

// Fetch brings the artifact's source up to date in the mirror cache and
// exports the requested ref as a clean tree. The returned tree records the
// commit the ref resolved to.
func (f *Fetcher) Fetch(ctx context.Context, art *manifest.Artifact) (*Tree, error) {
	if art.SourceKind() != "git" {
		return nil, errors.Errorf("not a git source: %s", art.Name)
	}

	escName, err := RepoName(art.Source)
	if err != nil {
		return nil, err
	}

	ref := art.BuildRef()

	escRef, err := module.EscapeVersion(ref)
	if err != nil {
		return nil, err
	}

	cache := MirrorDir(f.CacheDir, art.Source)

	spin := progress.Spin(ctx, "Fetching "+art.Source)

	err = f.ensureMirror(ctx, cache, art.Source)
	spin.Close()

	if err != nil {
		return nil, err
	}

	resolved, err := f.resolve(ctx, cache, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s in %s", ref, art.Source)
	}

	destPath := filepath.Join(f.SourceDir, escName+"@"+escRef)

	if _, err := os.Stat(destPath); err == nil {
		return &Tree{Path: destPath, Ref: ref, ResolvedRef: resolved}, nil
	}

	err = f.export(ctx, cache, resolved, destPath)
	if err != nil {
		os.RemoveAll(destPath)
		return nil, err
	}

	return &Tree{Path: destPath, Ref: ref, ResolvedRef: resolved}, nil
}

func (f *Fetcher) ensureMirror(ctx context.Context, cache, location string) error {
	if _, err := os.Stat(cache); err != nil {
		err = os.MkdirAll(cache, 0777)
		if err != nil {
			return err
		}

		err = os.WriteFile(filepath.Join(cache, ".info"), []byte("git:"+location), 0644)
		if err != nil {
			return err
		}

		err = f.run(ctx, cache, "git", "init", "--bare")
		if err != nil {
			os.RemoveAll(cache)
			return errors.Wrap(err, "initializing mirror")
		}

		err = f.run(ctx, cache, "git", "remote", "add", "origin", "--", location)
		if err != nil {
			os.RemoveAll(cache)
			return err
		}
	}

	err := f.run(ctx, cache, "git", "fetch", "-f", location,
		"refs/heads/*:refs/heads/*", "refs/tags/*:refs/tags/*")
	if err != nil {
		return errors.Wrapf(err, "fetching %s", location)
	}

	return nil
}

func (f *Fetcher) resolve(ctx context.Context, cache, ref string) (string, error) {
	info, err := f.capture(ctx, cache,
		"git", "-c", "log.showsignature=false", "log", "-n1", "--format=format:%H %ct %D", ref)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(info))
	if len(fields) == 0 {
		return "", errors.Errorf("no commit for ref: %s", ref)
	}

	return fields[0], nil
}

// export writes the tree at commit into destPath via git archive, so no
// .git state leaks into the build.
func (f *Fetcher) export(ctx context.Context, cache, commit, destPath string) error {
	zipData, err := f.capture(ctx, cache,
		"git", "archive", "--format=zip", "--prefix=prefix/", commit)
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return err
	}

	err = os.MkdirAll(destPath, 0777)
	if err != nil {
		return err
	}

	prefix := ""
	for _, zf := range zr.File {
		if prefix == "" {
			i := strings.IndexByte(zf.Name, '/')
			if i == -1 {
				return fmt.Errorf("missing top-level prefix")
			}

			prefix = zf.Name[:i+1]
		}

		if zf.Mode().IsDir() {
			continue
		}

		name := strings.TrimPrefix(zf.Name, prefix)

		dp := filepath.Join(destPath, name)

		err := os.MkdirAll(filepath.Dir(dp), 0777)
		if err != nil {
			return err
		}

		mode := zf.Mode()

		if mode.Type() == os.ModeSymlink {
			r, err := zf.Open()
			if err != nil {
				return err
			}

			bpath, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			path := string(bpath)

			abs := path
			if !filepath.IsAbs(path) {
				abs = filepath.Join(filepath.Dir(dp), path)
			}

			if !strings.HasPrefix(abs, destPath) {
				return fmt.Errorf("symlink points outside tree")
			}

			err = os.Symlink(path, dp)
			if err != nil {
				return err
			}
		} else if mode.IsRegular() {
			r, err := zf.Open()
			if err != nil {
				return err
			}

			w, err := os.OpenFile(dp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode|0444)
			if err != nil {
				return err
			}

			_, err = io.Copy(w, r)
			if err != nil {
				w.Close()
				return err
			}

			err = w.Close()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// Discard removes the exported tree for an artifact, forcing the next fetch
// to re-export. The mirror cache stays.
func (f *Fetcher) Discard(art *manifest.Artifact) error {
	escName, err := RepoName(art.Source)
	if err != nil {
		return err
	}

	escRef, err := module.EscapeVersion(art.BuildRef())
	if err != nil {
		return err
	}

	return os.RemoveAll(filepath.Join(f.SourceDir, escName+"@"+escRef))
}
