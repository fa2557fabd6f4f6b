package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/hsbg-ai/forge/pkg/config"
	"github.com/hsbg-ai/forge/pkg/data"
	"github.com/hsbg-ai/forge/pkg/fileutils"
	"github.com/hsbg-ai/forge/pkg/manifest"
	"github.com/hsbg-ai/forge/pkg/progress"
	"github.com/hsbg-ai/forge/pkg/source"
	"github.com/hsbg-ai/forge/pkg/status"
)

// Builder runs an artifact's build steps in a scratch directory seeded from
// an exported source tree.
type Builder struct {
	L        hclog.Logger
	BuildDir string
	Jobs     int

	// RetainScratch leaves the scratch dir behind for debugging.
	RetainScratch bool
}

// Result describes a finished build. Scratch is the build directory; the
// caller removes it once the artifact has been installed.
type Result struct {
	Scratch  string
	Artifact string
	Version  string
	Info     *data.BuildInfo
}

func (b *Builder) logger() hclog.Logger {
	if b.L == nil {
		b.L = hclog.L()
	}

	return b.L
}

func (b *Builder) jobs() int {
	if b.Jobs > 0 {
		return b.Jobs
	}

	return runtime.NumCPU()
}

func (b *Builder) Build(ctx context.Context, art *manifest.Artifact, tree *source.Tree) (*Result, error) {
	log := b.logger()

	scratch := filepath.Join(b.BuildDir, "build-"+art.Name)

	err := os.Mkdir(scratch, 0755)
	if err != nil {
		// Possible crash? Nuke the scratch dir.
		if !os.IsExist(err) {
			return nil, err
		}

		os.RemoveAll(scratch)
		err = os.Mkdir(scratch, 0755)
		if err != nil {
			return nil, err
		}
	}

	inst := fileutils.Install{
		Ctx:     ctx,
		L:       log,
		Pattern: tree.Path,
		Dest:    filepath.Join(scratch, "src"),
	}

	err = inst.Install()
	if err != nil {
		os.RemoveAll(scratch)
		return nil, errors.Wrap(err, "seeding build dir")
	}

	runDir := descend(filepath.Join(scratch, "src"))

	osName, osVersion, arch := config.Platform()

	info := &data.BuildInfo{
		Name:        art.Name,
		Version:     tree.Ref,
		Source:      art.Source,
		Ref:         tree.Ref,
		ResolvedRef: tree.ResolvedRef,
		BuildDir:    runDir,
		Steps:       art.BuildSteps(),
		BuiltAt:     time.Now().UTC(),
		Platform: &data.Platform{
			OS:        osName,
			OSVersion: osVersion,
			Arch:      arch,
		},
	}

	environ, err := b.buildEnv(info)
	if err != nil {
		os.RemoveAll(scratch)
		return nil, err
	}

	steps := art.BuildSteps()

	bar := progress.Count(ctx, int64(len(steps)), "Building "+art.Name)
	defer bar.Close()

	for _, step := range steps {
		bar.On(step)

		err = b.runStep(ctx, runDir, environ, step)
		if err != nil {
			if !b.RetainScratch {
				os.RemoveAll(scratch)
			}

			return nil, errors.Wrapf(err, "build step failed: %s", step)
		}

		bar.Tick()
	}

	path, version, err := Locate(runDir, art)
	if err != nil {
		if !b.RetainScratch {
			os.RemoveAll(scratch)
		}

		return nil, err
	}

	if version != "" {
		info.Version = version
	}

	log.Info("build complete", "artifact", art.Name, "file", path, "version", info.Version)

	return &Result{
		Scratch:  scratch,
		Artifact: path,
		Version:  version,
		Info:     info,
	}, nil
}

func (b *Builder) buildEnv(info *data.BuildInfo) ([]string, error) {
	infoData, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}

	return []string{
		"HOME=/nonexistant",
		"PATH=" + os.Getenv("PATH"),
		fmt.Sprintf("MAKEFLAGS=-j%d", b.jobs()),
		"FORGE_BUILD_INFO=" + string(infoData),
	}, nil
}

func (b *Builder) runStep(ctx context.Context, dir string, environ []string, step string) error {
	log := b.logger()

	log.Debug("run build step", "dir", dir, "step", step)

	var (
		buf bytes.Buffer
		out io.Writer
	)

	if log.IsDebug() {
		out = io.MultiWriter(&buf, os.Stderr)
	} else {
		tail := newTailWriter(status.NewLine(os.Stderr))
		defer tail.Flush()

		out = io.MultiWriter(&buf, tail)
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", step)
	cmd.Dir = dir
	cmd.Env = environ
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err != nil {
		if buf.Len() > 0 && !log.IsDebug() {
			os.Stderr.Write(buf.Bytes())
		}

		return err
	}

	return nil
}

// descend returns the directory the build tools should run in: if the
// seeded tree holds exactly one top-level directory, use it.
func descend(dir string) string {
	sf, err := os.ReadDir(dir)
	if err != nil {
		return dir
	}

	var (
		ent os.DirEntry
		cnt int
	)

	for _, e := range sf {
		if e.Name()[0] != '.' {
			cnt++
			ent = e
		}
	}

	if cnt == 1 && ent.IsDir() {
		return filepath.Join(dir, ent.Name())
	}

	return dir
}
