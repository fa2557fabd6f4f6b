package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/pkg/errors"

	"github.com/hsbg-ai/forge/pkg/build"
	"github.com/hsbg-ai/forge/pkg/cmd"
	"github.com/hsbg-ai/forge/pkg/config"
	"github.com/hsbg-ai/forge/pkg/gc"
	"github.com/hsbg-ai/forge/pkg/humanize"
	"github.com/hsbg-ai/forge/pkg/instance"
	"github.com/hsbg-ai/forge/pkg/lockfile"
	"github.com/hsbg-ai/forge/pkg/manifest"
	"github.com/hsbg-ai/forge/pkg/sim"
	"github.com/hsbg-ai/forge/pkg/source"
)

func main() {
	c := cli.NewCLI("forge", "0.1.0")
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"setup": func() (cli.Command, error) {
			return cmd.New(
				"setup",
				"show the directories and platform the tool will use",
				setupF,
			), nil
		},
		"fetch": func() (cli.Command, error) {
			return cmd.New(
				"fetch",
				"fetch simulator sources without building",
				fetchF,
			), nil
		},
		"build": func() (cli.Command, error) {
			return cmd.New(
				"build",
				"build a simulator binary without installing it",
				buildF,
			), nil
		},
		"install": func() (cli.Command, error) {
			return cmd.New(
				"install",
				"fetch, build, and install simulator binaries into the instance directory",
				installF,
			), nil
		},
		"status": func() (cli.Command, error) {
			return cmd.New(
				"status",
				"show what the instance directory holds",
				statusF,
			), nil
		},
		"verify": func() (cli.Command, error) {
			return cmd.New(
				"verify",
				"check installed binaries against their recorded sums",
				verifyF,
			), nil
		},
		"run": func() (cli.Command, error) {
			return cmd.New(
				"run",
				"run a battle config through an installed simulator",
				runF,
			), nil
		},
		"gc": func() (cli.Command, error) {
			return cmd.New(
				"gc",
				"remove unreferenced caches, build dirs, and binaries",
				gcF,
			), nil
		},
		"debug": func() (cli.Command, error) {
			return cmd.New(
				"debug",
				"debug various things",
				debugF,
			), nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}

func newLogger(trace bool) hclog.Logger {
	level := hclog.Info

	if trace {
		level = hclog.Trace
	} else if os.Getenv("FORGE_DEBUG") != "" {
		level = hclog.Debug
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:  "forge",
		Level: level,
	})
}

type env struct {
	L     hclog.Logger
	cfg   *config.Config
	man   *manifest.Manifest
	fetch *source.Fetcher
	store *instance.Store
}

func loadEnv(l hclog.Logger) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create or load configuration")
	}

	man, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	instDir, err := cfg.InstancePath()
	if err != nil {
		return nil, err
	}

	store, err := instance.Open(l, instDir)
	if err != nil {
		return nil, err
	}

	return &env{
		L:   l,
		cfg: cfg,
		man: man,
		fetch: &source.Fetcher{
			L:         l,
			CacheDir:  cfg.CachePath(),
			SourceDir: cfg.SourcePath(),
		},
		store: store,
	}, nil
}

// selected returns the manifest artifacts a command should operate on: the
// named one, or all of them.
func (e *env) selected(name string) ([]*manifest.Artifact, error) {
	if name == "" {
		return e.man.Artifacts, nil
	}

	art, err := e.man.Lookup(name)
	if err != nil {
		return nil, err
	}

	return []*manifest.Artifact{art}, nil
}

func (e *env) fetchTree(ctx context.Context, art *manifest.Artifact) (*source.Tree, error) {
	if art.SourceKind() == "archive" {
		return e.fetch.FetchArchive(ctx, art)
	}

	return e.fetch.Fetch(ctx, art)
}

func setupF(ctx context.Context, opts struct {
	Trace bool `long:"trace" description:"log in trace mode"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	instDir, err := e.cfg.InstancePath()
	if err != nil {
		return err
	}

	fmt.Printf("Config Dir: %s\n", e.cfg.ConfigDir())
	fmt.Printf("Data Dir: %s\n", e.cfg.DataDir)
	fmt.Printf("Instance Dir: %s\n", instDir)
	fmt.Printf("Manifest: %s\n", e.cfg.Manifest)

	constraints := e.cfg.Constraints()

	fmt.Printf("Constraints:\n")

	for _, k := range []string{"os/name", "machine/arch", "darwin/version", "forge/root"} {
		if v, ok := constraints[k]; ok {
			fmt.Printf("  %s: %s\n", k, v)
		}
	}

	fmt.Printf("Artifacts:\n")

	for _, art := range e.man.Artifacts {
		fmt.Printf("  %s\n", art)
	}

	return nil
}

func fetchF(ctx context.Context, opts struct {
	Fresh bool `short:"f" long:"fresh" description:"discard any exported tree and re-export"`
	Trace bool `long:"trace" description:"log in trace mode"`

	Pos struct {
		Artifact string `positional-arg-name:"name"`
	} `positional-args:"yes"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	arts, err := e.selected(opts.Pos.Artifact)
	if err != nil {
		return err
	}

	for _, art := range arts {
		if opts.Fresh {
			err = e.fetch.Discard(art)
			if err != nil {
				return err
			}
		}

		tree, err := e.fetchTree(ctx, art)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %s", art.Name, tree.Path)
		if tree.ResolvedRef != "" {
			fmt.Printf(" (%s => %s)", tree.Ref, tree.ResolvedRef)
		}
		fmt.Println()
	}

	return nil
}

func buildF(ctx context.Context, opts struct {
	Jobs  int  `short:"j" long:"jobs" description:"parallel build jobs"`
	Keep  bool `long:"keep" description:"keep the scratch build dir around"`
	Trace bool `long:"trace" description:"log in trace mode"`

	Pos struct {
		Artifact string `positional-arg-name:"name"`
	} `positional-args:"yes"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	arts, err := e.selected(opts.Pos.Artifact)
	if err != nil {
		return err
	}

	if err := build.Preflight(os.Getenv("PATH")); err != nil {
		return err
	}

	builder := &build.Builder{
		L:             e.L,
		BuildDir:      e.cfg.BuildPath(),
		Jobs:          opts.Jobs,
		RetainScratch: opts.Keep,
	}

	for _, art := range arts {
		tree, err := e.fetchTree(ctx, art)
		if err != nil {
			return err
		}

		res, err := builder.Build(ctx, art, tree)
		if err != nil {
			return err
		}

		fmt.Printf("%s: built %s\n", art.Name, res.Artifact)

		if !opts.Keep {
			os.RemoveAll(res.Scratch)
		}
	}

	return nil
}

func installF(ctx context.Context, opts struct {
	Jobs  int  `short:"j" long:"jobs" description:"parallel build jobs"`
	Keep  bool `long:"keep" description:"keep the scratch build dir around"`
	Smoke bool `short:"s" long:"smoke" description:"run the built-in battle config after installing"`
	Trace bool `long:"trace" description:"log in trace mode"`

	Pos struct {
		Artifact string `positional-arg-name:"name"`
	} `positional-args:"yes"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	arts, err := e.selected(opts.Pos.Artifact)
	if err != nil {
		return err
	}

	var showLock bool
	cleanup, err := lockfile.Take(ctx, e.cfg.LockPath(), func() {
		if !showLock {
			fmt.Printf("Lock detected, waiting...\n")
			showLock = true
		}
	})
	if err != nil {
		return err
	}

	defer cleanup()

	if err := build.Preflight(os.Getenv("PATH")); err != nil {
		return err
	}

	builder := &build.Builder{
		L:             e.L,
		BuildDir:      e.cfg.BuildPath(),
		Jobs:          opts.Jobs,
		RetainScratch: opts.Keep,
	}

	for _, art := range arts {
		fmt.Printf("Compiling %s...\n", art)

		tree, err := e.fetchTree(ctx, art)
		if err != nil {
			return err
		}

		res, err := builder.Build(ctx, art, tree)
		if err != nil {
			return err
		}

		ai, err := e.store.Install(ctx, art, res)
		if err != nil {
			return err
		}

		if !opts.Keep {
			os.RemoveAll(res.Scratch)
		}

		fmt.Printf("Installed %s => %s (%s)\n", ai.Name, ai.File, ai.ID)

		if opts.Smoke {
			err = smoke(ctx, e, art.Name)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func smoke(ctx context.Context, e *env, name string) error {
	bin, err := e.store.Resolve(name)
	if err != nil {
		return err
	}

	runner := &sim.Runner{L: e.L, Binary: bin}

	battle, err := runner.Smoke(ctx)
	if err != nil {
		return errors.Wrapf(err, "smoke check failed for %s", name)
	}

	fmt.Printf("Smoke check passed (win %.1f%%, tie %.1f%%, lose %.1f%%)\n",
		battle.WinProbability*100, battle.TieProbability*100, battle.LoseProbability*100)

	return nil
}

func statusF(ctx context.Context, opts struct {
	Trace bool `long:"trace" description:"log in trace mode"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	state, err := e.store.State()
	if err != nil {
		return err
	}

	if len(state.Artifacts) == 0 {
		fmt.Printf("Nothing installed under %s\n", e.store.Dir)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 4, 2, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "NAME\tVERSION\tFILE\tSIZE\tBUILT\n")

	for _, ai := range state.Artifacts {
		built := ""
		if ai.Build != nil {
			built = ai.Build.BuiltAt.Format("2006-01-02 15:04")
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ai.Name, ai.Version, ai.File, humanize.Bytes(ai.Size), built)
	}

	total, err := e.store.DiskUsage()
	if err != nil {
		return err
	}

	fmt.Fprintf(tw, "\t\t\t\t\n")
	fmt.Fprintf(tw, "=> Disk Usage: %s\t\t\t\t\n", humanize.Bytes(total))

	return nil
}

func verifyF(ctx context.Context, opts struct {
	Smoke bool `short:"s" long:"smoke" description:"also run the built-in battle config"`
	Trace bool `long:"trace" description:"log in trace mode"`

	Pos struct {
		Artifact string `positional-arg-name:"name"`
	} `positional-args:"yes"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	state, err := e.store.State()
	if err != nil {
		return err
	}

	names := []string{}

	if opts.Pos.Artifact != "" {
		names = append(names, opts.Pos.Artifact)
	} else {
		for _, ai := range state.Artifacts {
			names = append(names, ai.Name)
		}
	}

	if len(names) == 0 {
		return errors.New("nothing installed to verify")
	}

	for _, name := range names {
		ai, err := e.store.Verify(name)
		if err != nil {
			return err
		}

		fmt.Printf("%s: ok (b2:%s)\n", ai.File, ai.Sum)

		if opts.Smoke {
			err = smoke(ctx, e, name)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func runF(ctx context.Context, opts struct {
	Name   string `short:"n" long:"name" description:"artifact to run" default:"hsbg"`
	Runs   int    `short:"r" long:"runs" description:"number of simulations when the config has no run command" default:"1000"`
	Invert bool   `long:"invert" description:"report from the enemy's side"`
	Trace  bool   `long:"trace" description:"log in trace mode"`

	Pos struct {
		Config string `positional-arg-name:"config"`
	} `positional-args:"yes" required:"yes"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	bin, err := e.store.Resolve(opts.Name)
	if err != nil {
		return err
	}

	runner := &sim.Runner{L: e.L, Binary: bin}

	battle, err := runner.SimulateFile(ctx, opts.Pos.Config, opts.Runs)
	if err != nil {
		return err
	}

	if opts.Invert {
		battle = battle.Invert()
	}

	tw := tabwriter.NewWriter(os.Stdout, 4, 2, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "win\t%.1f%%\n", battle.WinProbability*100)
	fmt.Fprintf(tw, "tie\t%.1f%%\n", battle.TieProbability*100)
	fmt.Fprintf(tw, "lose\t%.1f%%\n", battle.LoseProbability*100)
	fmt.Fprintf(tw, "mean score\t%.3f\n", battle.MeanScore)
	fmt.Fprintf(tw, "median score\t%.3f\n", battle.MedianScore)
	fmt.Fprintf(tw, "mean damage taken\t%.3f\n", battle.MeanDamageTaken)
	fmt.Fprintf(tw, "mean damage dealt\t%.3f\n", battle.MeanDamageDealt)
	fmt.Fprintf(tw, "expected health\t%.3f (%.2f%% chance to die)\n",
		battle.ExpectedHeroHealth, battle.DeathProbability*100)
	fmt.Fprintf(tw, "enemy expected health\t%.3f (%.2f%% chance to die)\n",
		battle.ExpectedEnemyHeroHealth, battle.EnemyDeathProbability*100)

	return nil
}

func gcF(ctx context.Context, opts struct {
	DryRun bool `short:"T" long:"dry-run" description:"output what would be removed"`
	Trace  bool `long:"trace" description:"log in trace mode"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	col, err := gc.NewCollector(e.L, e.cfg, e.man)
	if err != nil {
		return err
	}

	keep, err := col.Mark()
	if err != nil {
		return err
	}

	res, err := col.Sweep(ctx, keep, opts.DryRun)
	if err != nil {
		return err
	}

	if opts.DryRun {
		fmt.Println("## Kept")
		for _, p := range res.Kept {
			fmt.Println(p)
		}

		fmt.Println("\n## Would remove")
		for _, p := range res.Removed {
			fmt.Println(p)
		}

		fmt.Printf("=> Would recover: %s\n", humanize.Bytes(res.BytesRecovered))

		return nil
	}

	fmt.Printf("Space Recovered: %s\n", humanize.Bytes(res.BytesRecovered))
	fmt.Printf("  Files Removed: %d\n", res.EntriesRemoved)

	return nil
}

func debugF(ctx context.Context, opts struct {
	Detect  string `short:"d" long:"detect" description:"report the repo identity of a checkout"`
	Resolve string `short:"r" long:"resolve" description:"fetch an artifact's source and dump the tree info"`
	Config  bool   `short:"c" long:"config" description:"dump the loaded configuration"`
	Trace   bool   `long:"trace" description:"log in trace mode"`
}) error {
	e, err := loadEnv(newLogger(opts.Trace))
	if err != nil {
		return err
	}

	if opts.Detect != "" {
		id, err := source.RepoId(opts.Detect)
		if err != nil {
			return err
		}

		fmt.Println(id)
		return nil
	}

	if opts.Resolve != "" {
		art, err := e.man.Lookup(opts.Resolve)
		if err != nil {
			return err
		}

		tree, err := e.fetchTree(ctx, art)
		if err != nil {
			return err
		}

		spew.Dump(tree)
		return nil
	}

	if opts.Config {
		spew.Dump(e.cfg)
		spew.Dump(e.man)

		if pid, held := lockfile.Holder(e.cfg.LockPath()); held {
			fmt.Printf("lock held by pid %d\n", pid)
		}
	}

	return nil
}
