package sim

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Runner invokes an installed simulator binary on battle config files. The
// binary takes a single argument, the path of the config, and writes its
// statistics to stdout.
type Runner struct {
	L      hclog.Logger
	Binary string
}

func (r *Runner) logger() hclog.Logger {
	if r.L == nil {
		r.L = hclog.L()
	}

	return r.L
}

var runRe = regexp.MustCompile(`(?m)^run(\s|$)`)

// SimulateFile runs the config at path. When runs is positive and the
// config has no run command of its own, one is appended.
func (r *Runner) SimulateFile(ctx context.Context, path string, runs int) (*Battle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return r.Simulate(ctx, string(data), runs)
}

// Simulate runs a battle config, given as the simulator's command text.
func (r *Runner) Simulate(ctx context.Context, config string, runs int) (*Battle, error) {
	if runs > 0 && !runRe.MatchString(config) {
		config = strings.TrimRight(config, "\n") + fmt.Sprintf("\nrun %d\n", runs)
	}

	// The binary reads a file, not stdin, so stage the config on disk.
	tmp, err := os.CreateTemp(filepath.Dir(r.Binary), ".battle-*")
	if err != nil {
		return nil, err
	}

	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(config)
	if err != nil {
		tmp.Close()
		return nil, err
	}

	err = tmp.Close()
	if err != nil {
		return nil, err
	}

	output, err := r.run(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}

	return ParseOutput(output)
}

func (r *Runner) run(ctx context.Context, configPath string) (string, error) {
	log := r.logger()

	log.Debug("running simulator", "binary", r.Binary, "config", configPath)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, r.Binary, configPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if msgs := ScanErrors(stdout.String()); len(msgs) > 0 {
			return "", errors.Errorf("simulator rejected battle config: %s",
				strings.Join(msgs, "; "))
		}

		return "", errors.Wrapf(err, "running simulator: %s", strings.TrimSpace(stderr.String()))
	}

	log.Trace("simulator output", "output", stdout.String())

	return stdout.String(), nil
}

// SmokeConfig is a minimal battle the installed binary must be able to
// simulate; used to verify an install end to end.
const SmokeConfig = `Board
level 1
health 40
* 1/1 Alleycat
VS
Board
level 1
health 40
* 1/1 Alleycat
run 100
`

// Smoke runs the built-in config and checks the statistics parse.
func (r *Runner) Smoke(ctx context.Context) (*Battle, error) {
	return r.Simulate(ctx, SmokeConfig, 0)
}
