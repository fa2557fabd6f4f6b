package build

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// The tools every build needs before a single step can run. Compilers are
// alternates, any one of them will do.
var (
	requiredTools = []string{"/bin/sh", "make"}
	compilers     = []string{"c++", "g++", "clang++", "cc"}
)

// Preflight verifies the build tools are reachable on the given PATH. It
// runs before the scratch dir is seeded so a missing toolchain fails fast
// instead of half way through a build step.
func Preflight(path string) error {
	for _, tool := range requiredTools {
		if _, err := lookPath(tool, path); err != nil {
			return errors.Wrapf(err, "required build tool missing: %s", tool)
		}
	}

	for _, comp := range compilers {
		if _, err := lookPath(comp, path); err == nil {
			return nil
		}
	}

	return errors.Errorf("no compiler found, tried: %s", strings.Join(compilers, ", "))
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// lookPath searches for an executable named file in the directories named
// by path. If file contains a slash, it is tried directly and path is not
// consulted.
func lookPath(file string, path string) (string, error) {
	if strings.Contains(file, "/") {
		err := findExecutable(file)
		if err == nil {
			return file, nil
		}
		return "", err
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Errorf("not found")
}
