package manifest

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Artifact declares one external binary the tool manages: where its source
// lives, how to build it, and which files the build produces.
type Artifact struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`

	// Kind is "git" (the default) or "archive" for a downloadable tarball.
	Kind string `yaml:"kind,omitempty"`

	// Ref is the branch, tag, or commit to build. Defaults to "master".
	Ref string `yaml:"ref,omitempty"`

	// Constraint restricts which versioned artifact files are acceptable,
	// eg ">= 1.2". Applied when the build produces name.<version> files.
	Constraint string `yaml:"constraint,omitempty"`

	// Sum pins the content of an archive source, "sha256:<hex>" or
	// "b2:<base58>".
	Sum string `yaml:"sum,omitempty"`

	// Build holds the commands run in the source tree. Defaults to make.
	Build []string `yaml:"build,omitempty"`

	// Patterns are the names the produced binary may have, tried in order.
	// Defaults to the artifact name and then "<name>.*".
	Patterns []string `yaml:"artifacts,omitempty"`
}

type Manifest struct {
	Artifacts []*Artifact `yaml:"artifacts"`
}

// DefaultSimulatorSource is the external C++ battlegrounds simulator this
// tool exists to build.
const DefaultSimulatorSource = "https://github.com/twanvl/hearthstone-battlegrounds-simulator"

// Default is the manifest used when no forge.yaml is present: just the
// hsbg simulator.
func Default() *Manifest {
	return &Manifest{
		Artifacts: []*Artifact{
			{
				Name:   "hsbg",
				Source: DefaultSimulatorSource,
			},
		},
	}
}

// Load reads a manifest file, falling back to Default when the file does
// not exist.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}

		return nil, err
	}

	return Parse(data)
}

func Parse(data []byte) (*Manifest, error) {
	var m Manifest

	err := yaml.Unmarshal(data, &m)
	if err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}

	err = m.validate()
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Manifest) validate() error {
	seen := map[string]struct{}{}

	for _, a := range m.Artifacts {
		if a.Name == "" {
			return errors.New("manifest artifact missing name")
		}

		if _, ok := seen[a.Name]; ok {
			return errors.Errorf("duplicate artifact: %s", a.Name)
		}

		seen[a.Name] = struct{}{}

		if a.Source == "" {
			return errors.Errorf("artifact missing source: %s", a.Name)
		}

		switch a.Kind {
		case "", "git", "archive":
			// ok
		default:
			return errors.Errorf("unknown source kind for %s: %s", a.Name, a.Kind)
		}

		if a.Constraint != "" {
			_, err := semver.NewConstraint(a.Constraint)
			if err != nil {
				return errors.Wrapf(err, "bad constraint for %s", a.Name)
			}
		}
	}

	return nil
}

func (m *Manifest) Lookup(name string) (*Artifact, error) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, nil
		}
	}

	return nil, errors.Errorf("unknown artifact: %s", name)
}

func (a *Artifact) SourceKind() string {
	if a.Kind == "" {
		return "git"
	}

	return a.Kind
}

func (a *Artifact) BuildRef() string {
	if a.Ref == "" {
		return "master"
	}

	return a.Ref
}

func (a *Artifact) BuildSteps() []string {
	if len(a.Build) == 0 {
		return []string{"make"}
	}

	return a.Build
}

func (a *Artifact) ArtifactPatterns() []string {
	if len(a.Patterns) == 0 {
		return []string{a.Name, a.Name + ".*"}
	}

	return a.Patterns
}

// Accepts reports whether a versioned artifact file satisfies the declared
// constraint. Versions that don't parse are accepted only when no
// constraint is set.
func (a *Artifact) Accepts(version string) bool {
	if a.Constraint == "" {
		return true
	}

	c, err := semver.NewConstraint(a.Constraint)
	if err != nil {
		return false
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}

	return c.Check(v)
}

func (a *Artifact) String() string {
	return fmt.Sprintf("%s (%s %s@%s)", a.Name, a.SourceKind(), a.Source, a.BuildRef())
}
