package data

import "time"

// BuildInfo records how an artifact was produced. It is kept in the
// instance state and made available to build steps in the FORGE_BUILD_INFO
// env var.
type BuildInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	ID      string `json:"id"`

	Source      string `json:"source"`
	Ref         string `json:"ref"`
	ResolvedRef string `json:"resolved_ref"`

	BuildDir string    `json:"build_dir"`
	Steps    []string  `json:"steps"`
	BuiltAt  time.Time `json:"built_at"`

	Platform *Platform `json:"platform"`
}

type Platform struct {
	OS        string `json:"os"`
	OSVersion string `json:"os_version"`
	Arch      string `json:"architecture"`
}
