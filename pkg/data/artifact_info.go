package data

// ArtifactInfo describes one installed artifact file under the instance
// directory.
type ArtifactInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`

	File    string `json:"file"`
	SumType string `json:"sum_type"`
	Sum     string `json:"sum"`
	Size    int64  `json:"size"`

	Build *BuildInfo `json:"build,omitempty"`
}
