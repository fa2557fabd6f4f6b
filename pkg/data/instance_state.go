package data

import "time"

// InstanceState is the record of what the instance directory currently
// holds. It is the "is installed" relation for the manifest entries.
type InstanceState struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Current   string          `json:"current,omitempty"`
	Artifacts []*ArtifactInfo `json:"artifacts"`
}

func (s *InstanceState) Lookup(name string) *ArtifactInfo {
	for _, a := range s.Artifacts {
		if a.Name == name {
			return a
		}
	}

	return nil
}

// Upsert replaces any artifact with the same name and returns the previous
// entry, if there was one.
func (s *InstanceState) Upsert(ai *ArtifactInfo) *ArtifactInfo {
	for i, a := range s.Artifacts {
		if a.Name == ai.Name {
			s.Artifacts[i] = ai
			return a
		}
	}

	s.Artifacts = append(s.Artifacts, ai)
	return nil
}
