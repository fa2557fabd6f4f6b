package instance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hsbg-ai/forge/pkg/data"
)

func (s *Store) State() (*data.InstanceState, error) {
	f, err := os.Open(filepath.Join(s.Dir, stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &data.InstanceState{}, nil
		}

		return nil, err
	}

	defer f.Close()

	var state data.InstanceState

	err = json.NewDecoder(f).Decode(&state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}

func (s *Store) SaveState(state *data.InstanceState) error {
	state.UpdatedAt = time.Now().UTC()

	tmp, err := os.CreateTemp(s.Dir, ".state-*")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")

	err = enc.Encode(state)
	if err != nil {
		tmp.Close()
		return err
	}

	err = tmp.Close()
	if err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(s.Dir, stateFile))
}
