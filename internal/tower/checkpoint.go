package tower

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/spigell/jobmatch/internal/features"
)

const checkpointFormat = 1

// ErrCheckpointLocked is returned when another process holds the checkpoint.
var ErrCheckpointLocked = errors.New("checkpoint is locked by another process")

type Checkpoint struct {
	Format          int       `json:"format"`
	SavedAt         time.Time `json:"saved_at"`
	CandidateLayout string    `json:"candidate_layout"`
	JobLayout       string    `json:"job_layout"`
	Candidate       State     `json:"candidate"`
	Job             State     `json:"job"`
}

// State is the serialized form of one tower.
type State struct {
	Name    string      `json:"name"`
	Config  Config      `json:"config"`
	Version uint64      `json:"version"`
	Params  [][]float64 `json:"params"`
}

// State snapshots the parameters.
func (m *MLP) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	params := m.params()
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64(nil), p...)
	}
	return State{Name: m.name, Config: m.cfg, Version: m.Version(), Params: out}
}

// FromState rebuilds a tower. Optimizer moments are not restored.
func FromState(s State) (*MLP, error) {
	m, err := NewMLP(s.Name, s.Config)
	if err != nil {
		return nil, err
	}
	params := m.params()
	if len(params) != len(s.Params) {
		return nil, fmt.Errorf("tower %s: checkpoint has %d tensors, want %d", s.Name, len(s.Params), len(params))
	}
	for i, p := range params {
		if len(p) != len(s.Params[i]) {
			return nil, fmt.Errorf("tower %s: tensor %d has %d values, want %d", s.Name, i, len(s.Params[i]), len(p))
		}
		copy(p, s.Params[i])
	}
	m.version.Store(s.Version)
	return m, nil
}

// SaveCheckpoint writes both towers atomically under a file lock.
func SaveCheckpoint(path string, candidate, job *MLP) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock checkpoint: %w", err)
	}
	if !locked {
		return ErrCheckpointLocked
	}
	defer func() { _ = lock.Unlock() }()

	cp := Checkpoint{
		Format:          checkpointFormat,
		SavedAt:         time.Now().UTC(),
		CandidateLayout: features.CandidateLayoutVersion,
		JobLayout:       features.JobLayoutVersion,
		Candidate:       candidate.State(),
		Job:             job.State(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads both towers. Checkpoints trained on another feature
// layout are rejected.
func LoadCheckpoint(path string) (candidate, job *MLP, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, nil, fmt.Errorf("decode checkpoint %q: %w", path, err)
	}
	if cp.Format != checkpointFormat {
		return nil, nil, fmt.Errorf("checkpoint format %d is not supported", cp.Format)
	}
	if cp.CandidateLayout != features.CandidateLayoutVersion || cp.JobLayout != features.JobLayoutVersion {
		return nil, nil, fmt.Errorf("checkpoint layouts %s/%s do not match %s/%s",
			cp.CandidateLayout, cp.JobLayout, features.CandidateLayoutVersion, features.JobLayoutVersion)
	}

	if candidate, err = FromState(cp.Candidate); err != nil {
		return nil, nil, err
	}
	if job, err = FromState(cp.Job); err != nil {
		return nil, nil, err
	}
	return candidate, job, nil
}

// NewPair builds fresh candidate and job towers sized for the entity layouts.
// The job tower gets a different seed so the two start apart.
func NewPair(cfg Config) (candidate, job *MLP, err error) {
	cc := cfg
	cc.FeatureDim = features.CandidateLayout().Len()
	if candidate, err = NewMLP("candidate", cc); err != nil {
		return nil, nil, err
	}
	jc := cfg
	jc.FeatureDim = features.JobLayout().Len()
	jc.Seed = cfg.Seed + 1
	if job, err = NewMLP("job", jc); err != nil {
		return nil, nil, err
	}
	return candidate, job, nil
}
