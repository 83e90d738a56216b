package episode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DataDog/sampling-rl-controller/agent"
)

// SaveHistory writes a trial's episode records to
// <dir>/trial-<trial>-history.json. It is called whether or not the
// trial completed all of its episodes -- a trial that aborts still
// persists whatever history it accumulated before the failure.
func SaveHistory(dir string, trial int, history []Record) error {
	raw, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("episode: marshaling trial %d history: %w", trial, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("trial-%d-history.json", trial))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("episode: writing %s: %w", path, err)
	}
	return nil
}

// SaveTheta writes the agent's current parameter vector to
// <dir>/trial-<trial>-theta.json, alongside its history file.
func SaveTheta(dir string, trial int, a *agent.Agent) error {
	path := filepath.Join(dir, fmt.Sprintf("trial-%d-theta.json", trial))
	if err := a.Save(path); err != nil {
		return fmt.Errorf("episode: saving trial %d theta: %w", trial, err)
	}
	return nil
}

// LoadHistory reads back a trial's episode records, for offline analysis
// or for the hyperparameter search driver to score a completed trial.
func LoadHistory(dir string, trial int) ([]Record, error) {
	path := filepath.Join(dir, fmt.Sprintf("trial-%d-history.json", trial))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("episode: reading %s: %w", path, err)
	}
	var history []Record
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("episode: parsing %s: %w", path, err)
	}
	return history, nil
}

// MeanReward summarizes a trial's history as its mean per-episode reward,
// the score the hyperparameter search driver optimizes.
func MeanReward(history []Record) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, r := range history {
		sum += r.Reward
	}
	return sum / float64(len(history))
}
