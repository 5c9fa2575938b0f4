package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/source"
	"github.com/spigell/jobmatch/internal/store"
)

func loadConfig(t *testing.T, content string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	if content != "" {
		path := filepath.Join(t.TempDir(), "jobmatch.yaml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			t.Fatalf("read config: %v", err)
		}
	}
	return getConfig()
}

func TestGetConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(t, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Checkpoint != defaultCheckpoint || cfg.Embedder.Provider != "hash" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Recommend.TopK != 10 || cfg.Training.Epochs != 10 || cfg.Training.ValidationSplit != 0.1 {
		t.Fatalf("unexpected recommend or training defaults: %+v / %+v", cfg.Recommend, cfg.Training)
	}
	if cfg.Scoring.FieldMatchThreshold != 0.5 || len(cfg.Scoring.Profiles) != 1 {
		t.Fatalf("unexpected scoring defaults %+v", cfg.Scoring)
	}
}

func TestGetConfigFromFile(t *testing.T) {
	cfg, err := loadConfig(t, `
dataset:
  file: data.yaml
recommend:
  top-k: 3
  timeout: 5s
training:
  epochs: 2
  batch-size: 8
  validation-split: 0.2
cache:
  backend: none
  ttl: 1h
tower:
  text-dim: 64
  hidden: [32, 16]
  output-dim: 8
ai:
  prompt:
    deal-breakers: no relocation
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Dataset.File != "data.yaml" || cfg.Recommend.TopK != 3 || cfg.Recommend.Timeout != 5*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Training.Epochs != 2 || cfg.Training.BatchSize != 8 || cfg.Training.ValidationSplit != 0.2 {
		t.Fatalf("unexpected training config %+v", cfg.Training)
	}
	// values not present in the file keep their defaults
	if cfg.Training.Temperature != 0.07 {
		t.Fatalf("expected default temperature, got %v", cfg.Training.Temperature)
	}
	if cfg.Cache.Backend != store.BackendNone || cfg.Cache.TTL != time.Hour {
		t.Fatalf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Tower.TextDim != 64 || len(cfg.Tower.Hidden) != 2 || cfg.Tower.OutputDim != 8 {
		t.Fatalf("unexpected tower config %+v", cfg.Tower)
	}
	if cfg.AI.Prompt.DealBreakers != "no relocation" {
		t.Fatalf("unexpected prompt overrides %+v", cfg.AI.Prompt)
	}
}

func TestGetConfigValidation(t *testing.T) {
	cases := map[string]string{
		"provider":   "embedder:\n  provider: openai\n",
		"top-k":      "recommend:\n  top-k: 0\n",
		"split":      "training:\n  validation-split: 1.5\n",
		"backend":    "cache:\n  backend: redis\n",
		"api url":    "dataset:\n  api-url: not a url\n",
		"min score":  "ai:\n  minimum-fit-score: 2\n",
		"hidden dim": "tower:\n  hidden: [0]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadConfig(t, content); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestExamples(t *testing.T) {
	t.Parallel()

	pairs := []source.Pair{
		{Candidate: &profile.Candidate{ID: "c1"}, Job: &profile.JobPosting{ID: "j1"}},
		{Candidate: &profile.Candidate{ID: "c2"}, Job: &profile.JobPosting{ID: "j1"}},
	}
	got := examples(pairs)
	if len(got) != 2 || got[1].Candidate.ID != "c2" || got[1].Job.ID != "j1" {
		t.Fatalf("unexpected examples %+v", got)
	}
}
