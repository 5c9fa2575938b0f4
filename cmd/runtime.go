package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/ai/gemini"
	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/geo"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/metrics"
	"github.com/spigell/jobmatch/internal/recommend"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/secrets"
	"github.com/spigell/jobmatch/internal/source"
	"github.com/spigell/jobmatch/internal/store"
	"github.com/spigell/jobmatch/internal/taxonomy"
	"github.com/spigell/jobmatch/internal/tower"
)

const (
	geminiKeyEnv    = "GEMINI_API_KEY"
	datasetTokenEnv = envPrefix + "_DATASET_TOKEN"
)

// runtime is everything a command needs, built once from the config.
type runtime struct {
	config *Config
	logger *zap.Logger

	generator *gemini.Generator
	extractor *features.Extractor
	candidate *tower.MLP
	job       *tower.MLP
	// trained is false when no checkpoint was found and the towers are fresh.
	trained bool
	cache   store.Cache
}

func newRuntime(ctx context.Context) (*runtime, error) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	logger.Info("starting the jobmatch", zap.String("version", resolveVersion()))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	r := &runtime{config: config, logger: logger}

	if err := r.loadTowers(); err != nil {
		return nil, err
	}

	lookups, err := r.lookups(ctx)
	if err != nil {
		return nil, err
	}

	r.extractor, err = features.New(lookups, criteria.NewRegistry(), config.Features, logger)
	if err != nil {
		return nil, err
	}

	r.cache, err = store.Open(config.Cache.Config, config.Cache.TTL, logger)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return r, nil
}

// loadTowers restores the towers from the checkpoint, or builds fresh ones when there is none.
func (r *runtime) loadTowers() error {
	path := r.config.Checkpoint
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checkpoint %s: %w", path, err)
		}
		r.candidate, r.job, err = tower.NewPair(r.config.Tower)
		if err != nil {
			return fmt.Errorf("build towers: %w", err)
		}
		r.logger.Info("no checkpoint found, using fresh towers", zap.String("checkpoint", path))
		return nil
	}

	candidate, job, err := tower.LoadCheckpoint(path)
	if err != nil {
		return err
	}
	r.candidate, r.job, r.trained = candidate, job, true
	// The text embeddings must match what the towers were trained on.
	r.config.Tower = candidate.Config()
	r.logger.Info("towers restored",
		zap.String("checkpoint", path),
		zap.Uint64("candidate_version", candidate.Version()),
		zap.Uint64("job_version", job.Version()),
	)
	return nil
}

func (r *runtime) lookups(ctx context.Context) (lookup.Lookups, error) {
	var (
		embedder lookup.Embedder
		tax      lookup.Taxonomy = taxonomy.Default()
	)

	switch r.config.Embedder.Provider {
	case "gemini":
		generator, err := r.gemini(ctx)
		if err != nil {
			return lookup.Lookups{}, err
		}
		embedder = generator
	default:
		embedder = lookup.NewHashEmbedder(r.config.Tower.TextDim)
	}

	if r.config.Taxonomy != "" {
		static, err := taxonomy.Load(r.config.Taxonomy)
		if err != nil {
			return lookup.Lookups{}, err
		}
		tax = static
	}

	guarded := lookup.Guarded(lookup.Lookups{
		Embedder:  embedder,
		Distancer: geo.NewGazetteer(r.config.Cities),
		Taxonomy:  tax,
	}, r.config.Guard, r.logger)
	guarded.Embedder = lookup.NewMemoEmbedder(guarded.Embedder, r.config.Embedder.MemoSize)
	return guarded, nil
}

// gemini returns the shared Gemini client, creating it on first use.
func (r *runtime) gemini(ctx context.Context) (*gemini.Generator, error) {
	if r.generator != nil {
		return r.generator, nil
	}

	cfg := r.config.AI.Gemini
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   geminiKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or %s)", err, geminiKeyEnv)
	}
	cfg.APIKey = apiKey
	cfg.Dimensions = r.config.Tower.TextDim

	r.generator, err = gemini.NewGenerator(ctx, cfg, r.logger)
	if err != nil {
		return nil, err
	}
	return r.generator, nil
}

func (r *runtime) engine(ctx context.Context) (*recommend.Engine, error) {
	scorer, err := scoring.New(r.config.Scoring)
	if err != nil {
		return nil, err
	}

	encoder, err := tower.NewEncoder(r.candidate, r.job, r.extractor, r.cache, r.logger)
	if err != nil {
		return nil, err
	}

	var opts []recommend.Option
	if r.config.AI.Enabled {
		generator, err := r.gemini(ctx)
		if err != nil {
			r.logger.Warn("skipping AI rerank", zap.Error(err))
		} else {
			matcher := gemini.NewMatcher(generator, r.config.AI.MinimumFitScore, r.config.AI.MaxLogLength,
				r.logger.With(zap.Float64("minimum_fit_score", r.config.AI.MinimumFitScore)))
			matcher.SetPromptOverrides(r.config.AI.Prompt)
			opts = append(opts, recommend.WithReranker(matcher))
		}
	}

	if !r.trained {
		r.logger.Warn("recommending with untrained towers", zap.String("hint", "run the train command first"))
	}

	filter := filtering.New(r.logger)
	filter.LogStatus()

	return recommend.New(r.extractor, filter, scorer, encoder, r.config.Recommend, r.logger, opts...)
}

// dataset loads the dataset from the API when one is configured, otherwise from the file.
func (r *runtime) dataset(ctx context.Context) (*source.Dataset, error) {
	cfg := r.config.Dataset
	if cfg.APIURL == "" {
		if cfg.File == "" {
			return nil, errors.New("dataset is not configured (set dataset.file or dataset.api-url)")
		}
		ds, err := source.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		r.logger.Info("dataset loaded",
			zap.String("file", cfg.File),
			zap.Int("candidates", len(ds.Candidates)),
			zap.Int("jobs", len(ds.Jobs)),
			zap.Int("interactions", len(ds.Interactions)),
		)
		return ds, nil
	}

	token, err := secrets.Load(secrets.Source{
		Name:  "dataset api token",
		Value: cfg.Token,
		File:  cfg.TokenFile,
		Env:   datasetTokenEnv,
	})
	if err != nil {
		if cfg.TokenFile != "" {
			return nil, err
		}
		r.logger.Debug("requesting the dataset without a token", zap.Error(err))
	}
	return source.NewClient(cfg.APIURL, token, r.logger).Load(ctx)
}

// close releases the cache and writes the metrics textfile.
func (r *runtime) close() {
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			r.logger.Warn("closing embedding cache", zap.Error(err))
		}
	}

	if path := r.config.MetricsTextfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			r.logger.Warn("writing metrics", zap.String("path", path), zap.Error(err))
			return
		}
		r.logger.Debug("metrics written", zap.String("path", path))
	}
	_ = r.logger.Sync()
}
