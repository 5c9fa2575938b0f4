package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jobmatch/internal/ai/gemini"
	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/geo"
	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/recommend"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/store"
	"github.com/spigell/jobmatch/internal/tower"
	"github.com/spigell/jobmatch/internal/training"
)

const (
	app               = "jobmatch"
	envPrefix         = "JOBMATCH"
	defaultCheckpoint = "jobmatch.checkpoint.json"
)

type Config struct {
	Dataset    DatasetConfig `mapstructure:"dataset"`
	Checkpoint string        `mapstructure:"checkpoint"`
	// MetricsTextfile is where metrics are written after each command, for the node_exporter textfile collector.
	MetricsTextfile string `mapstructure:"metrics-textfile"`
	// Taxonomy is an optional YAML file merged over the built-in skill and title aliases.
	Taxonomy string               `mapstructure:"taxonomy"`
	Cities   map[string]geo.Point `mapstructure:"cities"`

	Features  features.Config    `mapstructure:"features"`
	Scoring   scoring.Config     `mapstructure:"scoring"`
	Recommend recommend.Config   `mapstructure:"recommend"`
	Tower     tower.Config       `mapstructure:"tower"`
	Training  TrainingConfig     `mapstructure:"training"`
	Cache     CacheConfig        `mapstructure:"cache"`
	Guard     lookup.GuardConfig `mapstructure:"guard"`
	Embedder  EmbedderConfig     `mapstructure:"embedder"`
	AI        AIConfig           `mapstructure:"ai"`
}

type DatasetConfig struct {
	// File is a JSON or YAML dataset. It is used when APIURL is empty.
	File      string `mapstructure:"file"`
	APIURL    string `mapstructure:"api-url" validate:"omitempty,url"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
}

type TrainingConfig struct {
	training.Config `mapstructure:",squash"`
	// ValidationSplit is the share of positive pairs held out for validation.
	ValidationSplit float64 `mapstructure:"validation-split" validate:"gte=0,lt=1"`
}

type CacheConfig struct {
	store.Config `mapstructure:",squash"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type EmbedderConfig struct {
	// Provider is "hash" for the offline embedder or "gemini".
	Provider string `mapstructure:"provider" validate:"oneof=hash gemini"`
	MemoSize int    `mapstructure:"memo-size" validate:"gte=0"`
}

type AIConfig struct {
	// Enabled turns on Gemini reranking of the top results.
	Enabled         bool                   `mapstructure:"enabled"`
	MinimumFitScore float64                `mapstructure:"minimum-fit-score" validate:"gte=0,lte=1"`
	MaxLogLength    int                    `mapstructure:"max-log-length" validate:"gte=0"`
	Gemini          gemini.Config          `mapstructure:"gemini"`
	Prompt          gemini.PromptOverrides `mapstructure:"prompt"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "jobmatch recommends candidates for job postings and job postings for candidates",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("dataset", "", "dataset file (json or yaml)")
	rootCmd.PersistentFlags().String("checkpoint", defaultCheckpoint, "tower checkpoint file")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("dataset.file", rootCmd.PersistentFlags().Lookup("dataset"))
	viper.BindPFlag("checkpoint", rootCmd.PersistentFlags().Lookup("checkpoint"))
}

func initConfig() {
	// The version command works without a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine; a broken one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func defaultConfig() Config {
	return Config{
		Checkpoint: defaultCheckpoint,
		Features:   features.DefaultConfig(),
		Scoring:    scoring.DefaultConfig(),
		Recommend:  recommend.DefaultConfig(),
		Tower:      tower.DefaultConfig(),
		Training: TrainingConfig{
			Config:          training.DefaultConfig(),
			ValidationSplit: 0.1,
		},
		Cache: CacheConfig{
			Config: store.Config{Backend: store.BackendMemory},
			TTL:    24 * time.Hour,
		},
		Guard:    lookup.DefaultGuardConfig(),
		Embedder: EmbedderConfig{Provider: "hash"},
		AI: AIConfig{
			MinimumFitScore: 0.5,
		},
	}
}

// getConfig decodes the config over the defaults and validates it.
func getConfig() (*Config, error) {
	config := defaultConfig()
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, err
	}
	return &config, nil
}
