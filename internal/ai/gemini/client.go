package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/utils"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "gemini-embedding-001"
	defaultTaskType       = "SEMANTIC_SIMILARITY"
	defaultDimensions     = 384
	defaultMaxRetries     = 3
	defaultMaxRetryDelay  = 30 * time.Second

	// maxBatch is the number of texts sent in one embedding request.
	maxBatch = 100
)

var wait = utils.WaitFor

type Config struct {
	APIKey         string        `mapstructure:"api-key"`
	APIKeyFile     string        `mapstructure:"api-key-file"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding-model"`
	TaskType       string        `mapstructure:"task-type"`
	Dimensions     int           `mapstructure:"dimensions" validate:"gte=0"`
	MaxRetries     int           `mapstructure:"max-retries" validate:"gte=0"`
	MaxRetryDelay  time.Duration `mapstructure:"max-retry-delay"`
}

// modelsAPI is the part of genai.Models used by the generator.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Generator wraps the Google GenAI client for text generation and embeddings.
type Generator struct {
	models         modelsAPI
	model          string
	embeddingModel string
	taskType       string
	dimensions     int
	maxRetries     int
	maxRetryDelay  time.Duration
	logger         *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, log), nil
}

func newGenerator(models modelsAPI, cfg Config, log *zap.Logger) *Generator {
	g := &Generator{
		models:         models,
		model:          strings.TrimSpace(cfg.Model),
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		taskType:       strings.TrimSpace(cfg.TaskType),
		dimensions:     cfg.Dimensions,
		maxRetries:     cfg.MaxRetries,
		maxRetryDelay:  cfg.MaxRetryDelay,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.embeddingModel == "" {
		g.embeddingModel = defaultEmbeddingModel
	}
	if g.taskType == "" {
		g.taskType = defaultTaskType
	}
	if g.dimensions <= 0 {
		g.dimensions = defaultDimensions
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.maxRetryDelay <= 0 {
		g.maxRetryDelay = defaultMaxRetryDelay
	}
	g.logger = logger.WithService(log, "gemini", g.model)
	return g
}

// GenerateContent sends the message with the system instruction and returns the textual response.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("prompt must not be empty")
	}

	var config *genai.GenerateContentConfig
	if system = strings.TrimSpace(system); system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}

	var resp *genai.GenerateContentResponse
	err := g.retry(ctx, "generate content", func() error {
		var err error
		resp, err = g.models.GenerateContent(ctx, g.model, genai.Text(message), config)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

// Embed returns the normalized embedding of a single text.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds the texts in chunks, preserving order.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g == nil || g.models == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	dims := int32(g.dimensions)
	config := &genai.EmbedContentConfig{TaskType: g.taskType, OutputDimensionality: &dims}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: text}},
			})
		}

		var resp *genai.EmbedContentResponse
		err := g.retry(ctx, "embed content", func() error {
			var err error
			resp, err = g.models.EmbedContent(ctx, g.embeddingModel, contents, config)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		if len(resp.Embeddings) != len(contents) {
			return nil, fmt.Errorf("gemini api returned %d embeddings for %d texts", len(resp.Embeddings), len(contents))
		}

		for _, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, errors.New("gemini api returned an empty embedding")
			}
			out = append(out, normalize(e.Values))
		}
	}

	g.logger.Debug("texts embedded", zap.Int("count", len(texts)), zap.String("embedding_model", g.embeddingModel))
	return out, nil
}

// Model returns the generation model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func (g *Generator) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == g.maxRetries || !temporary(err) {
			return err
		}

		delay := retryDelay(err, attempt)
		if delay > g.maxRetryDelay {
			g.logger.Warn("gemini retry delay exceeds limit, giving up",
				zap.String("op", op),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			return err
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if werr := wait(ctx, delay); werr != nil {
			return werr
		}
	}
	return err
}

func temporary(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?) ?(s|sec|seconds?)\b`)

// retryDelay uses the delay suggested by the API when present, exponential backoff otherwise.
func retryDelay(err error, attempt int) time.Duration {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
