package gemini

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	_ "embed"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/ai"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const (
	systemInstruction = "You are a careful recruiting assistant. Follow the template and answer only with the requested JSON."

	defaultMaxLogLength       = 200
	maxUserInstructionRunes   = 500
	noneValue                 = "none"
	userInstructionLinePrefix = "  - "
)

// PromptOverrides are user preferences injected into the prompt template.
type PromptOverrides struct {
	ExtraCriteria     string `mapstructure:"extra-criteria"`
	DealBreakers      string `mapstructure:"deal-breakers"`
	CustomKeywords    string `mapstructure:"custom-keywords"`
	RegionConstraints string `mapstructure:"region-constraints"`
	UserInstructions  string `mapstructure:"user-instructions"`
}

// Matcher asks Gemini to assess a (candidate, job) pair. It implements ai.Matcher.
type Matcher struct {
	generator contentGenerator
	minScore  float64
	logger    *zap.Logger
	maxLogLen int

	mu        sync.RWMutex
	overrides PromptOverrides
}

var _ ai.Matcher = (*Matcher)(nil)

func NewMatcher(generator contentGenerator, minScore float64, maxLogLength int, logger *zap.Logger) *Matcher {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Matcher{
		generator: generator,
		minScore:  minScore,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (m *Matcher) SetPromptOverrides(o PromptOverrides) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = o
}

func (m *Matcher) Evaluate(ctx context.Context, c *profile.Candidate, j *profile.JobPosting) (*ai.FitAssessment, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}

	candidateJSON, err := json.MarshalIndent(candidatePayload(c), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal candidate payload: %w", err)
	}

	jobJSON, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	m.mu.RLock()
	overrides := m.overrides
	m.mu.RUnlock()

	prompt := buildPrompt(string(candidateJSON), string(jobJSON), overrides)
	log := logger.WithFields(m.logger, logger.PairFields(c.ID, j.ID)...)

	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	raw, err := m.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	if m.minScore > 0 && !math.IsNaN(assessment.Score) && assessment.Score < m.minScore {
		log.Debug("set fit to false by score threshold",
			zap.Float64("score", assessment.Score),
			zap.Float64("threshold", m.minScore),
		)
		assessment.Fit = false
	}

	assessment.Raw = raw
	return assessment, nil
}

// candidatePayload leaves out personal attributes the model must not judge on.
func candidatePayload(c *profile.Candidate) map[string]any {
	return map[string]any{
		"id":                c.ID,
		"location":          c.Location,
		"ready_to_relocate": c.ReadyToRelocate,
		"education":         c.Education,
		"experience":        c.Experience,
		"languages":         c.Languages,
		"skills":            c.Skills,
		"attributes":        c.Attributes,
	}
}

func buildPrompt(candidateJSON, jobJSON string, o PromptOverrides) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Candidate:\n{{CANDIDATE_JSON}}\n\nJob:\n{{JOB_JSON}}\n\nJSON Response:"
	}

	r := strings.NewReplacer(
		"{{EXTRA_CRITERIA}}", singleLine(o.ExtraCriteria),
		"{{DEAL_BREAKERS}}", singleLine(o.DealBreakers),
		"{{CUSTOM_KEYWORDS}}", singleLine(o.CustomKeywords),
		"{{REGION_CONSTRAINTS}}", singleLine(o.RegionConstraints),
		"{{USER_INSTRUCTIONS}}", userInstructions(o.UserInstructions),
		"{{CANDIDATE_JSON}}", candidateJSON,
		"{{JOB_JSON}}", jobJSON,
	)
	return r.Replace(template)
}

// singleLine collapses whitespace and neutralizes section markers.
func singleLine(s string) string {
	s = strings.Join(strings.Fields(neutralize(s)), " ")
	if s == "" {
		return noneValue
	}
	return s
}

// userInstructions renders free text as an indented list, limited to maxUserInstructionRunes.
func userInstructions(s string) string {
	s = strings.TrimSpace(neutralize(s))
	if runes := []rune(s); len(runes) > maxUserInstructionRunes {
		s = string(runes[:maxUserInstructionRunes])
	}

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, userInstructionLinePrefix+line)
		}
	}
	if len(lines) == 0 {
		return userInstructionLinePrefix + noneValue
	}
	return strings.Join(lines, "\n")
}

func neutralize(s string) string {
	return strings.NewReplacer("[", "(", "]", ")", "\r", "").Replace(s)
}

func parseResponse(raw string) (*ai.FitAssessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}
	score = math.Max(0, math.Min(1, score))

	return &ai.FitAssessment{
		Fit:     coerceBool(data["fit"]),
		Score:   score,
		Reason:  coerceString(data["reason"]),
		Message: coerceString(data["message"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
