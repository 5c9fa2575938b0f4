// Package criteria evaluates named mandatory criteria of a job posting
// against the values a candidate declared.
package criteria

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/jobmatch/internal/profile"
)

const (
	KindNumericThreshold = "numeric_threshold"
	KindCategoricalMatch = "categorical_match"
	KindBooleanFlag      = "boolean_flag"
)

// Evaluator decides whether a declared candidate value satisfies the required value.
type Evaluator func(candidateValue, requiredValue any) bool

// Predicate is a decoded criterion variant.
type Predicate interface {
	Evaluate(candidateValue, requiredValue any) bool
}

// NumericThreshold compares numbers. Operator defaults to ">=".
type NumericThreshold struct {
	Operator  string  `mapstructure:"operator"`
	Tolerance float64 `mapstructure:"tolerance"`
}

func (p NumericThreshold) Evaluate(candidateValue, requiredValue any) bool {
	c, ok := toFloat(candidateValue)
	if !ok {
		return false
	}
	r, ok := toFloat(requiredValue)
	if !ok {
		return false
	}
	switch strings.TrimSpace(p.Operator) {
	case "", ">=":
		return c+p.Tolerance >= r
	case ">":
		return c+p.Tolerance > r
	case "<=":
		return c-p.Tolerance <= r
	case "<":
		return c-p.Tolerance < r
	case "==", "=":
		d := c - r
		return d <= p.Tolerance && d >= -p.Tolerance
	default:
		return false
	}
}

// CategoricalMatch passes when the declared value is one of the required
// values (or of Allowed when the job gives no required value).
type CategoricalMatch struct {
	CaseSensitive bool     `mapstructure:"case-sensitive"`
	Allowed       []string `mapstructure:"allowed"`
}

func (p CategoricalMatch) Evaluate(candidateValue, requiredValue any) bool {
	accepted := toStrings(requiredValue)
	if len(accepted) == 0 {
		accepted = p.Allowed
	}
	declared := toStrings(candidateValue)
	for _, d := range declared {
		for _, a := range accepted {
			if p.CaseSensitive && d == a {
				return true
			}
			if !p.CaseSensitive && strings.EqualFold(d, a) {
				return true
			}
		}
	}
	return false
}

// BooleanFlag passes when the declared flag equals the required one (true by default).
type BooleanFlag struct{}

func (BooleanFlag) Evaluate(candidateValue, requiredValue any) bool {
	declared, ok := toBool(candidateValue)
	if !ok {
		return false
	}
	expected := true
	if requiredValue != nil {
		if v, ok := toBool(requiredValue); ok {
			expected = v
		}
	}
	return declared == expected
}

// Decode builds the predicate variant named by the criterion kind from its params.
func Decode(c profile.MandatoryCriterion) (Predicate, error) {
	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case KindNumericThreshold:
		var p NumericThreshold
		if err := decodeParams(c.Params, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindCategoricalMatch:
		var p CategoricalMatch
		if err := decodeParams(c.Params, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindBooleanFlag:
		return BooleanFlag{}, nil
	default:
		return nil, fmt.Errorf("unknown criterion kind %q", c.Kind)
	}
}

func decodeParams(params map[string]any, target any) error {
	if len(params) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(params)
}

// Result is the outcome of one criterion for one candidate.
type Result struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Passed      bool   `json:"passed"`
	Reason      string `json:"reason,omitempty"`
}

// Registry resolves evaluators. Custom evaluators registered by criterion ID
// take precedence over the decoded predicate.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{custom: make(map[string]Evaluator)}
}

func (r *Registry) Register(id string, fn Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[id] = fn
}

// Check reports whether the criterion can be evaluated at all: a custom
// evaluator is registered for it, or its kind and params decode.
func (r *Registry) Check(c profile.MandatoryCriterion) error {
	_, err := r.evaluator(c)
	return err
}

func (r *Registry) evaluator(c profile.MandatoryCriterion) (Evaluator, error) {
	if r != nil {
		r.mu.RLock()
		eval := r.custom[c.ID]
		r.mu.RUnlock()
		if eval != nil {
			return eval, nil
		}
	}
	p, err := Decode(c)
	if err != nil {
		return nil, fmt.Errorf("criterion %q: %w", c.ID, err)
	}
	return p.Evaluate, nil
}

// Evaluate checks a single criterion. A candidate without a declared value fails it.
// The returned error marks a malformed criterion, whatever the candidate declared.
func (r *Registry) Evaluate(c profile.MandatoryCriterion, attributes map[string]any) (Result, error) {
	res := Result{ID: c.ID, Description: c.Description}

	eval, err := r.evaluator(c)
	if err != nil {
		return res, err
	}

	value, declared := attributes[c.ID]
	if !declared || value == nil {
		res.Reason = "no declared value"
		return res, nil
	}

	res.Passed = eval(value, c.Required)
	if !res.Passed {
		res.Reason = fmt.Sprintf("declared %v does not satisfy %v", value, c.Required)
	}
	return res, nil
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(strings.TrimSpace(val.String()), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	}
	return false, false
}

func toStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, toStrings(item)...)
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}
