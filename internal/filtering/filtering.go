package filtering

import (
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/metrics"
	"github.com/spigell/jobmatch/internal/profile"
)

// Gate is a single hard-filter rule. Gates are independent of each other.
type Gate interface {
	Name() string
	// Check reports whether the pair passes and, if not, why.
	Check(c *profile.Candidate, j *profile.JobPosting, v *features.Vector) (bool, string)
}

// Verdict is the outcome of the hard filter for one pair. Reasons are listed
// for every failing gate, not only the first.
type Verdict struct {
	OK          bool     `json:"ok"`
	FailedGates []string `json:"failed_gates,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
}

// Step describes the result of filtering a pool.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a gate.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by gates that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// HardFilter is the conjunction of its gates.
type HardFilter struct {
	gates  []Gate
	logger *zap.Logger
}

// New builds a hard filter from the provided gates, or the default three
// (mandatory criteria, mandatory languages, location) when none are given.
func New(logger *zap.Logger, gates ...Gate) *HardFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(gates) == 0 {
		gates = DefaultGates()
	}
	return &HardFilter{gates: gates, logger: logger}
}

// DefaultGates returns the gates every deployment must apply.
func DefaultGates() []Gate {
	return []Gate{NewMandatoryCriteria(), NewMandatoryLanguages(), NewLocation()}
}

// Passes evaluates every gate for the pair. It never short-circuits.
func (f *HardFilter) Passes(c *profile.Candidate, j *profile.JobPosting, v *features.Vector) Verdict {
	verdict := Verdict{OK: true}
	for _, gate := range f.gates {
		ok, reason := gate.Check(c, j, v)
		if ok {
			continue
		}
		verdict.OK = false
		verdict.FailedGates = append(verdict.FailedGates, gate.Name())
		verdict.Reasons = append(verdict.Reasons, reason)
		metrics.HardFilterRejections.WithLabelValues(gate.Name()).Inc()
	}
	return verdict
}

// Pair is a (candidate, job) pair with its extracted features.
type Pair struct {
	Candidate *profile.Candidate
	Job       *profile.JobPosting
	Vector    *features.Vector
	Verdict   Verdict
}

// Run applies the filter to every pair and splits them into passed and rejected,
// keeping the input order in both.
func (f *HardFilter) Run(pairs []Pair) (passed, rejected []Pair, step Step) {
	step.Initial = len(pairs)
	for _, p := range pairs {
		p.Verdict = f.Passes(p.Candidate, p.Job, p.Vector)
		if p.Verdict.OK {
			passed = append(passed, p)
			continue
		}
		rejected = append(rejected, p)
		f.logger.Debug("pair rejected by hard filter", append(logger.PairFields(p.Candidate.ID, p.Job.ID),
			zap.Strings("failed_gates", p.Verdict.FailedGates),
		)...)
	}
	step.Dropped = len(rejected)
	step.Left = len(passed)

	f.logger.Info("filter step",
		zap.String("name", "hard_filter"),
		zap.Int("initial", step.Initial),
		zap.Int("dropped", step.Dropped),
		zap.Int("left", step.Left),
	)
	return passed, rejected, step
}

// Describe returns status entries for the filter's gates.
func (f *HardFilter) Describe() []Status {
	statuses := make([]Status, 0, len(f.gates))
	for _, gate := range f.gates {
		if reporter, ok := gate.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: gate.Name(), Enabled: true})
	}
	return statuses
}

// LogStatus writes the status of every gate at debug level.
func (f *HardFilter) LogStatus() {
	for _, s := range f.Describe() {
		fields := []zap.Field{zap.String("gate", s.Name), zap.Bool("enabled", s.Enabled)}
		if s.Reason != "" {
			fields = append(fields, zap.String("reason", s.Reason))
		}
		if len(s.Details) > 0 {
			fields = append(fields, zap.Any("details", s.Details))
		}
		f.logger.Debug("hard filter gate", fields...)
	}
}
