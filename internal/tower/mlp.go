// Package tower implements the candidate and job encoders of the two-tower
// model.
package tower

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
)

// Tower maps entity features plus a text embedding to a unit-length embedding.
type Tower interface {
	Name() string
	// Version changes whenever the parameters change.
	Version() uint64
	Encode(features []float64, text []float32) (Embedding, error)
}

type Config struct {
	FeatureDim int   `mapstructure:"feature-dim" json:"feature_dim"`
	TextDim    int   `mapstructure:"text-dim" json:"text_dim" validate:"gt=0"`
	Hidden     []int `mapstructure:"hidden" json:"hidden" validate:"dive,gt=0"`
	OutputDim  int   `mapstructure:"output-dim" json:"output_dim" validate:"gt=0"`
	Seed       int64 `mapstructure:"seed" json:"seed"`
}

// DefaultConfig leaves FeatureDim unset; it depends on the entity layout.
func DefaultConfig() Config {
	return Config{TextDim: 384, Hidden: []int{256}, OutputDim: 128, Seed: 1}
}

func (c Config) InputDim() int { return c.FeatureDim + c.TextDim }

// MLP is a feed-forward tower: hidden Dense+ReLU layers, a linear output
// layer and L2 normalization. Encode may run concurrently; Apply takes the
// write lock, so parameter updates have a single writer.
type MLP struct {
	name string
	cfg  Config

	mu     sync.RWMutex
	layers []*dense
	adam   *adamState

	version atomic.Uint64
}

// dense computes W·x + b with W stored row-major (out × in).
type dense struct {
	in, out int
	w       []float64
	b       []float64
}

const (
	outputBiasStd = 0.1
	// below minNorm the output is replaced by the uniform unit vector
	minNorm = 1e-12
)

// NewMLP initializes a tower with He-normal weights drawn from cfg.Seed.
func NewMLP(name string, cfg Config) (*MLP, error) {
	if cfg.FeatureDim < 0 || cfg.TextDim < 0 || cfg.InputDim() == 0 {
		return nil, fmt.Errorf("tower %s: input dimension must be positive", name)
	}
	if cfg.OutputDim <= 0 {
		return nil, fmt.Errorf("tower %s: output dimension must be positive", name)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	dims := append(append([]int{cfg.InputDim()}, cfg.Hidden...), cfg.OutputDim)

	m := &MLP{name: name, cfg: cfg}
	for i := 0; i+1 < len(dims); i++ {
		if dims[i+1] <= 0 {
			return nil, fmt.Errorf("tower %s: layer %d has size %d", name, i, dims[i+1])
		}
		l := &dense{in: dims[i], out: dims[i+1], w: make([]float64, dims[i]*dims[i+1]), b: make([]float64, dims[i+1])}
		std := math.Sqrt(2 / float64(l.in))
		for k := range l.w {
			l.w[k] = rng.NormFloat64() * std
		}
		// a non-zero output bias keeps all-zero inputs off the origin
		if i+2 == len(dims) {
			for k := range l.b {
				l.b[k] = rng.NormFloat64() * outputBiasStd
			}
		}
		m.layers = append(m.layers, l)
	}
	return m, nil
}

func (m *MLP) Name() string    { return m.name }
func (m *MLP) Config() Config  { return m.cfg }
func (m *MLP) Version() uint64 { return m.version.Load() }

// Encode runs a forward pass without keeping activations.
func (m *MLP) Encode(features []float64, text []float32) (Embedding, error) {
	p, err := m.Forward(features, text)
	if err != nil {
		return nil, err
	}
	return p.Output, nil
}

// Pass keeps the activations of one forward pass for Backward.
type Pass struct {
	Output Embedding

	inputs [][]float64 // input of each layer
	pre    [][]float64 // pre-activation output of each layer
	norm   float64
}

// Forward runs the network and records what Backward needs.
func (m *MLP) Forward(features []float64, text []float32) (*Pass, error) {
	x, err := m.input(features, text)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p := &Pass{inputs: make([][]float64, len(m.layers)), pre: make([][]float64, len(m.layers))}
	for i, l := range m.layers {
		p.inputs[i] = x
		z := l.forward(x)
		p.pre[i] = z
		if i == len(m.layers)-1 {
			x = z
			break
		}
		x = relu(z)
	}

	p.norm = norm(x)
	out := make(Embedding, len(x))
	if p.norm < minNorm {
		p.norm = 0
		u := 1 / math.Sqrt(float64(len(out)))
		for i := range out {
			out[i] = u
		}
	} else {
		for i, v := range x {
			out[i] = v / p.norm
		}
	}
	p.Output = out
	return p, nil
}

func (m *MLP) input(features []float64, text []float32) ([]float64, error) {
	if len(features) != m.cfg.FeatureDim {
		return nil, fmt.Errorf("tower %s: expected %d features, got %d", m.name, m.cfg.FeatureDim, len(features))
	}
	x := make([]float64, m.cfg.InputDim())
	copy(x, features)
	// text embeddings of a different size are truncated or zero padded
	for i := 0; i < m.cfg.TextDim && i < len(text); i++ {
		x[m.cfg.FeatureDim+i] = float64(text[i])
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("tower input contains non-finite values")
		}
	}
	return x, nil
}

func (l *dense) forward(x []float64) []float64 {
	z := make([]float64, l.out)
	for o := 0; o < l.out; o++ {
		row := l.w[o*l.in : (o+1)*l.in]
		s := l.b[o]
		for i, v := range x {
			s += row[i] * v
		}
		z[o] = s
	}
	return z
}

// Gradients has one slice per parameter tensor, in the order of params().
type Gradients struct {
	tensors [][]float64
}

func (m *MLP) NewGradients() *Gradients {
	g := &Gradients{}
	for _, l := range m.layers {
		g.tensors = append(g.tensors, make([]float64, len(l.w)), make([]float64, len(l.b)))
	}
	return g
}

// Norm is the global L2 norm of the gradients.
func (g *Gradients) Norm() float64 {
	s := 0.0
	for _, t := range g.tensors {
		for _, v := range t {
			s += v * v
		}
	}
	return math.Sqrt(s)
}

func (g *Gradients) scale(f float64) {
	for _, t := range g.tensors {
		for i := range t {
			t[i] *= f
		}
	}
}

// Backward accumulates into g the gradients of the parameters given dOut,
// the gradient of the loss with respect to the normalized output of p.
func (m *MLP) Backward(p *Pass, dOut []float64, g *Gradients) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p.norm == 0 {
		return
	}
	// through y = z/|z|: dz = (dy - y (y·dy)) / |z|
	dot := 0.0
	for i, v := range p.Output {
		dot += v * dOut[i]
	}
	delta := make([]float64, len(dOut))
	for i := range dOut {
		delta[i] = (dOut[i] - p.Output[i]*dot) / p.norm
	}

	for li := len(m.layers) - 1; li >= 0; li-- {
		l := m.layers[li]
		x := p.inputs[li]
		gw, gb := g.tensors[2*li], g.tensors[2*li+1]
		for o := 0; o < l.out; o++ {
			d := delta[o]
			if d == 0 {
				continue
			}
			gb[o] += d
			row := gw[o*l.in : (o+1)*l.in]
			for i, v := range x {
				row[i] += d * v
			}
		}
		if li == 0 {
			break
		}
		prev := make([]float64, l.in)
		for o := 0; o < l.out; o++ {
			d := delta[o]
			if d == 0 {
				continue
			}
			row := l.w[o*l.in : (o+1)*l.in]
			for i := range prev {
				prev[i] += row[i] * d
			}
		}
		// ReLU of the previous layer
		for i, z := range p.pre[li-1] {
			if z <= 0 {
				prev[i] = 0
			}
		}
		delta = prev
	}
}

// Apply performs one optimizer step and bumps the version.
func (m *MLP) Apply(g *Gradients, opt AdamConfig) {
	if opt.ClipNorm > 0 {
		if n := g.Norm(); n > opt.ClipNorm {
			g.scale(opt.ClipNorm / n)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adam == nil {
		m.adam = newAdamState(m.params())
	}
	m.adam.step(m.params(), g.tensors, opt)
	m.version.Add(1)
}

func (m *MLP) params() [][]float64 {
	out := make([][]float64, 0, 2*len(m.layers))
	for _, l := range m.layers {
		out = append(out, l.w, l.b)
	}
	return out
}

func relu(z []float64) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

func norm(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s)
}

// Embedding is a unit-length tower output.
type Embedding []float64

// Dot is the cosine similarity of two embeddings.
func (e Embedding) Dot(o Embedding) float64 {
	n := min(len(e), len(o))
	s := 0.0
	for i := 0; i < n; i++ {
		s += e[i] * o[i]
	}
	return s
}

func (e Embedding) Norm() float64 { return norm(e) }
