package tower

import "math"

type AdamConfig struct {
	LearningRate float64 `mapstructure:"learning-rate" validate:"gt=0"`
	Beta1        float64 `mapstructure:"beta1" validate:"gte=0,lt=1"`
	Beta2        float64 `mapstructure:"beta2" validate:"gte=0,lt=1"`
	Epsilon      float64 `mapstructure:"epsilon" validate:"gt=0"`
	WeightDecay  float64 `mapstructure:"weight-decay" validate:"gte=0"`
	// ClipNorm caps the global gradient norm; 0 disables clipping.
	ClipNorm float64 `mapstructure:"clip-norm" validate:"gte=0"`
}

func DefaultAdamConfig() AdamConfig {
	return AdamConfig{LearningRate: 1e-3, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8, ClipNorm: 5}
}

type adamState struct {
	t    int
	m, v [][]float64
}

func newAdamState(params [][]float64) *adamState {
	s := &adamState{m: make([][]float64, len(params)), v: make([][]float64, len(params))}
	for i, p := range params {
		s.m[i] = make([]float64, len(p))
		s.v[i] = make([]float64, len(p))
	}
	return s
}

func (s *adamState) step(params, grads [][]float64, cfg AdamConfig) {
	s.t++
	c1 := 1 - math.Pow(cfg.Beta1, float64(s.t))
	c2 := 1 - math.Pow(cfg.Beta2, float64(s.t))
	for i, p := range params {
		g, m, v := grads[i], s.m[i], s.v[i]
		for k := range p {
			gk := g[k] + cfg.WeightDecay*p[k]
			m[k] = cfg.Beta1*m[k] + (1-cfg.Beta1)*gk
			v[k] = cfg.Beta2*v[k] + (1-cfg.Beta2)*gk*gk
			p[k] -= cfg.LearningRate * (m[k] / c1) / (math.Sqrt(v[k]/c2) + cfg.Epsilon)
		}
	}
}
