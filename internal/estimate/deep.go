package estimate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/onnwee/hunchrank/internal/tracing"
)

// DeepConfig holds the multilayer perceptron's hyper-parameters.
type DeepConfig struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	Seed         uint64  `json:"seed"`
	// HiddenUnits of 0 means max(1, features/2).
	HiddenUnits int `json:"hidden_units"`
}

// DefaultDeepConfig returns the standard hyper-parameters.
func DefaultDeepConfig() DeepConfig {
	return DeepConfig{Epochs: 200, LearningRate: 0.1, Seed: 42}
}

// Deep is a one-hidden-layer tanh network trained with full-batch gradient
// descent. Inputs and targets are scaled to [0, 1] during training.
type Deep struct {
	cfg DeepConfig
}

// NewDeep creates a Deep estimator, filling zero fields from the defaults.
func NewDeep(cfg DeepConfig) Deep {
	def := DefaultDeepConfig()
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	return Deep{cfg: cfg}
}

const scoreScale = 5.0

// Estimate implements Estimator. The context is checked between epochs.
func (e Deep) Estimate(ctx context.Context, ds Dataset) (_ map[string]float64, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "estimate.deep")
	defer func() { endSpan(err) }()

	if len(ds.Samples) < 2 || ds.distinctVectors() < 2 {
		return nil, ErrEstimationDegraded
	}

	n, d := len(ds.Samples), ds.Width
	if d == 0 {
		return nil, fmt.Errorf("%w: no features", ErrEstimationDegraded)
	}
	h := e.cfg.HiddenUnits
	if h <= 0 {
		h = max(1, d/2)
	}

	x := mat.NewDense(n, d, nil)
	y := mat.NewDense(n, 1, nil)
	for i, s := range ds.Samples {
		for j, v := range s.X {
			x.Set(i, j, v/scoreScale)
		}
		y.Set(i, 0, s.Y/scoreScale)
	}

	rng := rand.New(rand.NewPCG(e.cfg.Seed, e.cfg.Seed^0x9e3779b97f4a7c15))
	w1 := mat.NewDense(d, h, nil)
	b1 := make([]float64, h)
	w2 := mat.NewDense(h, 1, nil)
	b2 := 0.0
	limit1 := math.Sqrt(6.0 / float64(d+h))
	limit2 := math.Sqrt(6.0 / float64(h+1))
	for i := 0; i < d; i++ {
		for j := 0; j < h; j++ {
			w1.Set(i, j, (rng.Float64()*2-1)*limit1)
		}
	}
	for j := 0; j < h; j++ {
		w2.Set(j, 0, (rng.Float64()*2-1)*limit2)
	}

	var (
		hidden, out, dOut, dHidden mat.Dense
		gW1, gW2                   mat.Dense
	)
	lr := e.cfg.LearningRate
	scale := 2.0 / float64(n)

	for epoch := 0; epoch < e.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Forward.
		hidden.Mul(x, w1)
		hidden.Apply(func(_, j int, v float64) float64 { return math.Tanh(v + b1[j]) }, &hidden)
		out.Mul(&hidden, w2)

		// Mean squared error gradient with respect to the output.
		dOut.Apply(func(i, _ int, v float64) float64 { return scale * (v + b2 - y.At(i, 0)) }, &out)

		gW2.Mul(hidden.T(), &dOut)
		gb2 := mat.Sum(&dOut)

		dHidden.Mul(&dOut, w2.T())
		dHidden.Apply(func(i, j int, v float64) float64 {
			a := hidden.At(i, j)
			return v * (1 - a*a)
		}, &dHidden)
		gW1.Mul(x.T(), &dHidden)

		for j := 0; j < h; j++ {
			b1[j] -= lr * mat.Sum(dHidden.ColView(j))
		}
		gW1.Scale(lr, &gW1)
		w1.Sub(w1, &gW1)
		gW2.Scale(lr, &gW2)
		w2.Sub(w2, &gW2)
		b2 -= lr * gb2
	}

	predict := func(v []float64) float64 {
		sum := b2
		for j := 0; j < h; j++ {
			z := b1[j]
			for i, xv := range v {
				z += w1.At(i, j) * xv / scoreScale
			}
			sum += math.Tanh(z) * w2.At(j, 0)
		}
		return sum * scoreScale
	}
	return predictAll(ds, predict)
}
