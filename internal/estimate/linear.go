package estimate

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/onnwee/hunchrank/internal/tracing"
)

// rcond is the relative singular-value cutoff used to determine rank.
const rcond = 1e-10

// Linear fits ordinary least squares with an intercept, solved through SVD so
// that rank-deficient designs still yield the minimum-norm solution.
type Linear struct{}

// Estimate implements Estimator.
func (Linear) Estimate(ctx context.Context, ds Dataset) (_ map[string]float64, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "estimate.linear")
	defer func() { endSpan(err) }()

	if len(ds.Samples) < 2 || ds.distinctVectors() < 2 {
		return nil, ErrEstimationDegraded
	}

	n, d := len(ds.Samples), ds.Width+1
	a := mat.NewDense(n, d, nil)
	b := mat.NewDense(n, 1, nil)
	for i, s := range ds.Samples {
		a.Set(i, 0, 1)
		for j, x := range s.X {
			a.Set(i, j+1, x)
		}
		b.Set(i, 0, s.Y)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: svd did not converge", ErrEstimationDegraded)
	}
	rank := svd.Rank(rcond)
	if rank < 2 {
		return nil, fmt.Errorf("%w: design matrix rank %d", ErrEstimationDegraded, rank)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var coef mat.Dense
	svd.SolveTo(&coef, b, rank)

	beta := make([]float64, d)
	for j := range beta {
		beta[j] = coef.At(j, 0)
		if math.IsNaN(beta[j]) || math.IsInf(beta[j], 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient", ErrEstimationDegraded)
		}
	}

	return predictAll(ds, func(x []float64) float64 {
		y := beta[0]
		for j, v := range x {
			y += beta[j+1] * v
		}
		return y
	})
}
