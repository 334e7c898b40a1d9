package explainer

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errSingular = errors.New("singular system")

// weightedRidge fits y ~ intercept + X beta minimizing
// sum w_i (y_i - f(x_i))^2 + alpha |beta|^2. The intercept is not penalized.
// The normal equations are solved by Cholesky factorization.
func weightedRidge(X [][]float64, y, w []float64, alpha float64) (beta []float64, intercept float64, err error) {
	if len(X) == 0 {
		return nil, 0, errors.New("no samples")
	}
	n, p := len(X), len(X[0])+1

	// rows scaled by sqrt(w_i) turn the weighted problem into ordinary least squares
	design := mat.NewDense(n, p, nil)
	target := mat.NewVecDense(n, nil)
	for i, xi := range X {
		s := math.Sqrt(w[i])
		design.Set(i, 0, s)
		for j, v := range xi {
			design.Set(i, j+1, s*v)
		}
		target.SetVec(i, s*y[i])
	}

	var gram mat.SymDense
	gram.SymOuterK(1, design.T())
	for j := 1; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+alpha)
	}

	var rhs mat.VecDense
	rhs.MulVec(design.T(), target)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, 0, errSingular
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, &rhs); err != nil {
		return nil, 0, err
	}

	beta = make([]float64, p-1)
	for j := range beta {
		beta[j] = sol.AtVec(j + 1)
	}
	return beta, sol.AtVec(0), nil
}

// columnStd returns the standard deviation of each column. Columns with
// fewer than two rows have no spread and report NaN.
func columnStd(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	data := toDense(rows)
	_, d := data.Dims()
	std := make([]float64, d)
	col := make([]float64, len(rows))
	for j := range std {
		mat.Col(col, j, data)
		_, std[j] = stat.MeanStdDev(col, nil)
	}
	return std
}

// columnMean returns the mean of each column.
func columnMean(rows [][]float64) []float64 {
	data := toDense(rows)
	_, d := data.Dims()
	mean := make([]float64, d)
	col := make([]float64, len(rows))
	for j := range mean {
		mat.Col(col, j, data)
		mean[j] = stat.Mean(col, nil)
	}
	return mean
}

// toDense copies equally wide rows into a matrix. Short rows are zero padded.
func toDense(rows [][]float64) *mat.Dense {
	d := len(rows[0])
	data := mat.NewDense(len(rows), d, nil)
	for i, r := range rows {
		for j := 0; j < d && j < len(r); j++ {
			data.Set(i, j, r[j])
		}
	}
	return data
}
