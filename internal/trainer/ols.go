package trainer

import (
	"fmt"
	"math"

	"ModelRetrainer/internal/domain"
)

const pivotEpsilon = 1e-12

// fit solves the least squares problem on mean-centered features, which keeps
// the normal equations well conditioned when features have large offsets.
func fit(records []domain.Record) (domain.ModelArtifact, error) {
	n := float64(len(records))
	p := records[0].Width()

	xMean := make([]float64, p)
	var yMean float64
	for _, r := range records {
		for j, x := range r.Features {
			xMean[j] += x
		}
		yMean += r.Label
	}
	for j := range xMean {
		xMean[j] /= n
	}
	yMean /= n

	// Augmented matrix [XᵀX | Xᵀy] over centered columns.
	a := make([][]float64, p)
	for i := range a {
		a[i] = make([]float64, p+1)
	}
	for _, r := range records {
		dy := r.Label - yMean
		for i := 0; i < p; i++ {
			di := r.Features[i] - xMean[i]
			for j := 0; j < p; j++ {
				a[i][j] += di * (r.Features[j] - xMean[j])
			}
			a[i][p] += di * dy
		}
	}

	coef, err := solve(a)
	if err != nil {
		return domain.ModelArtifact{}, err
	}

	intercept := yMean
	for j, c := range coef {
		intercept -= c * xMean[j]
	}

	if !finite(intercept) || !finite(coef...) {
		return domain.ModelArtifact{}, &domain.TrainingError{Reason: "fit produced non-finite coefficients"}
	}

	return domain.ModelArtifact{
		Intercept:    intercept,
		Coefficients: coef,
		TrainedOn:    len(records),
	}, nil
}

// solve runs Gaussian elimination with partial pivoting on an augmented
// p x (p+1) matrix, in place.
func solve(a [][]float64) ([]float64, error) {
	p := len(a)

	var scale float64
	for i := 0; i < p; i++ {
		scale = math.Max(scale, math.Abs(a[i][i]))
	}
	if scale == 0 {
		return nil, &domain.TrainingError{Reason: "features have zero variance"}
	}

	for col := 0; col < p; col++ {
		pivot := col
		for row := col + 1; row < p; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) <= pivotEpsilon*scale {
			return nil, &domain.TrainingError{Reason: fmt.Sprintf("singular design matrix at feature %d", col)}
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := col + 1; row < p; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k <= p; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	x := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		sum := a[i][p]
		for j := i + 1; j < p; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
