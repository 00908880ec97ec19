// Package eigen builds covariance matrices from predicted vectors and
// decomposes them into degrees of freedom ordered by descending eigenvalue.
package eigen

import (
	"math"
	"slices"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	"gonum.org/v1/gonum/mat"
)

// Epsilon is float64 machine epsilon. It is added once to the diagonal of
// every covariance matrix.
const Epsilon = 0x1p-52

// Covariance returns V^T V / m + Epsilon*I for the m x n matrix of row
// vectors V.
func Covariance(vectors *mat.Dense) (*mat.SymDense, error) {
	if vectors == nil || vectors.IsEmpty() {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidInput,
			"covariance needs at least one vector",
			map[string]string{"Reason": "no vectors"})
	}
	m, n := vectors.Dims()
	if !finite(vectors) {
		return nil, apperrors.WithMetadata(apperrors.CodeNumericDegenerate,
			"covariance input is not finite",
			map[string]string{"Reason": "non-finite vector component"})
	}

	sigma := mat.NewSymDense(n, nil)
	sigma.SymOuterK(1/float64(m), vectors.T())
	for i := 0; i < n; i++ {
		sigma.SetSym(i, i, sigma.At(i, i)+Epsilon)
	}
	return sigma, nil
}

// Decompose factorizes a symmetric matrix. Values are returned in descending
// order and column j of vectors is the eigenvector of values[j].
func Decompose(sym mat.Symmetric) ([]float64, *mat.Dense, error) {
	n := sym.SymmetricDim()
	if n == 0 {
		return nil, nil, apperrors.WithMetadata(apperrors.CodeInvalidInput,
			"cannot decompose an empty matrix",
			map[string]string{"Reason": "empty matrix"})
	}
	if !finite(sym) {
		return nil, nil, apperrors.WithMetadata(apperrors.CodeNumericDegenerate,
			"matrix is not finite",
			map[string]string{"Reason": "non-finite matrix entry"})
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, nil, apperrors.WithMetadata(apperrors.CodeNumericDegenerate,
			"eigendecomposition did not converge",
			map[string]string{"Reason": "factorization failed"})
	}
	values := es.Values(nil)
	var ascending mat.Dense
	es.VectorsTo(&ascending)

	// EigenSym orders ascending.
	slices.Reverse(values)
	vectors := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			vectors.Set(i, j, ascending.At(i, n-1-j))
		}
	}
	return values, vectors, nil
}

// Normalize returns a copy of rows with every row scaled to unit L2 norm.
// Zero rows stay zero.
func Normalize(rows *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(rows)
	m, _ := out.Dims()
	for i := 0; i < m; i++ {
		row := out.RowView(i).(*mat.VecDense)
		norm := mat.Norm(row, 2)
		if norm == 0 {
			continue
		}
		row.ScaleVec(1/norm, row)
	}
	return out
}

func finite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
