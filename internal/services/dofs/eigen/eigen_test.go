package eigen

import (
	"math"
	"math/rand"
	"testing"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	"gonum.org/v1/gonum/mat"
)

func TestEpsilonIsMachineEpsilon(t *testing.T) {
	if got := math.Nextafter(1, 2) - 1; got != Epsilon {
		t.Fatalf("epsilon = %v, want %v", Epsilon, got)
	}
}

func TestDecomposeDescending(t *testing.T) {
	sym := mat.NewSymDense(3, []float64{
		1, 0, 0,
		0, 3, 0,
		0, 0, 2,
	})
	values, vectors, err := Decompose(sym)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	want := []float64{3, 2, 1}
	for i := range want {
		if math.Abs(values[i]-want[i]) > 1e-12 {
			t.Fatalf("values = %v, want %v", values, want)
		}
	}
	// Column j must be the unit axis of the j-th largest diagonal entry.
	axes := []int{1, 2, 0}
	for j, axis := range axes {
		if got := math.Abs(vectors.At(axis, j)); math.Abs(got-1) > 1e-12 {
			t.Fatalf("column %d = %v, want axis %d", j, mat.Formatted(vectors.ColView(j).T()), axis)
		}
	}
}

func TestDecomposeColumnsAreEigenvectors(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vectors := randomDense(rng, 12, 4)
	sigma, err := Covariance(vectors)
	if err != nil {
		t.Fatalf("covariance: %v", err)
	}
	values, eigvecs, err := Decompose(sigma)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			t.Fatalf("values not descending: %v", values)
		}
	}
	for j, lambda := range values {
		col := eigvecs.ColView(j)
		var av mat.VecDense
		av.MulVec(sigma, col)
		var lv mat.VecDense
		lv.ScaleVec(lambda, col)
		if !mat.EqualApprox(&av, &lv, 1e-10) {
			t.Fatalf("column %d is not an eigenvector of value %v", j, lambda)
		}
	}
}

func TestCovarianceOfIdenticalVectorsIsRankOne(t *testing.T) {
	u := []float64{0.6, 0.8}
	vectors := mat.NewDense(5, 2, nil)
	for i := 0; i < 5; i++ {
		vectors.SetRow(i, u)
	}
	sigma, err := Covariance(vectors)
	if err != nil {
		t.Fatalf("covariance: %v", err)
	}
	values, eigvecs, err := Decompose(sigma)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if math.Abs(values[0]-1) > 1e-12 {
		t.Fatalf("top eigenvalue = %v, want 1", values[0])
	}
	if math.Abs(values[1]) > 1e-12 {
		t.Fatalf("second eigenvalue = %v, want about epsilon", values[1])
	}
	dot := eigvecs.At(0, 0)*u[0] + eigvecs.At(1, 0)*u[1]
	if math.Abs(math.Abs(dot)-1) > 1e-12 {
		t.Fatalf("top eigenvector %v not aligned with %v", mat.Formatted(eigvecs.ColView(0).T()), u)
	}
}

func TestCovarianceScalesQuadratically(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	vectors := randomDense(rng, 6, 3)
	const c = 3.5

	var scaled mat.Dense
	scaled.Scale(c, vectors)

	base, err := Covariance(vectors)
	if err != nil {
		t.Fatalf("covariance: %v", err)
	}
	got, err := Covariance(&scaled)
	if err != nil {
		t.Fatalf("scaled covariance: %v", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b, g := base.At(i, j), got.At(i, j)
			if i == j {
				b -= Epsilon
				g -= Epsilon
			}
			if math.Abs(g-c*c*b) > 1e-9 {
				t.Fatalf("entry (%d,%d) = %v, want %v", i, j, g, c*c*b)
			}
		}
	}
}

func TestTopEigenvectorRotationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	vectors := randomDense(rng, 20, 3)
	// Stretch one axis so the top eigenvalue is well separated.
	for i := 0; i < 20; i++ {
		vectors.Set(i, 0, vectors.At(i, 0)*4)
	}
	q := rotation(0.7, 1.1)

	// Rotating every row vector by Q is V Q^T.
	var rotated mat.Dense
	rotated.Mul(vectors, q.T())

	_, before, err := Decompose(mustCovariance(t, vectors))
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	_, after, err := Decompose(mustCovariance(t, &rotated))
	if err != nil {
		t.Fatalf("decompose rotated: %v", err)
	}

	var expected mat.VecDense
	expected.MulVec(q, before.ColView(0))
	dot := mat.Dot(&expected, after.ColView(0))
	if math.Abs(math.Abs(dot)-1) > 1e-9 {
		t.Fatalf("rotated top eigenvector differs beyond sign: |dot| = %v", math.Abs(dot))
	}
}

func TestCovarianceRejectsBadInput(t *testing.T) {
	if _, err := Covariance(&mat.Dense{}); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("empty input err = %v, want INVALID_INPUT", err)
	}
	nan := mat.NewDense(1, 2, []float64{1, math.NaN()})
	if _, err := Covariance(nan); !apperrors.HasCode(err, apperrors.CodeNumericDegenerate) {
		t.Fatalf("nan input err = %v, want NUMERIC_DEGENERATE", err)
	}
}

func TestDecomposeRejectsNonFinite(t *testing.T) {
	sym := mat.NewSymDense(2, []float64{1, math.Inf(1), math.Inf(1), 1})
	if _, _, err := Decompose(sym); !apperrors.HasCode(err, apperrors.CodeNumericDegenerate) {
		t.Fatalf("err = %v, want NUMERIC_DEGENERATE", err)
	}
}

func TestNormalize(t *testing.T) {
	rows := mat.NewDense(3, 2, []float64{
		3, 4,
		0, 0,
		-2, 0,
	})
	got := Normalize(rows)
	want := mat.NewDense(3, 2, []float64{
		0.6, 0.8,
		0, 0,
		-1, 0,
	})
	if !mat.EqualApprox(got, want, 1e-15) {
		t.Fatalf("normalize = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
	if rows.At(0, 0) != 3 {
		t.Fatal("expected input to stay untouched")
	}
}

func randomDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func mustCovariance(t *testing.T, vectors *mat.Dense) *mat.SymDense {
	t.Helper()
	sigma, err := Covariance(vectors)
	if err != nil {
		t.Fatalf("covariance: %v", err)
	}
	return sigma
}

// rotation returns Rz(a) * Rx(b).
func rotation(a, b float64) *mat.Dense {
	sa, ca := math.Sincos(a)
	sb, cb := math.Sincos(b)
	rz := mat.NewDense(3, 3, []float64{
		ca, -sa, 0,
		sa, ca, 0,
		0, 0, 1,
	})
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cb, -sb,
		0, sb, cb,
	})
	var q mat.Dense
	q.Mul(rz, rx)
	return &q
}
