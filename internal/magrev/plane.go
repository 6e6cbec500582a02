package magrev

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RotationBasis is an orthonormal 2D basis spanning the estimated rotation
// plane, plus the plane normal and the covariance eigenvalues sorted
// descending. Planarity = (λ1+λ2)/(λ1+λ2+λ3) scores how well the windowed
// samples lie in the plane.
type RotationBasis struct {
	Axis1       Vec3
	Axis2       Vec3
	Normal      Vec3
	Eigenvalues [3]float64
	Planarity   float64
}

// DefaultBasis returns the synthetic XY fallback plane used before the
// first successful estimate.
func DefaultBasis() RotationBasis {
	return RotationBasis{
		Axis1:  Vec3{X: 1},
		Axis2:  Vec3{Y: 1},
		Normal: Vec3{Z: 1},
	}
}

// PlaneEstimator discovers the instantaneous rotation plane from a window
// of corrected samples via eigendecomposition of their covariance matrix.
type PlaneEstimator struct {
	minSamples int
}

// NewPlaneEstimator creates an estimator that requires at least minSamples
// windowed samples before producing a basis.
func NewPlaneEstimator(minSamples int) *PlaneEstimator {
	if minSamples < 3 {
		minSamples = 3
	}
	return &PlaneEstimator{minSamples: minSamples}
}

// Estimate computes the principal plane of the given samples. It returns
// ok=false when the window is below the minimum fill or when the
// eigensolver fails to converge; the caller falls back to the previous or
// default basis rather than failing the pipeline.
func (e *PlaneEstimator) Estimate(samples []Vec3) (RotationBasis, bool) {
	if len(samples) < e.minSamples {
		return RotationBasis{}, false
	}

	data := make([]float64, 0, len(samples)*3)
	for _, s := range samples {
		data = append(data, s.X, s.Y, s.Z)
	}
	obs := mat.NewDense(len(samples), 3, data)

	// CovarianceMatrix mean-centers internally, independent of the
	// baseline correction upstream.
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, obs, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return RotationBasis{}, false
	}

	// gonum reports eigenvalues in ascending order; the basis wants them
	// descending, so the two largest are columns 2 and 1.
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	axis1 := columnVec(&vecs, 2).Normalize()
	axis2 := columnVec(&vecs, 1).Normalize()
	normal := axis1.Cross(axis2).Normalize()

	if !axis1.IsFinite() || !axis2.IsFinite() || !normal.IsFinite() {
		return RotationBasis{}, false
	}

	basis := RotationBasis{
		Axis1:       axis1,
		Axis2:       axis2,
		Normal:      normal,
		Eigenvalues: [3]float64{vals[2], vals[1], vals[0]},
	}
	basis.Planarity = planarity(basis.Eigenvalues)
	return basis, true
}

// planarity derives the [0,1] quality score from descending eigenvalues.
func planarity(eigenvalues [3]float64) float64 {
	total := eigenvalues[0] + eigenvalues[1] + eigenvalues[2]
	if total <= 0 {
		return 0
	}
	p := (eigenvalues[0] + eigenvalues[1]) / total
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func columnVec(m *mat.Dense, col int) Vec3 {
	return Vec3{
		X: m.At(0, col),
		Y: m.At(1, col),
		Z: m.At(2, col),
	}
}
