package stats

// RegressionLine fits y = a + b*x by least squares as points arrive.
// Co-moments are updated around the running means, so the slope stays
// accurate for large timestamps.
type RegressionLine struct {
	n        int
	meanX    float64
	meanY    float64
	cxx      float64
	cxy      float64
	firstX   float64
	distinct bool
}

// AddPoint adds the pair (x, y).
func (r *RegressionLine) AddPoint(x, y float64) {
	r.n++
	if r.n == 1 {
		r.firstX = x
	} else if x != r.firstX {
		r.distinct = true
	}

	dx := x - r.meanX
	r.meanX += dx / float64(r.n)
	r.meanY += (y - r.meanY) / float64(r.n)
	r.cxx += dx * (x - r.meanX)
	r.cxy += dx * (y - r.meanY)
}

// PointCount returns the number of points added.
func (r *RegressionLine) PointCount() int {
	return r.n
}

// HasPoints reports whether at least one point was added.
func (r *RegressionLine) HasPoints() bool {
	return r.n > 0
}

// HasSlope reports whether at least two distinct x values were added.
func (r *RegressionLine) HasSlope() bool {
	return r.distinct && r.cxx > 0
}

// Slope returns the fitted slope. ok is false while fewer than two distinct
// x values are known.
func (r *RegressionLine) Slope() (slope float64, ok bool) {
	if !r.HasSlope() {
		return 0, false
	}
	return r.cxy / r.cxx, true
}

// Intercept returns the fitted y intercept.
func (r *RegressionLine) Intercept() (float64, bool) {
	slope, ok := r.Slope()
	if !ok {
		return 0, false
	}
	return r.meanY - slope*r.meanX, true
}

// Reset discards all points.
func (r *RegressionLine) Reset() {
	*r = RegressionLine{}
}
