// Package stats provides incremental statistics used by the model aggregator.
package stats

import "math"

// Accumulator keeps a running count, extrema, sum and sum of squares of a
// series of values. Values can only be added, never removed.
type Accumulator struct {
	n     int
	min   float64
	max   float64
	sum   float64
	sumSq float64

	// Welford running mean and squared deviation, used for the deviation so
	// large offsets do not cancel out.
	mean float64
	m2   float64
}

// Add folds x into the accumulator.
func (a *Accumulator) Add(x float64) {
	a.n++
	if a.n == 1 {
		a.min, a.max = x, x
	} else {
		a.min = math.Min(a.min, x)
		a.max = math.Max(a.max, x)
	}
	a.sum += x
	a.sumSq += x * x

	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

// N returns the number of values added.
func (a *Accumulator) N() int {
	return a.n
}

// Min returns the smallest value, or 0 when empty.
func (a *Accumulator) Min() float64 {
	return a.min
}

// Max returns the largest value, or 0 when empty.
func (a *Accumulator) Max() float64 {
	return a.max
}

// Sum returns the sum of all values.
func (a *Accumulator) Sum() float64 {
	return a.sum
}

// SumOfSquares returns the sum of the squared values.
func (a *Accumulator) SumOfSquares() float64 {
	return a.sumSq
}

// Mean returns the arithmetic mean, or 0 when empty.
func (a *Accumulator) Mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.mean
}

// StdDev returns the population standard deviation, or 0 when empty.
func (a *Accumulator) StdDev() float64 {
	if a.n == 0 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n))
}

// Snapshot is a serializable view of an Accumulator.
type Snapshot struct {
	N      int     `json:"n"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// Snapshot returns the current values.
func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{
		N:      a.n,
		Min:    a.min,
		Max:    a.max,
		Sum:    a.sum,
		Mean:   a.Mean(),
		StdDev: a.StdDev(),
	}
}
