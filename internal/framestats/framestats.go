// Package framestats computes per-axis amplitude statistics for a single
// vibration frame. All statistics are defined over one axis's sample slice;
// an empty or nil slice yields all-nil statistics rather than an error so a
// malformed axis never poisons its siblings.
package framestats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// AxisStats holds the statistic bundle for one (frame, axis) pair. Fields are
// pointers because every statistic is nullable in the feature mart: nil means
// "not computable", which is distinct from zero.
type AxisStats struct {
	RMS         *float64
	Peak        *float64
	MeanAbs     *float64
	Std         *float64
	CrestFactor *float64
}

// Compute derives the statistic bundle for one axis's samples.
//
// Std is the population standard deviation, not the Bessel-corrected sample
// deviation. CrestFactor is peak/rms and is nil when rms == 0: the ratio is
// undefined there, not zero and not an error.
func Compute(samples []float64) AxisStats {
	if len(samples) == 0 {
		return AxisStats{}
	}

	var sumSq float64
	var peak float64
	abs := make([]float64, len(samples))
	for i, v := range samples {
		sumSq += v * v
		a := math.Abs(v)
		abs[i] = a
		if a > peak {
			peak = a
		}
	}

	rms := math.Sqrt(sumSq / float64(len(samples)))
	meanAbs := stat.Mean(abs, nil)
	std := stat.PopStdDev(samples, nil)

	s := AxisStats{
		RMS:     &rms,
		Peak:    &peak,
		MeanAbs: &meanAbs,
		Std:     &std,
	}
	if rms > 0 {
		crest := peak / rms
		s.CrestFactor = &crest
	}
	return s
}
