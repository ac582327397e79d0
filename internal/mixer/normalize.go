package mixer

import (
	"fmt"
	"math"
)

// Policy selects how a track's normalization factor is derived.
type Policy string

const (
	PolicyNone       Policy = "none"
	PolicyPeak       Policy = "peak"
	PolicyThreeSigma Policy = "three-sigma"
)

// MaxSample is the largest representable int16 magnitude used as full scale.
const MaxSample = math.MaxInt16

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyNone, PolicyPeak, PolicyThreeSigma:
		return p, nil
	}
	return "", fmt.Errorf("unknown normalization policy %q", s)
}

// Factor returns the gain that brings samples toward target*MaxSample.
// Silent input, an empty slice, or PolicyNone yield 1.0.
func Factor(samples []int16, policy Policy, target float64) float64 {
	if len(samples) == 0 {
		return 1.0
	}
	var denom float64
	switch policy {
	case PolicyPeak:
		denom = float64(peak(samples))
	case PolicyThreeSigma:
		denom = 3 * stddev(samples)
	default:
		return 1.0
	}
	if denom == 0 || math.IsNaN(denom) {
		return 1.0
	}
	return target * MaxSample / denom
}

func peak(samples []int16) int {
	m := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

// stddev is the population standard deviation about the mean.
func stddev(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := sum / float64(len(samples))
	var sq float64
	for _, s := range samples {
		d := float64(s) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(samples)))
}
