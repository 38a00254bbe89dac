package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/platesim/internal/dynamo"
)

// MinSamples is the shortest series a spectrum is computed for.
const MinSamples = 8

// PowerSpectrum returns the one-sided power |X_k|^2 for k = 0..n/2 of the
// mean-removed, Hann-windowed series.
func PowerSpectrum(series []float64) []float64 {
	n := len(series)
	if n == 0 {
		return nil
	}

	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(n)

	windowed := make([]float64, n)
	for i, v := range series {
		w := 1.0
		if n > 1 {
			w = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		}
		windowed[i] = (v - mean) * w
	}

	spectrum := fft.FFTReal(windowed)
	ps := make([]float64, n/2+1)
	for k := range ps {
		a := cmplx.Abs(spectrum[k])
		ps[k] = a * a
	}
	return ps
}

// Frequencies returns the bin frequencies in Hz matching PowerSpectrum for
// n samples taken dt apart.
func Frequencies(n int, dt float64) []float64 {
	freqs := make([]float64, n/2+1)
	for k := range freqs {
		freqs[k] = float64(k) / (float64(n) * dt)
	}
	return freqs
}

// DominantFrequency returns the frequency in Hz of the strongest non-zero
// bin, refined by parabolic interpolation over its neighbours.
func DominantFrequency(series []float64, dt float64) (float64, error) {
	if len(series) < MinSamples {
		return 0, fmt.Errorf("%w: need at least %d samples, got %d", dynamo.ErrParameterBounds, MinSamples, len(series))
	}
	if dt <= 0 {
		return 0, fmt.Errorf("%w: sample spacing must be positive, got %g", dynamo.ErrParameterBounds, dt)
	}

	ps := PowerSpectrum(series)
	peak := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[peak] {
			peak = k
		}
	}
	if ps[peak] == 0 {
		return 0, fmt.Errorf("%w: series has no oscillation", dynamo.ErrParameterBounds)
	}

	offset := 0.0
	if peak < len(ps)-1 {
		a, b, c := math.Sqrt(ps[peak-1]), math.Sqrt(ps[peak]), math.Sqrt(ps[peak+1])
		if den := a - 2*b + c; den != 0 {
			offset = 0.5 * (a - c) / den
		}
	}
	return (float64(peak) + offset) / (float64(len(series)) * dt), nil
}
