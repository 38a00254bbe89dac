package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/platesim/internal/dynamo"
)

// GrowthRate fits ln|u|max = a + rate*t by least squares over the frames
// and returns rate in 1/s. A stable run stays near zero; a run beyond the
// timestep bound shows a large positive rate.
//
// Frames with zero or non-finite amplitude are skipped, so a blow-up that
// overflowed is measured up to its last finite frame.
func GrowthRate(frames []dynamo.Snapshot) (float64, error) {
	times := make([]float64, 0, len(frames))
	logs := make([]float64, 0, len(frames))
	for _, f := range frames {
		peak := f.Field.MaxAbs()
		if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
			continue
		}
		times = append(times, f.Time)
		logs = append(logs, math.Log(peak))
	}
	if len(times) < 2 {
		return 0, fmt.Errorf("%w: need two frames with finite amplitude, got %d", dynamo.ErrParameterBounds, len(times))
	}
	_, rate := stat.LinearRegression(times, logs, nil, false)
	return rate, nil
}
