package metric

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Interval holds a bootstrapped confidence interval for a statistic
type Interval struct {
	Lower  float64
	Upper  float64
	Mean   float64
	StdDev float64
}

// Bootstrap resamples values with replacement and applies measure to each
// sample, returning the confidence interval of the resulting distribution.
// confidence is the two-sided level, e.g. 0.95.
func Bootstrap(values []float64, measure func([]float64) float64, sampleSize int, confidence float64) Interval {
	if len(values) == 0 || sampleSize <= 0 {
		return Interval{}
	}

	measures := make([]float64, 0, sampleSize)
	for _, sample := range resample(values, sampleSize) {
		measures = append(measures, measure(sample))
	}
	sort.Float64s(measures)

	mean, stdDev := stat.MeanStdDev(measures, nil)
	tail := 1 - confidence

	return Interval{
		Lower:  stat.Quantile(tail/2, stat.LinInterp, measures, nil),
		Upper:  stat.Quantile(1-tail/2, stat.LinInterp, measures, nil),
		Mean:   mean,
		StdDev: stdDev,
	}
}

// resample draws sampleSize samples of len(values) with replacement
func resample(values []float64, sampleSize int) [][]float64 {
	samples := make([][]float64, sampleSize)
	for i := range samples {
		sample := make([]float64, len(values))
		for j := range sample {
			sample[j] = lo.Sample(values)
		}
		samples[i] = sample
	}
	return samples
}
