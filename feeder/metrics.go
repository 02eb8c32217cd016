package feeder

import (
	"math"

	"github.com/lucasjlepore/sporting/activity"
)

const minRunningSpeedMPS = 0.5

func paceFromSpeed(speed *float64) *float64 {
	if speed == nil || *speed < minRunningSpeedMPS {
		return nil
	}
	return floatPtr(1000.0 / *speed)
}

// values collects the non-nil samples of one field.
func values(points []activity.Point, field func(activity.Point) *float64) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if v := field(p); v != nil && isFinite(*v) {
			out = append(out, *v)
		}
	}
	return out
}

func heartRate(p activity.Point) *float64 { return p.HeartRate }
func cadence(p activity.Point) *float64   { return p.Cadence }
func power(p activity.Point) *float64     { return p.PowerW }
func speed(p activity.Point) *float64     { return p.SpeedMPS }

// powerSeries rebuilds a 1 Hz power series: short recording gaps are filled
// with the previous sample and work is integrated over gaps of up to 5 s.
func powerSeries(points []activity.Point) (series []float64, workKJ float64) {
	var (
		lastTS    int64
		lastPower float64
		havePower bool
		joules    float64
	)
	for _, p := range points {
		if p.PowerW == nil || !isFinite(*p.PowerW) {
			continue
		}
		pw := *p.PowerW
		if havePower {
			delta := float64(p.Timestamp - lastTS)
			if delta > 0 && delta <= 5 {
				joules += lastPower * delta
			}
			missing := int(math.Round(delta)) - 1
			if missing > 0 && missing <= 30 {
				for i := 0; i < missing; i++ {
					series = append(series, lastPower)
				}
			}
		}
		series = append(series, pw)
		lastTS, lastPower, havePower = p.Timestamp, pw, true
	}
	if joules == 0 {
		for _, v := range series {
			joules += v
		}
	}
	return series, joules / 1000.0
}

// normalizedPower is the fourth root of the mean fourth power of the 30 s
// rolling average.
func normalizedPower(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	const window = 30
	if len(samples) < window {
		return average(samples)
	}

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += samples[i]
	}
	total := 0.0
	count := 0
	for i := window - 1; i < len(samples); i++ {
		if i >= window {
			sum += samples[i] - samples[i-window]
		}
		total += math.Pow(sum/window, 4)
		count++
	}
	return math.Pow(total/float64(count), 0.25)
}

func bestRollingAverage(samples []float64, seconds int) float64 {
	if len(samples) == 0 || seconds <= 0 {
		return 0
	}
	if len(samples) < seconds {
		return average(samples)
	}
	sum := 0.0
	for i := 0; i < seconds; i++ {
		sum += samples[i]
	}
	best := sum / float64(seconds)
	for i := seconds; i < len(samples); i++ {
		sum += samples[i] - samples[i-seconds]
		if cur := sum / float64(seconds); cur > best {
			best = cur
		}
	}
	return best
}

// estimateFTP is 95% of the best 20 minute power. Shorter rides cannot
// produce an estimate.
func estimateFTP(samples []float64) float64 {
	if len(samples) < 20*60 {
		return 0
	}
	return bestRollingAverage(samples, 20*60) * 0.95
}

func average(vs []float64) float64 {
	total := 0.0
	count := 0
	for _, v := range vs {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func maxValue(vs []float64) float64 {
	max := 0.0
	found := false
	for _, v := range vs {
		if !isFinite(v) {
			continue
		}
		if !found || v > max {
			max, found = v, true
		}
	}
	return max
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func floatPtr(v float64) *float64 {
	return &v
}

// positivePtr returns nil for values that are not strictly positive.
func positivePtr(v float64) *float64 {
	if !isFinite(v) || v <= 0 {
		return nil
	}
	return &v
}

// firstPositive returns the first source that carries a positive value.
func firstPositive(sources ...*float64) *float64 {
	for _, s := range sources {
		if s != nil && isFinite(*s) && *s > 0 {
			return floatPtr(*s)
		}
	}
	return nil
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
