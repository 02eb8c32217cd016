package feeder

import (
	"github.com/lucasjlepore/sporting/activity"
)

// Cycling synthesizes rides around power. FTP comes from the user's
// threshold, then the device session, then an estimate from the ride.
type Cycling struct{}

func (Cycling) Sport() activity.Sport { return activity.Cycling }

func (c Cycling) Compute(in Input) (*activity.Rows, error) {
	tl, err := normalizePoints(in, 1, false)
	if err != nil {
		return nil, computeFailure(activity.Cycling, in, "%w", err)
	}

	duration := sessionDuration(in.Session, tl)
	if duration <= 0 {
		return nil, computeFailure(activity.Cycling, in, "activity has no duration")
	}
	distance := sessionDistance(in.Session, tl)
	series, workKJ := powerSeries(tl.points)
	powers := values(tl.points, power)

	w := activity.Synthesized{
		UserID:          in.UserID,
		ActivityID:      in.ActivityID,
		Sport:           activity.Cycling,
		DateTS:          tl.start.Unix(),
		DurationS:       duration,
		DistanceM:       distance,
		AvgHeartRate:    firstPositive(in.Session.AvgHeartRate, positivePtr(average(values(tl.points, heartRate)))),
		MaxHeartRate:    firstPositive(in.Session.MaxHeartRate, positivePtr(maxValue(values(tl.points, heartRate)))),
		AvgCadence:      firstPositive(in.Session.AvgCadence, positivePtr(average(values(tl.points, cadence)))),
		AvgPowerW:       firstPositive(in.Session.AvgPowerW, positivePtr(average(powers))),
		MaxPowerW:       firstPositive(in.Session.MaxPowerW, positivePtr(maxValue(powers))),
		NormalizedPower: firstPositive(in.Session.NormalizedPower, positivePtr(round(normalizedPower(series), 1))),
		AscentM:         in.Session.AscentM,
		Calories:        in.Session.Calories,
		ThresholdSource: SourceUnavailable,
		PointCount:      len(tl.points),
	}
	if distance > 0 {
		w.AvgSpeedMPS = positivePtr(distance / duration)
	}
	if in.Session.WorkJ != nil && *in.Session.WorkJ > 0 {
		w.WorkKJ = floatPtr(round(*in.Session.WorkJ/1000.0, 1))
	} else {
		w.WorkKJ = positivePtr(round(workKJ, 1))
	}
	if w.AvgPowerW != nil && w.NormalizedPower != nil {
		w.VariabilityIndex = floatPtr(round(*w.NormalizedPower / *w.AvgPowerW, 3))
	}

	ftp, source := resolveFTP(in, series)
	w.ThresholdSource = source
	if ftp > 0 {
		w.ThresholdValue = floatPtr(round(ftp, 1))
		if w.NormalizedPower != nil {
			intensity := *w.NormalizedPower / ftp
			w.IntensityFactor = floatPtr(round(intensity, 3))
			w.StressScore = floatPtr(round(stress(duration, intensity), 1))
		}
	}

	baseline := 0.0
	if w.AvgPowerW != nil {
		baseline = *w.AvgPowerW
	}
	laps := c.laps(in, tl, baseline)
	w.LapCount = len(laps)
	w.Structure = describeStructure(laps, ftp)
	return &activity.Rows{Sport: activity.Cycling, Points: tl.points, Laps: laps, Workout: w}, nil
}

func resolveFTP(in Input, series []float64) (float64, string) {
	if in.Threshold != nil && in.Threshold.FTP() > 0 {
		return in.Threshold.FTP(), SourceUser
	}
	if p := in.Session.ThresholdPowerW; p != nil && *p > 0 {
		return *p, SourceDevice
	}
	if est := estimateFTP(series); est > 0 {
		return est, SourceEstimated
	}
	return 0, SourceUnavailable
}

func (Cycling) laps(in Input, tl timeline, sessionAvgPower float64) []activity.Lap {
	windows := lapWindows(in.Laps, tl.start)
	out := make([]activity.Lap, 0, len(in.Laps))
	for i, lap := range in.Laps {
		inLap := pointsIn(tl.points, windows[i])
		lapSeries, _ := powerSeries(inLap)
		lapPowers := values(inLap, power)
		row := activity.Lap{
			UserID:          in.UserID,
			ActivityID:      in.ActivityID,
			LapIndex:        i,
			StartTS:         tl.start.Unix() + int64(windows[i].start),
			DurationS:       lapDuration(lap),
			DistanceM:       lap.DistanceM,
			AvgHeartRate:    firstPositive(lap.AvgHeartRate, positivePtr(average(values(inLap, heartRate)))),
			MaxHeartRate:    firstPositive(lap.MaxHeartRate, positivePtr(maxValue(values(inLap, heartRate)))),
			AvgCadence:      firstPositive(lap.AvgCadence, positivePtr(average(values(inLap, cadence)))),
			AvgSpeedMPS:     firstPositive(lap.AvgSpeedMPS, positivePtr(average(values(inLap, speed)))),
			AvgPowerW:       firstPositive(lap.AvgPowerW, positivePtr(average(lapPowers))),
			MaxPowerW:       firstPositive(lap.MaxPowerW, positivePtr(maxValue(lapPowers))),
			NormalizedPower: firstPositive(lap.NormalizedPower, positivePtr(round(normalizedPower(lapSeries), 1))),
			AscentM:         lap.AscentM,
			Calories:        lap.Calories,
			Label:           "steady",
		}
		if !lap.StartTime.IsZero() {
			row.StartTS = lap.StartTime.Unix()
		}
		out = append(out, row)
	}
	labelPowerLaps(out, sessionAvgPower)
	return out
}

// labelPowerLaps marks laps as work, activation, recovery, warmup, cooldown,
// easy or steady relative to the session's average power.
func labelPowerLaps(laps []activity.Lap, sessionAvgPower float64) {
	if len(laps) == 0 {
		return
	}
	baseline := sessionAvgPower
	if baseline <= 0 {
		ps := make([]float64, 0, len(laps))
		for _, l := range laps {
			if p := lapPower(l); p > 0 {
				ps = append(ps, p)
			}
		}
		baseline = average(ps)
	}
	if baseline <= 0 {
		return
	}
	hard := baseline * 1.20
	easy := baseline * 0.90

	var work []int
	for i := range laps {
		p := lapPower(laps[i])
		if p <= 0 || laps[i].DurationS <= 0 {
			continue
		}
		if p >= hard {
			if laps[i].DurationS < 90 {
				laps[i].Label = "activation"
			} else {
				laps[i].Label = "work"
				work = append(work, i)
			}
			continue
		}
		if laps[i].DurationS >= 60 && p <= easy {
			laps[i].Label = "easy"
		}
	}

	for _, wi := range work {
		next := wi + 1
		if next >= len(laps) {
			continue
		}
		if p := lapPower(laps[next]); laps[next].DurationS >= 60 && p > 0 && p <= easy {
			laps[next].Label = "recovery"
		}
	}

	if len(work) == 0 {
		return
	}
	for i := 0; i < work[0]; i++ {
		if laps[i].Label == "easy" || i == 0 {
			laps[i].Label = "warmup"
		}
	}
	for i := work[len(work)-1] + 1; i < len(laps); i++ {
		if laps[i].Label == "recovery" {
			continue
		}
		if laps[i].Label == "easy" || lapPower(laps[i]) <= easy {
			laps[i].Label = "cooldown"
		}
	}
}
