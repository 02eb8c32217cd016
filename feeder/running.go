package feeder

import (
	"github.com/lucasjlepore/sporting/activity"
)

// Running synthesizes runs around pace. Device cadence is reported in
// strides per minute and stored as steps per minute.
type Running struct{}

func (Running) Sport() activity.Sport { return activity.Running }

// Lap labels are relative to the activity pace: 5% faster is fast, 5% slower
// is easy.
const paceBand = 0.05

func (r Running) Compute(in Input) (*activity.Rows, error) {
	tl, err := normalizePoints(in, 2, true)
	if err != nil {
		return nil, computeFailure(activity.Running, in, "%w", err)
	}

	duration := sessionDuration(in.Session, tl)
	if duration <= 0 {
		return nil, computeFailure(activity.Running, in, "activity has no duration")
	}
	distance := sessionDistance(in.Session, tl)

	w := activity.Synthesized{
		UserID:          in.UserID,
		ActivityID:      in.ActivityID,
		Sport:           activity.Running,
		DateTS:          tl.start.Unix(),
		DurationS:       duration,
		DistanceM:       distance,
		AvgHeartRate:    firstPositive(in.Session.AvgHeartRate, positivePtr(average(values(tl.points, heartRate)))),
		MaxHeartRate:    firstPositive(in.Session.MaxHeartRate, positivePtr(maxValue(values(tl.points, heartRate)))),
		AvgCadence:      positivePtr(average(values(tl.points, cadence))),
		AscentM:         in.Session.AscentM,
		Calories:        in.Session.Calories,
		ThresholdSource: SourceUnavailable,
		PointCount:      len(tl.points),
	}
	if distance > 0 {
		w.AvgSpeedMPS = positivePtr(distance / duration)
		w.AvgPaceSPerKm = positivePtr(duration / (distance / 1000.0))
	}

	if in.Threshold != nil && in.Threshold.Pace() > 0 && w.AvgPaceSPerKm != nil {
		pace := in.Threshold.Pace()
		intensity := pace / *w.AvgPaceSPerKm
		w.ThresholdValue = floatPtr(pace)
		w.ThresholdSource = SourceUser
		w.IntensityFactor = floatPtr(round(intensity, 3))
		w.StressScore = floatPtr(round(stress(duration, intensity), 1))
	}

	laps := r.laps(in, tl, w.AvgPaceSPerKm)
	w.LapCount = len(laps)
	return &activity.Rows{Sport: activity.Running, Points: tl.points, Laps: laps, Workout: w}, nil
}

func (Running) laps(in Input, tl timeline, activityPace *float64) []activity.Lap {
	windows := lapWindows(in.Laps, tl.start)
	out := make([]activity.Lap, 0, len(in.Laps))
	for i, lap := range in.Laps {
		inLap := pointsIn(tl.points, windows[i])
		duration := lapDuration(lap)
		row := activity.Lap{
			UserID:       in.UserID,
			ActivityID:   in.ActivityID,
			LapIndex:     i,
			StartTS:      tl.start.Unix() + int64(windows[i].start),
			DurationS:    duration,
			DistanceM:    lap.DistanceM,
			AvgHeartRate: firstPositive(lap.AvgHeartRate, positivePtr(average(values(inLap, heartRate)))),
			MaxHeartRate: firstPositive(lap.MaxHeartRate, positivePtr(maxValue(values(inLap, heartRate)))),
			AvgCadence:   positivePtr(average(values(inLap, cadence))),
			AvgSpeedMPS:  firstPositive(lap.AvgSpeedMPS, positivePtr(average(values(inLap, speed)))),
			AscentM:      lap.AscentM,
			Calories:     lap.Calories,
			Label:        "steady",
		}
		if !lap.StartTime.IsZero() {
			row.StartTS = lap.StartTime.Unix()
		}
		if lap.DistanceM > 0 && duration > 0 {
			row.PaceSPerKm = floatPtr(duration / (lap.DistanceM / 1000.0))
		}
		row.Label = paceLabel(row.PaceSPerKm, activityPace)
		out = append(out, row)
	}
	return out
}

func paceLabel(lap, activityPace *float64) string {
	if lap == nil || activityPace == nil {
		return "steady"
	}
	switch {
	case *lap < *activityPace*(1-paceBand):
		return "fast"
	case *lap > *activityPace*(1+paceBand):
		return "easy"
	default:
		return "steady"
	}
}
