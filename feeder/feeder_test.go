package feeder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/fitcodec/fitcodectest"
	"github.com/lucasjlepore/sporting/threshold"
)

var newYear = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func decodeInput(t *testing.T, a fitcodectest.Activity, userID int64) Input {
	t.Helper()
	act, err := fitcodec.NewReader().DecodeActivity(fitcodectest.MustBuild(t, a))
	require.NoError(t, err)
	first, ok := FirstTimestamp(act.Points)
	require.True(t, ok)
	return Input{
		UserID:     userID,
		ActivityID: activity.DeriveID(first),
		Session:    act.Sessions[0],
		Points:     act.Points,
		Laps:       act.Laps,
	}
}

func ptr(v float64) *float64 { return &v }

func TestForDispatch(t *testing.T) {
	f, err := For(activity.Running)
	require.NoError(t, err)
	assert.Equal(t, activity.Running, f.Sport())

	f, err = For(activity.Cycling)
	require.NoError(t, err)
	assert.Equal(t, activity.Cycling, f.Sport())

	f, err = For(activity.Sport(42))
	assert.Nil(t, f)
	var unsupported *activity.UnsupportedSportError
	assert.True(t, errors.As(err, &unsupported))
}

func TestRunningCompute(t *testing.T) {
	in := decodeInput(t, fitcodectest.Running(newYear, 1200), 7)
	in.Threshold = &threshold.Threshold{UserID: 7, Date: "2023-12-01", ThresholdPaceSPerKm: ptr(300)}

	rows, err := Running{}.Compute(in)
	require.NoError(t, err)

	w := rows.Workout
	assert.Equal(t, int64(1704067200), w.ActivityID)
	assert.Equal(t, int64(7), w.UserID)
	assert.Equal(t, activity.Running, w.Sport)
	assert.Equal(t, int64(1704067200), w.DateTS)
	assert.InDelta(t, 1200.0, w.DurationS, 0.001)
	assert.InDelta(t, 3.5*1199, w.DistanceM, 0.01)

	wantPace := 1200.0 / (3.5 * 1199 / 1000.0)
	require.NotNil(t, w.AvgPaceSPerKm)
	assert.InDelta(t, wantPace, *w.AvgPaceSPerKm, 0.01)
	require.NotNil(t, w.IntensityFactor)
	assert.InDelta(t, 300.0/wantPace, *w.IntensityFactor, 0.001)
	require.NotNil(t, w.StressScore)
	assert.InDelta(t, (1200.0/3600)*(300/wantPace)*(300/wantPace)*100, *w.StressScore, 0.1)
	assert.Equal(t, SourceUser, w.ThresholdSource)

	require.NotNil(t, w.AvgCadence)
	assert.InDelta(t, 176.0, *w.AvgCadence, 0.001)
	require.NotNil(t, w.AvgHeartRate)
	assert.Equal(t, 150.0, *w.AvgHeartRate)

	assert.Len(t, rows.Points, 1200)
	assert.Equal(t, 1200, w.PointCount)
	require.Len(t, rows.Laps, 4)
	assert.Equal(t, 4, w.LapCount)
	for i, lap := range rows.Laps {
		assert.Equal(t, i, lap.LapIndex)
		assert.Equal(t, "steady", lap.Label)
		require.NotNil(t, lap.PaceSPerKm)
	}
	assert.Equal(t, int64(1704067200+300), rows.Laps[1].StartTS)

	p := rows.Points[100]
	require.NotNil(t, p.PaceSPerKm)
	assert.InDelta(t, 1000/3.5, *p.PaceSPerKm, 0.01)
	assert.Equal(t, 100.0, p.ElapsedS)
	require.NotNil(t, rows.Points[0].PaceSPerKm)
	assert.InDelta(t, 1000/3.5, *rows.Points[0].PaceSPerKm, 0.01)
}

func TestRunningPaceNeedsMovingSpeed(t *testing.T) {
	a := fitcodectest.Running(newYear, 600)
	a.SpeedMPS = func(i int) float64 {
		if i < 10 {
			return 0.3
		}
		return 4
	}
	rows, err := Running{}.Compute(decodeInput(t, a, 7))
	require.NoError(t, err)

	assert.Nil(t, rows.Points[0].PaceSPerKm)
	assert.Nil(t, rows.Points[9].PaceSPerKm)
	require.NotNil(t, rows.Points[10].PaceSPerKm)
	assert.InDelta(t, 250.0, *rows.Points[10].PaceSPerKm, 0.01)
}

func TestRunningWithoutThreshold(t *testing.T) {
	rows, err := Running{}.Compute(decodeInput(t, fitcodectest.Running(newYear, 600), 1))
	require.NoError(t, err)
	assert.Nil(t, rows.Workout.IntensityFactor)
	assert.Nil(t, rows.Workout.StressScore)
	assert.Equal(t, SourceUnavailable, rows.Workout.ThresholdSource)
}

func TestCyclingCompute(t *testing.T) {
	in := decodeInput(t, fitcodectest.Cycling(newYear, 1800), 3)

	rows, err := Cycling{}.Compute(in)
	require.NoError(t, err)
	w := rows.Workout

	require.NotNil(t, w.AvgPowerW)
	assert.Equal(t, 250.0, *w.AvgPowerW)
	require.NotNil(t, w.NormalizedPower)
	assert.Greater(t, *w.NormalizedPower, 250.0)
	assert.Less(t, *w.NormalizedPower, 300.0)
	require.NotNil(t, w.VariabilityIndex)
	assert.Greater(t, *w.VariabilityIndex, 1.0)
	require.NotNil(t, w.WorkKJ)
	assert.InDelta(t, 450.0, *w.WorkKJ, 1.0)

	assert.Equal(t, SourceEstimated, w.ThresholdSource)
	require.NotNil(t, w.ThresholdValue)
	assert.InDelta(t, 237.5, *w.ThresholdValue, 0.1)
	require.NotNil(t, w.IntensityFactor)
	assert.InDelta(t, *w.NormalizedPower/237.5, *w.IntensityFactor, 0.001)

	labels := make([]string, 0, len(rows.Laps))
	for _, l := range rows.Laps {
		labels = append(labels, l.Label)
	}
	assert.Equal(t, []string{"warmup", "work", "recovery", "work", "recovery", "work"}, labels)
}

func TestCyclingPrefersUserFTP(t *testing.T) {
	in := decodeInput(t, fitcodectest.Cycling(newYear, 1800), 3)
	in.Threshold = &threshold.Threshold{UserID: 3, Date: "2024-01-01", FTPWatts: ptr(250)}

	rows, err := Cycling{}.Compute(in)
	require.NoError(t, err)
	w := rows.Workout
	assert.Equal(t, SourceUser, w.ThresholdSource)
	assert.Equal(t, 250.0, *w.ThresholdValue)
	assert.InDelta(t, round(*w.NormalizedPower/250, 3), *w.IntensityFactor, 1e-9)
	assert.InDelta(t, round(0.5*(*w.NormalizedPower/250)*(*w.NormalizedPower/250)*100, 1), *w.StressScore, 1e-9)
}

func TestComputeFailsWithoutTimestamps(t *testing.T) {
	in := Input{
		UserID:     1,
		ActivityID: 99,
		Points:     []fitcodec.Point{{HeartRate: ptr(120)}},
		Laps:       []fitcodec.Lap{{TimerS: 10}},
	}
	for _, f := range []Feeder{Running{}, Cycling{}} {
		rows, err := f.Compute(in)
		assert.Nil(t, rows)
		var failure *ComputeFailure
		require.True(t, errors.As(err, &failure))
		assert.Equal(t, StageCompute, failure.Stage)
		assert.Equal(t, int64(99), failure.ActivityID)
		assert.Equal(t, f.Sport(), failure.Sport)
	}
}

func TestNormalizedPowerSteadyEqualsAverage(t *testing.T) {
	samples := make([]float64, 600)
	for i := range samples {
		samples[i] = 210
	}
	assert.InDelta(t, 210.0, normalizedPower(samples), 1e-9)
	assert.Equal(t, 0.0, estimateFTP(samples))
	assert.Equal(t, 0.0, normalizedPower(nil))
}

func TestPaceLabel(t *testing.T) {
	assert.Equal(t, "fast", paceLabel(ptr(270), ptr(300)))
	assert.Equal(t, "easy", paceLabel(ptr(330), ptr(300)))
	assert.Equal(t, "steady", paceLabel(ptr(305), ptr(300)))
	assert.Equal(t, "steady", paceLabel(nil, ptr(300)))
}

func TestDescribeStructure(t *testing.T) {
	lap := func(label string, durationS, watts float64) activity.Lap {
		return activity.Lap{Label: label, DurationS: durationS, AvgPowerW: ptr(watts)}
	}

	intervals := []activity.Lap{
		lap("warmup", 600, 150),
		lap("work", 300, 298),
		lap("recovery", 180, 152),
		lap("work", 300, 302),
		lap("recovery", 180, 148),
		lap("cooldown", 480, 140),
	}
	assert.Equal(t, "warmup 10m + 2x5m @300W with 3m @150W recoveries (120% FTP) + cooldown 8m",
		describeStructure(intervals, 250))

	primed := []activity.Lap{
		lap("warmup", 600, 150),
		lap("activation", 30, 320),
		lap("steady", 30, 150),
		lap("activation", 30, 320),
		lap("steady", 30, 150),
		lap("work", 330, 300),
		lap("recovery", 180, 150),
	}
	assert.Equal(t, "warmup 10m + openers 2x30s/30s + 1x5m30s @300W with 3m @150W recoveries",
		describeStructure(primed, 0))

	assert.Empty(t, describeStructure([]activity.Lap{lap("steady", 3600, 200)}, 250))
}

func TestPreviewComputesWithoutStoring(t *testing.T) {
	rows, err := Preview(fitcodectest.MustBuild(t, fitcodectest.Cycling(newYear, 1800)), &threshold.Threshold{FTPWatts: ptr(250)})
	require.NoError(t, err)
	assert.Equal(t, activity.Cycling, rows.Sport)
	assert.Equal(t, newYear.Unix(), rows.Workout.ActivityID)
	assert.Equal(t, int64(0), rows.Workout.UserID)
	assert.Equal(t, SourceUser, rows.Workout.ThresholdSource)
	assert.NotEmpty(t, rows.Points)

	_, err = Preview([]byte("garbage"), nil)
	assert.Error(t, err)
}
