package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/plan"
	"github.com/lucasjlepore/sporting/threshold"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "sporting.db") + "?_pragma=busy_timeout(5000)"
	s, err := Open(SQLite, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Bootstrap(context.Background()))
	return s
}

func f(v float64) *float64 { return &v }

func sampleRows(sport activity.Sport, userID, activityID int64, distance float64) *activity.Rows {
	rows := &activity.Rows{
		Sport: sport,
		Workout: activity.Synthesized{
			UserID:          userID,
			ActivityID:      activityID,
			Sport:           sport,
			DateTS:          activityID,
			DurationS:       1800,
			DistanceM:       distance,
			AvgHeartRate:    f(150),
			ThresholdSource: "unavailable",
			LapCount:        2,
			PointCount:      3,
		},
	}
	for i := 0; i < 3; i++ {
		rows.Points = append(rows.Points, activity.Point{
			UserID: userID, ActivityID: activityID, Seq: i,
			Timestamp: activityID + int64(i), ElapsedS: float64(i), HeartRate: f(140 + float64(i)),
		})
	}
	for i := 0; i < 2; i++ {
		rows.Laps = append(rows.Laps, activity.Lap{
			UserID: userID, ActivityID: activityID, LapIndex: i,
			StartTS: activityID + int64(i*900), DurationS: 900, DistanceM: distance / 2, Label: "steady",
		})
	}
	return rows
}

func TestBootstrapIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Bootstrap(context.Background()))
}

func TestWriteActivityAndRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WriteActivity(ctx, sampleRows(activity.Running, 7, 1704067200, 5142), activity.Reject))

	syn, err := s.Synthesized(ctx, activity.Running, 7, time.Time{})
	require.NoError(t, err)
	require.Len(t, syn, 1)
	assert.Equal(t, int64(1704067200), syn[0].ActivityID)
	assert.Equal(t, activity.Running, syn[0].Sport)
	assert.Equal(t, 5142.0, syn[0].DistanceM)
	require.NotNil(t, syn[0].AvgHeartRate)
	assert.Equal(t, 150.0, *syn[0].AvgHeartRate)
	assert.Nil(t, syn[0].AvgPowerW)

	laps, err := s.Laps(ctx, activity.Running, 7, 1704067200)
	require.NoError(t, err)
	assert.Len(t, laps, 2)

	points, err := s.Points(ctx, activity.Running, 7, 1704067200)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 2, points[2].Seq)

	sport, err := s.ActivitySport(ctx, 7, 1704067200)
	require.NoError(t, err)
	assert.Equal(t, activity.Running, sport)

	other, err := s.Synthesized(ctx, activity.Running, 8, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestWriteActivityRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WriteActivity(ctx, sampleRows(activity.Running, 7, 100, 1000), activity.Reject))
	err := s.WriteActivity(ctx, sampleRows(activity.Cycling, 7, 100, 2000), activity.Reject)
	assert.True(t, errors.Is(err, activity.ErrDuplicateActivity), "got %v", err)

	cyc, err := s.Synthesized(ctx, activity.Cycling, 7, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, cyc)
	run, err := s.Synthesized(ctx, activity.Running, 7, time.Time{})
	require.NoError(t, err)
	require.Len(t, run, 1)
	assert.Equal(t, 1000.0, run[0].DistanceM)
}

func TestWriteActivityOverwriteReplacesAcrossSports(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WriteActivity(ctx, sampleRows(activity.Running, 7, 100, 1000), activity.Overwrite))
	require.NoError(t, s.WriteActivity(ctx, sampleRows(activity.Cycling, 7, 100, 20000), activity.Overwrite))

	run, err := s.Synthesized(ctx, activity.Running, 7, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, run)
	runLaps, err := s.Laps(ctx, activity.Running, 7, 100)
	require.NoError(t, err)
	assert.Empty(t, runLaps)

	cyc, err := s.Synthesized(ctx, activity.Cycling, 7, time.Time{})
	require.NoError(t, err)
	require.Len(t, cyc, 1)
	assert.Equal(t, 20000.0, cyc[0].DistanceM)
}

func TestWriteActivityRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rows := sampleRows(activity.Running, 7, 100, 1000)
	rows.Laps[1].LapIndex = 0 // duplicate lap key fails the lap insert

	err := s.WriteActivity(ctx, rows, activity.Overwrite)
	require.Error(t, err)

	points, err := s.Points(ctx, activity.Running, 7, 100)
	require.NoError(t, err)
	assert.Empty(t, points)
	syn, err := s.Synthesized(ctx, activity.Running, 7, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, syn)
	_, err = s.ActivitySport(ctx, 7, 100)
	assert.Error(t, err)
}

func TestSynthesizedSinceAndRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []int64{1000, 3000, 2000} {
		require.NoError(t, s.WriteActivity(ctx, sampleRows(activity.Cycling, 1, id, 100), activity.Reject))
	}

	since, err := s.Synthesized(ctx, activity.Cycling, 1, time.Unix(2000, 0))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, int64(2000), since[0].ActivityID)

	recent, err := s.RecentSynthesized(ctx, activity.Cycling, 1, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3000), recent[0].ActivityID)
	assert.Equal(t, int64(2000), recent[1].ActivityID)
}

func TestThresholdsThroughTracker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tr := threshold.NewTracker(s)

	_, err := tr.Submit(ctx, threshold.Threshold{UserID: 7, Date: "2024-05-01", FTPWatts: f(240)})
	require.NoError(t, err)
	_, err = tr.Submit(ctx, threshold.Threshold{UserID: 7, Date: "2024-06-01", FTPWatts: f(250)})
	require.NoError(t, err)
	_, err = tr.Submit(ctx, threshold.Threshold{UserID: 7, Date: "2024-06-01", FTPWatts: f(255)})
	require.NoError(t, err)

	cur, err := tr.Current(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", cur.Date)
	assert.Equal(t, 255.0, cur.FTP())

	rows, err := s.Thresholds(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-05-01", rows[2].Date)
	assert.Greater(t, rows[0].Seq, rows[1].Seq)

	_, err = threshold.NewTracker(s, threshold.WithTieBreak(threshold.RejectTies)).Current(ctx, 7)
	var conflict *threshold.ConflictError
	assert.True(t, errors.As(err, &conflict))
}

func TestSaveAndListPlans(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	when := int64(1717200000)

	rec := plan.Record{
		PlanID:        "c0a8e7a4-7c1e-4b8e-9a55-2b1d3c9a0f11",
		UserID:        7,
		Name:          "Tempo",
		Sport:         activity.Running,
		ScheduledFor:  &when,
		DurationGoalS: 1200,
		Steps: plan.Steps{
			{Intensity: fitcodec.IntensityActive, DurationS: 1200, Target: fitcodec.Target{Kind: fitcodec.TargetHeartRate, Low: 150, High: 160}},
		},
		CreatedAt: 1717000000,
	}
	require.NoError(t, s.SavePlan(ctx, rec))

	got, err := s.Plans(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}
