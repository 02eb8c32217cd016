package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/fitcodec"
)

type memoryRepo struct {
	saved []Record
	err   error
}

func (m *memoryRepo) SavePlan(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memoryRepo) Plans(_ context.Context, userID int64) ([]Record, error) {
	var out []Record
	for _, r := range m.saved {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

var created = time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

func tempo() fitcodec.PlannedWorkout {
	return fitcodec.PlannedWorkout{
		Name:         "Tempo",
		Sport:        activity.Running,
		ScheduledFor: time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC),
		Steps: []fitcodec.PlannedStep{
			{Intensity: fitcodec.IntensityWarmup, DurationS: 600},
			{Intensity: fitcodec.IntensityActive, DistanceM: 5000, Target: fitcodec.Target{Kind: fitcodec.TargetHeartRate, Low: 160, High: 170}},
		},
	}
}

func TestPublishEncodesAndRecords(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, WithClock(func() time.Time { return created }))

	pub, err := svc.Publish(context.Background(), 7, tempo())
	require.NoError(t, err)
	require.Len(t, repo.saved, 1)

	rec := repo.saved[0]
	assert.Equal(t, pub.Record, rec)
	assert.NotEmpty(t, rec.PlanID)
	assert.Equal(t, rec.PlanID+".fit", pub.FileName())
	assert.Equal(t, 600.0, rec.DurationGoalS)
	assert.Equal(t, 5000.0, rec.DistanceGoalM)
	assert.Equal(t, created.Unix(), rec.CreatedAt)
	require.NotNil(t, rec.ScheduledFor)
	assert.Equal(t, int64(1717398000), *rec.ScheduledFor)

	decoded, err := fitcodec.NewReader().DecodeWorkout(pub.Data)
	require.NoError(t, err)
	assert.Equal(t, "Tempo", decoded.Name)
	assert.Equal(t, activity.Running, decoded.Sport)
	assert.Equal(t, rec.DurationGoalS, decoded.DurationGoalS)
	assert.Equal(t, rec.DistanceGoalM, decoded.DistanceGoalM)
	assert.Equal(t, []fitcodec.PlannedStep(rec.Steps), decoded.Steps)

	list, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPublishInvalidPlanStoresNothing(t *testing.T) {
	repo := &memoryRepo{}
	p := tempo()
	p.DurationGoalS = 900

	_, err := NewService(repo).Publish(context.Background(), 7, p)
	assert.True(t, errors.Is(err, fitcodec.ErrInvalidPlan))
	assert.Empty(t, repo.saved)
}

func TestPublishSurfacesRepositoryError(t *testing.T) {
	cause := errors.New("read-only transaction")
	_, err := NewService(&memoryRepo{err: cause}).Publish(context.Background(), 7, tempo())
	assert.ErrorIs(t, err, cause)
}

func TestStepsScan(t *testing.T) {
	var s Steps
	require.NoError(t, s.Scan(`[{"name":"a","intensity":"active","duration_s":60,"distance_m":0,"target":{"kind":"open","low":0,"high":0}}]`))
	require.Len(t, s, 1)
	assert.Equal(t, 60.0, s[0].DurationS)

	v, err := Steps(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	assert.Error(t, s.Scan(42))
}
