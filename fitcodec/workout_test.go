package fitcodec_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/fitcodec"
)

func intervalPlan() fitcodec.PlannedWorkout {
	return fitcodec.PlannedWorkout{
		Name:  "5x4 VO2",
		Sport: activity.Cycling,
		Steps: []fitcodec.PlannedStep{
			{Name: "warm", Intensity: fitcodec.IntensityWarmup, DurationS: 600, Target: fitcodec.Target{Kind: fitcodec.TargetPower, Low: 120, High: 160}},
			{Name: "on", Intensity: fitcodec.IntensityActive, DurationS: 240, Target: fitcodec.Target{Kind: fitcodec.TargetPower, Low: 280, High: 300}},
			{Name: "off", Intensity: fitcodec.IntensityRest, DurationS: 180, Target: fitcodec.Target{Kind: fitcodec.TargetHeartRate, Low: 100, High: 130}},
			{Name: "spin", Intensity: fitcodec.IntensityActive, DistanceM: 2000, Target: fitcodec.Target{Kind: fitcodec.TargetCadence, Low: 85, High: 95}},
			{Name: "cool", Intensity: fitcodec.IntensityCooldown},
		},
	}
}

func TestWorkoutRoundTrip(t *testing.T) {
	plan := intervalPlan()
	plan.DurationGoalS = 1020

	data, err := fitcodec.EncodeWorkout(plan, newYear)
	require.NoError(t, err)

	got, err := fitcodec.NewReader().DecodeWorkout(data)
	require.NoError(t, err)

	want, err := plan.Normalize()
	require.NoError(t, err)

	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, activity.Cycling, got.Sport)
	assert.Equal(t, want.Steps, got.Steps)
	assert.Equal(t, 1020.0, got.DurationGoalS)
	assert.Equal(t, 2000.0, got.DistanceGoalM)
}

func TestWorkoutRoundTripSpeedTargets(t *testing.T) {
	plan := fitcodec.PlannedWorkout{
		Name:  "Tempo",
		Sport: activity.Running,
		Steps: []fitcodec.PlannedStep{
			{Intensity: fitcodec.IntensityActive, DistanceM: 5000, Target: fitcodec.Target{Kind: fitcodec.TargetSpeed, Low: 3.45, High: 3.7}},
		},
	}
	data, err := fitcodec.EncodeWorkout(plan, newYear)
	require.NoError(t, err)

	got, err := fitcodec.NewReader().DecodeWorkout(data)
	require.NoError(t, err)
	require.Len(t, got.Steps, 1)
	assert.InDelta(t, 3.45, got.Steps[0].Target.Low, 1e-9)
	assert.InDelta(t, 3.7, got.Steps[0].Target.High, 1e-9)
	assert.Equal(t, 5000.0, got.DistanceGoalM)
	assert.Equal(t, 0.0, got.DurationGoalS)
}

func TestEncodeWorkoutValidation(t *testing.T) {
	cases := map[string]func(*fitcodec.PlannedWorkout){
		"no name":         func(p *fitcodec.PlannedWorkout) { p.Name = " " },
		"no steps":        func(p *fitcodec.PlannedWorkout) { p.Steps = nil },
		"bad sport":       func(p *fitcodec.PlannedWorkout) { p.Sport = 0 },
		"goal mismatch":   func(p *fitcodec.PlannedWorkout) { p.DurationGoalS = 999 },
		"both bounds":     func(p *fitcodec.PlannedWorkout) { p.Steps[0].DistanceM = 100 },
		"inverted target": func(p *fitcodec.PlannedWorkout) { p.Steps[1].Target.Low = 400 },
		"unknown target":  func(p *fitcodec.PlannedWorkout) { p.Steps[1].Target.Kind = "rpe" },
		"bad intensity":   func(p *fitcodec.PlannedWorkout) { p.Steps[1].Intensity = "sprint" },
		"target rounds to zero": func(p *fitcodec.PlannedWorkout) {
			p.Steps[1].Target = fitcodec.Target{Kind: fitcodec.TargetPower, Low: 0.4, High: 0.45}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			plan := intervalPlan()
			mutate(&plan)
			data, err := fitcodec.EncodeWorkout(plan, newYear)
			assert.Nil(t, data)
			assert.True(t, errors.Is(err, fitcodec.ErrInvalidPlan), "got %v", err)
		})
	}
}

func TestDecodeWorkoutRejectsGarbage(t *testing.T) {
	_, err := fitcodec.NewReader().DecodeWorkout([]byte("definitely not a fit file"))
	var perr *fitcodec.ParseError
	assert.True(t, errors.As(err, &perr))
}
