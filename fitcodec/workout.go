package fitcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tormoder/fit"

	"github.com/lucasjlepore/sporting/activity"
)

// Target kinds of a planned step.
const (
	TargetOpen      = "open"
	TargetHeartRate = "heart_rate"
	TargetPower     = "power"
	TargetSpeed     = "speed"
	TargetCadence   = "cadence"
)

// Step intensities.
const (
	IntensityWarmup   = "warmup"
	IntensityActive   = "active"
	IntensityRest     = "rest"
	IntensityCooldown = "cooldown"
)

// Custom target offsets used by the FIT workout_step profile.
const (
	heartRateOffset = 100
	powerOffset     = 1000
)

// Target is the intensity range of a step. Units: bpm, watts, m/s or rpm.
type Target struct {
	Kind string  `json:"kind"`
	Low  float64 `json:"low,omitempty"`
	High float64 `json:"high,omitempty"`
}

// PlannedStep is one step of a planned workout. A step is bounded by time or
// distance; with neither it is open and ends on the lap button.
type PlannedStep struct {
	Name      string  `json:"name,omitempty"`
	Intensity string  `json:"intensity"`
	DurationS float64 `json:"duration_s,omitempty"`
	DistanceM float64 `json:"distance_m,omitempty"`
	Target    Target  `json:"target"`
}

// PlannedWorkout describes a future workout to be sent to a device.
type PlannedWorkout struct {
	Name          string         `json:"name"`
	Sport         activity.Sport `json:"sport"`
	ScheduledFor  time.Time      `json:"scheduled_for"`
	DurationGoalS float64        `json:"duration_goal_s,omitempty"`
	DistanceGoalM float64        `json:"distance_goal_m,omitempty"`
	Steps         []PlannedStep  `json:"steps"`
}

// Totals returns the summed time and distance of the bounded steps.
func (p PlannedWorkout) Totals() (durationS, distanceM float64) {
	for _, s := range p.Steps {
		durationS += s.DurationS
		distanceM += s.DistanceM
	}
	return durationS, distanceM
}

// Normalize validates the plan and fills goals from the step totals.
func (p PlannedWorkout) Normalize() (PlannedWorkout, error) {
	if strings.TrimSpace(p.Name) == "" {
		return p, invalidPlanf("name is required")
	}
	if !p.Sport.Valid() {
		return p, invalidPlanf("unsupported sport %s", p.Sport)
	}
	if len(p.Steps) == 0 {
		return p, invalidPlanf("at least one step is required")
	}
	if len(p.Steps) > math.MaxUint16-1 {
		return p, invalidPlanf("too many steps: %d", len(p.Steps))
	}

	steps := make([]PlannedStep, len(p.Steps))
	for i, s := range p.Steps {
		s = roundStep(s)
		if err := validateStep(s); err != nil {
			return p, fmt.Errorf("step %d: %w", i+1, err)
		}
		if s.Intensity == "" {
			s.Intensity = IntensityActive
		}
		if s.Target.Kind == "" {
			s.Target = Target{Kind: TargetOpen}
		}
		steps[i] = s
	}
	p.Steps = steps

	duration, distance := p.Totals()
	if p.DurationGoalS != 0 && math.Abs(p.DurationGoalS-duration) > 0.001 {
		return p, invalidPlanf("duration goal %.0fs does not match step total %.0fs", p.DurationGoalS, duration)
	}
	if p.DistanceGoalM != 0 && math.Abs(p.DistanceGoalM-distance) > 0.01 {
		return p, invalidPlanf("distance goal %.0fm does not match step total %.0fm", p.DistanceGoalM, distance)
	}
	p.DurationGoalS = duration
	p.DistanceGoalM = distance
	return p, nil
}

// roundStep snaps a step to the resolution the FIT encoding keeps, so a
// validated step survives the round trip unchanged.
func roundStep(s PlannedStep) PlannedStep {
	s.DurationS = math.Round(s.DurationS*1000) / 1000
	s.DistanceM = math.Round(s.DistanceM*100) / 100
	switch s.Target.Kind {
	case "", TargetOpen:
		s.Target = Target{Kind: s.Target.Kind}
	case TargetSpeed:
		s.Target.Low = math.Round(s.Target.Low*1000) / 1000
		s.Target.High = math.Round(s.Target.High*1000) / 1000
	default:
		s.Target.Low = math.Round(s.Target.Low)
		s.Target.High = math.Round(s.Target.High)
	}
	return s
}

func validateStep(s PlannedStep) error {
	if s.DurationS < 0 || s.DistanceM < 0 {
		return invalidPlanf("negative bound")
	}
	if s.DurationS > 0 && s.DistanceM > 0 {
		return invalidPlanf("step has both a duration and a distance")
	}
	if s.DurationS*1000 > math.MaxUint32-1 || s.DistanceM*100 > math.MaxUint32-1 {
		return invalidPlanf("step bound out of range")
	}
	if _, ok := intensityToFIT[s.Intensity]; !ok && s.Intensity != "" {
		return invalidPlanf("unknown intensity %q", s.Intensity)
	}
	switch s.Target.Kind {
	case "", TargetOpen:
		return nil
	case TargetHeartRate, TargetPower, TargetSpeed, TargetCadence:
	default:
		return invalidPlanf("unknown target kind %q", s.Target.Kind)
	}
	if s.Target.Low <= 0 || s.Target.High < s.Target.Low {
		return invalidPlanf("target range %v-%v is invalid", s.Target.Low, s.Target.High)
	}
	return nil
}

var intensityToFIT = map[string]fit.Intensity{
	IntensityActive:   fit.IntensityActive,
	IntensityRest:     fit.IntensityRest,
	IntensityWarmup:   fit.IntensityWarmup,
	IntensityCooldown: fit.IntensityCooldown,
}

// EncodeWorkout encodes a planned workout as a FIT workout file.
func EncodeWorkout(plan PlannedWorkout, created time.Time) ([]byte, error) {
	plan, err := plan.Normalize()
	if err != nil {
		return nil, err
	}

	file, err := fit.NewFile(fit.FileTypeWorkout, fit.NewHeader(fit.V20, true))
	if err != nil {
		return nil, fmt.Errorf("new workout file: %w", err)
	}
	file.FileId.TimeCreated = created.UTC()
	file.FileId.Manufacturer = fit.ManufacturerDevelopment

	wf, err := file.Workout()
	if err != nil {
		return nil, fmt.Errorf("workout accessor: %w", err)
	}

	msg := fit.NewWorkoutMsg()
	msg.WktName = plan.Name
	msg.Sport = fitSport(plan.Sport)
	msg.NumValidSteps = uint16(len(plan.Steps))
	wf.Workout = msg

	for i, s := range plan.Steps {
		step := fit.NewWorkoutStepMsg()
		step.MessageIndex = fit.MessageIndex(i)
		step.WktStepName = s.Name
		step.Intensity = intensityToFIT[s.Intensity]

		switch {
		case s.DurationS > 0:
			step.DurationType = fit.WktStepDurationTime
			step.DurationValue = uint32(math.Round(s.DurationS * 1000))
		case s.DistanceM > 0:
			step.DurationType = fit.WktStepDurationDistance
			step.DurationValue = uint32(math.Round(s.DistanceM * 100))
		default:
			step.DurationType = fit.WktStepDurationOpen
		}

		setTarget(step, s.Target)
		wf.WorkoutSteps = append(wf.WorkoutSteps, step)
	}

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode workout: %w", err)
	}
	return buf.Bytes(), nil
}

func setTarget(step *fit.WorkoutStepMsg, t Target) {
	step.TargetValue = 0
	switch t.Kind {
	case TargetHeartRate:
		step.TargetType = fit.WktStepTargetHeartRate
		step.CustomTargetValueLow = uint32(math.Round(t.Low)) + heartRateOffset
		step.CustomTargetValueHigh = uint32(math.Round(t.High)) + heartRateOffset
	case TargetPower:
		step.TargetType = fit.WktStepTargetPower
		step.CustomTargetValueLow = uint32(math.Round(t.Low)) + powerOffset
		step.CustomTargetValueHigh = uint32(math.Round(t.High)) + powerOffset
	case TargetSpeed:
		step.TargetType = fit.WktStepTargetSpeed
		step.CustomTargetValueLow = uint32(math.Round(t.Low * 1000))
		step.CustomTargetValueHigh = uint32(math.Round(t.High * 1000))
	case TargetCadence:
		step.TargetType = fit.WktStepTargetCadence
		step.CustomTargetValueLow = uint32(math.Round(t.Low))
		step.CustomTargetValueHigh = uint32(math.Round(t.High))
	default:
		step.TargetType = fit.WktStepTargetOpen
	}
}

// DecodeWorkout decodes a FIT workout file back into a planned workout. Goals
// are the step totals.
func (r *Reader) DecodeWorkout(data []byte) (*PlannedWorkout, error) {
	if _, err := Scan(data); err != nil {
		return nil, err
	}
	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: err}
	}
	wf, err := decoded.Workout()
	if err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: fmt.Errorf("workout file expected: %w", err)}
	}
	if wf.Workout == nil || len(wf.WorkoutSteps) == 0 {
		return nil, parseErrorf(StageContent, "workout has no steps")
	}

	sport, err := activity.ParseSport(sportName(wf.Workout.Sport))
	if err != nil {
		return nil, &ParseError{Stage: StageContent, Err: err}
	}
	plan := &PlannedWorkout{Name: wf.Workout.WktName, Sport: sport}

	for _, msg := range wf.WorkoutSteps {
		if msg == nil {
			continue
		}
		step := PlannedStep{
			Name:      msg.WktStepName,
			Intensity: intensityName(msg.Intensity),
			Target:    targetFromStep(msg),
		}
		switch msg.DurationType {
		case fit.WktStepDurationTime:
			step.DurationS = float64(msg.DurationValue) / 1000.0
		case fit.WktStepDurationDistance:
			step.DistanceM = float64(msg.DurationValue) / 100.0
		case fit.WktStepDurationOpen:
		default:
			return nil, parseErrorf(StageContent, "unsupported step duration type %v", msg.DurationType)
		}
		plan.Steps = append(plan.Steps, step)
	}
	plan.DurationGoalS, plan.DistanceGoalM = plan.Totals()
	return plan, nil
}

func targetFromStep(msg *fit.WorkoutStepMsg) Target {
	low, high := float64(msg.CustomTargetValueLow), float64(msg.CustomTargetValueHigh)
	switch msg.TargetType {
	case fit.WktStepTargetHeartRate:
		return Target{Kind: TargetHeartRate, Low: low - heartRateOffset, High: high - heartRateOffset}
	case fit.WktStepTargetPower:
		return Target{Kind: TargetPower, Low: low - powerOffset, High: high - powerOffset}
	case fit.WktStepTargetSpeed:
		return Target{Kind: TargetSpeed, Low: low / 1000.0, High: high / 1000.0}
	case fit.WktStepTargetCadence:
		return Target{Kind: TargetCadence, Low: low, High: high}
	default:
		return Target{Kind: TargetOpen}
	}
}

func intensityName(i fit.Intensity) string {
	for name, v := range intensityToFIT {
		if v == i {
			return name
		}
	}
	return IntensityActive
}

func fitSport(s activity.Sport) fit.Sport {
	if s == activity.Cycling {
		return fit.SportCycling
	}
	return fit.SportRunning
}
