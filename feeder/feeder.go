// Package feeder turns decoded telemetry into the normalized point and lap
// rows of one sport plus the single synthesized summary row.
package feeder

import (
	"errors"
	"fmt"
	"time"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/threshold"
)

const secondsPerHour = 3600.0

// Threshold sources recorded on the synthesized row.
const (
	SourceUser        = "user"
	SourceDevice      = "device"
	SourceEstimated   = "estimated"
	SourceUnavailable = "unavailable"
)

// Input is everything a feeder needs for one activity.
type Input struct {
	UserID     int64
	ActivityID int64
	Session    fitcodec.Session
	Points     []fitcodec.Point
	Laps       []fitcodec.Lap
	// Threshold is the user's current threshold, nil when none applies.
	Threshold *threshold.Threshold
}

// Feeder computes the write set of one sport.
type Feeder interface {
	Sport() activity.Sport
	Compute(in Input) (*activity.Rows, error)
}

// For returns the feeder bound to a sport.
func For(sport activity.Sport) (Feeder, error) {
	switch sport {
	case activity.Running:
		return Running{}, nil
	case activity.Cycling:
		return Cycling{}, nil
	default:
		return nil, &activity.UnsupportedSportError{Value: sport.String()}
	}
}

// Route picks the feeder of a decoded file and derives its activity id.
func Route(decoded *fitcodec.Activity) (Feeder, int64, error) {
	sport, err := activity.ParseSport(decoded.Sport())
	if err != nil {
		return nil, 0, err
	}
	f, err := For(sport)
	if err != nil {
		return nil, 0, err
	}
	first, ok := FirstTimestamp(decoded.Points)
	if !ok {
		return nil, 0, &ComputeFailure{Sport: sport, Stage: StageCompute, Err: errors.New("no timestamped point")}
	}
	return f, activity.DeriveID(first), nil
}

// Preview synthesizes a FIT file without a user or a store. th may be nil.
func Preview(data []byte, th *threshold.Threshold) (*activity.Rows, error) {
	decoded, err := fitcodec.NewReader().DecodeActivity(data)
	if err != nil {
		return nil, err
	}
	f, activityID, err := Route(decoded)
	if err != nil {
		return nil, err
	}
	return f.Compute(Input{
		ActivityID: activityID,
		Session:    decoded.Sessions[0],
		Points:     decoded.Points,
		Laps:       decoded.Laps,
		Threshold:  th,
	})
}

// Stages a ComputeFailure can be raised from.
const (
	StageCompute = "compute"
	StagePersist = "persist"
)

// ComputeFailure reports an activity that could not be synthesized or whose
// rows could not be written. No rows of the activity survive it.
type ComputeFailure struct {
	Sport      activity.Sport
	ActivityID int64
	Stage      string
	Err        error
}

func (e *ComputeFailure) Error() string {
	return fmt.Sprintf("%s activity %d: %s failed: %v", e.Sport, e.ActivityID, e.Stage, e.Err)
}

func (e *ComputeFailure) Unwrap() error {
	return e.Err
}

func computeFailure(sport activity.Sport, in Input, format string, args ...any) *ComputeFailure {
	return &ComputeFailure{Sport: sport, ActivityID: in.ActivityID, Stage: StageCompute, Err: fmt.Errorf(format, args...)}
}

// FirstTimestamp returns the timestamp of the first point that carries one.
func FirstTimestamp(points []fitcodec.Point) (time.Time, bool) {
	for _, p := range points {
		if !p.Timestamp.IsZero() {
			return p.Timestamp, true
		}
	}
	return time.Time{}, false
}

// timeline holds the normalized points and the activity bounds.
type timeline struct {
	points []activity.Point
	start  time.Time
	end    time.Time
}

func (tl timeline) durationS() float64 {
	if tl.end.After(tl.start) {
		return tl.end.Sub(tl.start).Seconds()
	}
	return 0
}

// normalizePoints keeps timestamped points in stream order and maps them onto
// the canonical row shape. cadenceScale converts device cadence units.
func normalizePoints(in Input, cadenceScale float64, withPace bool) (timeline, error) {
	tl := timeline{points: make([]activity.Point, 0, len(in.Points))}
	for _, p := range in.Points {
		if p.Timestamp.IsZero() {
			continue
		}
		if tl.start.IsZero() {
			tl.start = p.Timestamp
		}
		if p.Timestamp.Before(tl.end) {
			return tl, fmt.Errorf("point at %s precedes %s", p.Timestamp.Format(time.RFC3339), tl.end.Format(time.RFC3339))
		}
		tl.end = p.Timestamp

		row := activity.Point{
			UserID:      in.UserID,
			ActivityID:  in.ActivityID,
			Seq:         len(tl.points),
			Timestamp:   p.Timestamp.Unix(),
			ElapsedS:    p.Timestamp.Sub(tl.start).Seconds(),
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			AltitudeM:   p.AltitudeM,
			DistanceM:   p.DistanceM,
			SpeedMPS:    p.SpeedMPS,
			HeartRate:   p.HeartRate,
			PowerW:      p.PowerW,
			Temperature: p.Temperature,
		}
		if p.Cadence != nil {
			row.Cadence = floatPtr(*p.Cadence * cadenceScale)
		}
		if withPace {
			row.PaceSPerKm = paceFromSpeed(p.SpeedMPS)
		}
		tl.points = append(tl.points, row)
	}
	if len(tl.points) == 0 {
		return tl, fmt.Errorf("no timestamped points")
	}
	return tl, nil
}

// lapWindow is the offset range of a lap relative to the activity start.
type lapWindow struct {
	start, end float64
}

func lapWindows(laps []fitcodec.Lap, start time.Time) []lapWindow {
	out := make([]lapWindow, len(laps))
	offset := 0.0
	for i, lap := range laps {
		from := offset
		if !lap.StartTime.IsZero() && !start.IsZero() {
			from = lap.StartTime.Sub(start).Seconds()
		}
		out[i] = lapWindow{start: from, end: from + lapDuration(lap)}
		offset = out[i].end
	}
	return out
}

func lapDuration(lap fitcodec.Lap) float64 {
	if lap.TimerS > 0 {
		return lap.TimerS
	}
	return lap.ElapsedS
}

func pointsIn(points []activity.Point, w lapWindow) []activity.Point {
	var out []activity.Point
	for _, p := range points {
		if p.ElapsedS >= w.start && p.ElapsedS < w.end {
			out = append(out, p)
		}
	}
	return out
}

func sessionDuration(s fitcodec.Session, tl timeline) float64 {
	if s.TimerS > 0 {
		return s.TimerS
	}
	if s.ElapsedS > 0 {
		return s.ElapsedS
	}
	return tl.durationS()
}

func sessionDistance(s fitcodec.Session, tl timeline) float64 {
	if s.DistanceM > 0 {
		return s.DistanceM
	}
	for i := len(tl.points) - 1; i >= 0; i-- {
		if d := tl.points[i].DistanceM; d != nil && *d > 0 {
			return *d
		}
	}
	return 0
}

// stress returns hours x IF^2 x 100.
func stress(durationS, intensity float64) float64 {
	if durationS <= 0 || intensity <= 0 {
		return 0
	}
	return (durationS / secondsPerHour) * intensity * intensity * 100.0
}
