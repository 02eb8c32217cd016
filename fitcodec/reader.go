package fitcodec

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tormoder/fit"
)

const semicirclesToDeg = 180.0 / 2147483648.0

// Point is one decoded record message. Nil fields were absent or carried the
// FIT invalid sentinel.
type Point struct {
	Timestamp   time.Time
	Latitude    *float64
	Longitude   *float64
	AltitudeM   *float64
	DistanceM   *float64
	SpeedMPS    *float64
	HeartRate   *float64
	Cadence     *float64
	PowerW      *float64
	Temperature *float64
}

// Lap is one decoded lap message.
type Lap struct {
	StartTime       time.Time
	Timestamp       time.Time
	ElapsedS        float64
	TimerS          float64
	DistanceM       float64
	AvgHeartRate    *float64
	MaxHeartRate    *float64
	AvgCadence      *float64
	AvgSpeedMPS     *float64
	AvgPowerW       *float64
	MaxPowerW       *float64
	NormalizedPower *float64
	AscentM         *float64
	Calories        *float64
}

// Session is one decoded session message, carrying the sport classification.
type Session struct {
	Sport           string
	SubSport        string
	StartTime       time.Time
	ElapsedS        float64
	TimerS          float64
	DistanceM       float64
	AvgHeartRate    *float64
	MaxHeartRate    *float64
	AvgSpeedMPS     *float64
	AvgCadence      *float64
	AvgPowerW       *float64
	MaxPowerW       *float64
	NormalizedPower *float64
	ThresholdPowerW *float64
	WorkJ           *float64
	AscentM         *float64
	Calories        *float64
}

// Activity holds the three message groups of a decoded activity file, each in
// stream order.
type Activity struct {
	Points    []Point
	Laps      []Lap
	Sessions  []Session
	Inventory *Inventory
}

// Sport returns the classification string of the first session.
func (a *Activity) Sport() string {
	if a == nil || len(a.Sessions) == 0 {
		return ""
	}
	return a.Sessions[0].Sport
}

// Reader decodes FIT activity and workout files.
type Reader struct{}

// NewReader returns a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// DecodeActivity decodes an activity file into its record, lap and session
// groups. Every group must be present; otherwise a *ParseError is returned
// and nothing else.
func (r *Reader) DecodeActivity(data []byte) (*Activity, error) {
	inv, err := Scan(data)
	if err != nil {
		return nil, err
	}

	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: err}
	}
	file, err := decoded.Activity()
	if err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: fmt.Errorf("activity file expected: %w", err)}
	}

	out := &Activity{Inventory: inv}
	for _, rec := range file.Records {
		if rec == nil {
			continue
		}
		out.Points = append(out.Points, pointFromRecord(rec))
	}
	for _, lap := range file.Laps {
		if lap == nil {
			continue
		}
		out.Laps = append(out.Laps, lapFromMsg(lap))
	}
	for _, session := range file.Sessions {
		if session == nil {
			continue
		}
		out.Sessions = append(out.Sessions, sessionFromMsg(session))
	}

	switch {
	case len(out.Points) == 0:
		return nil, parseErrorf(StageContent, "activity has no record messages")
	case len(out.Laps) == 0:
		return nil, parseErrorf(StageContent, "activity has no lap messages")
	case len(out.Sessions) == 0:
		return nil, parseErrorf(StageContent, "activity has no session messages")
	}
	return out, nil
}

func pointFromRecord(rec *fit.RecordMsg) Point {
	p := Point{Timestamp: validTimeOrZero(rec.Timestamp)}

	lat, lon := rec.PositionLat.Semicircles(), rec.PositionLong.Semicircles()
	if lat != math.MaxInt32 && lon != math.MaxInt32 {
		p.Latitude = floatPtr(float64(lat) * semicirclesToDeg)
		p.Longitude = floatPtr(float64(lon) * semicirclesToDeg)
	}

	switch {
	case rec.EnhancedAltitude != math.MaxUint32:
		p.AltitudeM = floatPtr(float64(rec.EnhancedAltitude)/5.0 - 500.0)
	case rec.Altitude != math.MaxUint16:
		p.AltitudeM = floatPtr(float64(rec.Altitude)/5.0 - 500.0)
	}

	if d := rec.GetDistanceScaled(); isFinite(d) && d >= 0 {
		p.DistanceM = floatPtr(d)
	}
	if s := rec.GetEnhancedSpeedScaled(); isFinite(s) && s >= 0 {
		p.SpeedMPS = floatPtr(s)
	} else if s := rec.GetSpeedScaled(); isFinite(s) && s >= 0 {
		p.SpeedMPS = floatPtr(s)
	}

	p.HeartRate = uint8Ptr(rec.HeartRate)
	if c := safePositive(rec.GetCadence256Scaled()); c > 0 {
		p.Cadence = floatPtr(c)
	} else {
		p.Cadence = uint8Ptr(rec.Cadence)
	}
	p.PowerW = uint16Ptr(rec.Power)
	if rec.Temperature != math.MaxInt8 {
		p.Temperature = floatPtr(float64(rec.Temperature))
	}
	return p
}

func lapFromMsg(lap *fit.LapMsg) Lap {
	l := Lap{
		StartTime:       validTimeOrZero(lap.StartTime),
		Timestamp:       validTimeOrZero(lap.Timestamp),
		ElapsedS:        safePositive(lap.GetTotalElapsedTimeScaled()),
		TimerS:          safePositive(lap.GetTotalTimerTimeScaled()),
		DistanceM:       safePositive(lap.GetTotalDistanceScaled()),
		AvgHeartRate:    uint8Ptr(lap.AvgHeartRate),
		MaxHeartRate:    uint8Ptr(lap.MaxHeartRate),
		AvgCadence:      cadencePtr(lap.GetAvgCadence()),
		AvgPowerW:       uint16Ptr(lap.AvgPower),
		MaxPowerW:       uint16Ptr(lap.MaxPower),
		NormalizedPower: uint16Ptr(lap.NormalizedPower),
		AscentM:         uint16Ptr(lap.TotalAscent),
		Calories:        uint16Ptr(lap.TotalCalories),
	}
	switch {
	case lap.EnhancedAvgSpeed != math.MaxUint32:
		l.AvgSpeedMPS = floatPtr(float64(lap.EnhancedAvgSpeed) / 1000.0)
	case lap.AvgSpeed != math.MaxUint16:
		l.AvgSpeedMPS = floatPtr(float64(lap.AvgSpeed) / 1000.0)
	}
	return l
}

func sessionFromMsg(session *fit.SessionMsg) Session {
	s := Session{
		Sport:           sportName(session.Sport),
		SubSport:        strings.ToLower(fmt.Sprint(session.SubSport)),
		StartTime:       validTimeOrZero(session.StartTime),
		ElapsedS:        safePositive(session.GetTotalElapsedTimeScaled()),
		TimerS:          safePositive(session.GetTotalTimerTimeScaled()),
		DistanceM:       safePositive(session.GetTotalDistanceScaled()),
		AvgHeartRate:    uint8Ptr(session.AvgHeartRate),
		MaxHeartRate:    uint8Ptr(session.MaxHeartRate),
		AvgCadence:      cadencePtr(session.GetAvgCadence()),
		AvgPowerW:       uint16Ptr(session.AvgPower),
		MaxPowerW:       uint16Ptr(session.MaxPower),
		NormalizedPower: uint16Ptr(session.NormalizedPower),
		ThresholdPowerW: uint16Ptr(session.ThresholdPower),
		AscentM:         uint16Ptr(session.TotalAscent),
		Calories:        uint16Ptr(session.TotalCalories),
	}
	if session.TotalWork != math.MaxUint32 {
		s.WorkJ = floatPtr(float64(session.TotalWork))
	}
	if v := safePositive(session.GetEnhancedAvgSpeedScaled()); v > 0 {
		s.AvgSpeedMPS = floatPtr(v)
	} else if v := safePositive(session.GetAvgSpeedScaled()); v > 0 {
		s.AvgSpeedMPS = floatPtr(v)
	}
	return s
}

func sportName(s fit.Sport) string {
	switch s {
	case fit.SportRunning:
		return "running"
	case fit.SportCycling:
		return "cycling"
	default:
		return strings.ToLower(strings.TrimPrefix(fmt.Sprint(s), "Sport"))
	}
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t.UTC()
}

func uint8Ptr(v uint8) *float64 {
	if v == math.MaxUint8 {
		return nil
	}
	return floatPtr(float64(v))
}

func uint16Ptr(v uint16) *float64 {
	if v == math.MaxUint16 {
		return nil
	}
	return floatPtr(float64(v))
}

func cadencePtr(v any) *float64 {
	switch x := v.(type) {
	case uint8:
		return uint8Ptr(x)
	case uint16:
		return uint16Ptr(x)
	case float64:
		if isFinite(x) && x >= 0 {
			return floatPtr(x)
		}
	}
	return nil
}

func floatPtr(v float64) *float64 {
	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}
