package activity

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrDuplicateActivity is returned when an upload derives an activity_id that
// already exists for the user and the collision policy rejects it.
var ErrDuplicateActivity = errors.New("activity already exists")

// DeriveID returns the activity identifier for an upload: the epoch second of
// its first point.
func DeriveID(firstPoint time.Time) int64 {
	return firstPoint.Unix()
}

// Key identifies one activity.
type Key struct {
	UserID     int64 `db:"user_id" json:"user_id"`
	ActivityID int64 `db:"activity_id" json:"activity_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.UserID, k.ActivityID)
}

// Point is one normalized per-second row.
type Point struct {
	UserID      int64    `db:"user_id" json:"user_id"`
	ActivityID  int64    `db:"activity_id" json:"activity_id"`
	Seq         int      `db:"seq" json:"seq"`
	Timestamp   int64    `db:"ts" json:"ts"`
	ElapsedS    float64  `db:"elapsed_s" json:"elapsed_s"`
	Latitude    *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude   *float64 `db:"longitude" json:"longitude,omitempty"`
	AltitudeM   *float64 `db:"altitude_m" json:"altitude_m,omitempty"`
	DistanceM   *float64 `db:"distance_m" json:"distance_m,omitempty"`
	SpeedMPS    *float64 `db:"speed_mps" json:"speed_mps,omitempty"`
	HeartRate   *float64 `db:"heart_rate" json:"heart_rate,omitempty"`
	Cadence     *float64 `db:"cadence" json:"cadence,omitempty"`
	PowerW      *float64 `db:"power_w" json:"power_w,omitempty"`
	PaceSPerKm  *float64 `db:"pace_s_per_km" json:"pace_s_per_km,omitempty"`
	Temperature *float64 `db:"temperature_c" json:"temperature_c,omitempty"`
}

// Time returns the point timestamp in UTC.
func (p Point) Time() time.Time {
	return time.Unix(p.Timestamp, 0).UTC()
}

// Lap is one normalized per-interval row. LapIndex is the per-row lap key.
type Lap struct {
	UserID          int64    `db:"user_id" json:"user_id"`
	ActivityID      int64    `db:"activity_id" json:"activity_id"`
	LapIndex        int      `db:"lap_index" json:"lap_index"`
	StartTS         int64    `db:"start_ts" json:"start_ts"`
	DurationS       float64  `db:"duration_s" json:"duration_s"`
	DistanceM       float64  `db:"distance_m" json:"distance_m"`
	AvgHeartRate    *float64 `db:"avg_heart_rate" json:"avg_heart_rate,omitempty"`
	MaxHeartRate    *float64 `db:"max_heart_rate" json:"max_heart_rate,omitempty"`
	AvgCadence      *float64 `db:"avg_cadence" json:"avg_cadence,omitempty"`
	AvgSpeedMPS     *float64 `db:"avg_speed_mps" json:"avg_speed_mps,omitempty"`
	PaceSPerKm      *float64 `db:"pace_s_per_km" json:"pace_s_per_km,omitempty"`
	AvgPowerW       *float64 `db:"avg_power_w" json:"avg_power_w,omitempty"`
	MaxPowerW       *float64 `db:"max_power_w" json:"max_power_w,omitempty"`
	NormalizedPower *float64 `db:"normalized_power_w" json:"normalized_power_w,omitempty"`
	AscentM         *float64 `db:"ascent_m" json:"ascent_m,omitempty"`
	Calories        *float64 `db:"calories" json:"calories,omitempty"`
	Label           string   `db:"label" json:"label"`
}

// Synthesized is the single summary row produced for every ingested activity.
type Synthesized struct {
	UserID           int64    `db:"user_id" json:"user_id"`
	ActivityID       int64    `db:"activity_id" json:"activity_id"`
	Sport            Sport    `db:"sport" json:"sport"`
	DateTS           int64    `db:"date_ts" json:"date_ts"`
	DurationS        float64  `db:"duration_s" json:"duration_s"`
	DistanceM        float64  `db:"distance_m" json:"distance_m"`
	AvgHeartRate     *float64 `db:"avg_heart_rate" json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *float64 `db:"max_heart_rate" json:"max_heart_rate,omitempty"`
	AvgSpeedMPS      *float64 `db:"avg_speed_mps" json:"avg_speed_mps,omitempty"`
	AvgPaceSPerKm    *float64 `db:"avg_pace_s_per_km" json:"avg_pace_s_per_km,omitempty"`
	AvgCadence       *float64 `db:"avg_cadence" json:"avg_cadence,omitempty"`
	AvgPowerW        *float64 `db:"avg_power_w" json:"avg_power_w,omitempty"`
	MaxPowerW        *float64 `db:"max_power_w" json:"max_power_w,omitempty"`
	NormalizedPower  *float64 `db:"normalized_power_w" json:"normalized_power_w,omitempty"`
	VariabilityIndex *float64 `db:"variability_index" json:"variability_index,omitempty"`
	WorkKJ           *float64 `db:"work_kj" json:"work_kj,omitempty"`
	AscentM          *float64 `db:"ascent_m" json:"ascent_m,omitempty"`
	Calories         *float64 `db:"calories" json:"calories,omitempty"`
	ThresholdValue   *float64 `db:"threshold_value" json:"threshold_value,omitempty"`
	ThresholdSource  string   `db:"threshold_source" json:"threshold_source"`
	IntensityFactor  *float64 `db:"intensity_factor" json:"intensity_factor,omitempty"`
	StressScore      *float64 `db:"stress_score" json:"stress_score,omitempty"`
	LapCount         int      `db:"lap_count" json:"lap_count"`
	PointCount       int      `db:"point_count" json:"point_count"`
	// Structure is a one-line description of an interval session, e.g.
	// "warmup 10m + 4x5m @300W with 3m @150W recoveries + cooldown 8m".
	Structure        string   `db:"structure" json:"structure,omitempty"`
}

// Date returns the activity start in UTC.
func (s Synthesized) Date() time.Time {
	return time.Unix(s.DateTS, 0).UTC()
}

// Duration returns the synthesized duration at nanosecond precision.
func (s Synthesized) Duration() time.Duration {
	return time.Duration(math.Round(s.DurationS * float64(time.Second)))
}

// Key returns the storage key of the row.
func (s Synthesized) Key() Key {
	return Key{UserID: s.UserID, ActivityID: s.ActivityID}
}

// Rows is the full write set of one activity.
type Rows struct {
	Sport   Sport
	Points  []Point
	Laps    []Lap
	Workout Synthesized
}

// Key returns the storage key of the write set.
func (r *Rows) Key() Key {
	return r.Workout.Key()
}

// CollisionPolicy decides what happens when an upload derives an activity_id
// that is already stored for the user.
type CollisionPolicy uint8

const (
	// Reject fails the second upload with ErrDuplicateActivity.
	Reject CollisionPolicy = iota
	// Overwrite replaces every row of the earlier upload, last writer wins.
	Overwrite
)

func (p CollisionPolicy) String() string {
	if p == Overwrite {
		return "overwrite"
	}
	return "reject"
}

// ParseCollisionPolicy parses "reject" or "overwrite". Empty means Reject.
func ParseCollisionPolicy(value string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "reject":
		return Reject, nil
	case "overwrite":
		return Overwrite, nil
	default:
		return Reject, fmt.Errorf("unknown collision policy %q", value)
	}
}
