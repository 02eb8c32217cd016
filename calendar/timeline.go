package calendar

import (
	"math"
	"time"

	"github.com/lucasjlepore/sporting/activity"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
)

// Clock is a duration split into components. Days carries everything past
// 24 hours so TotalSeconds restores any length.
type Clock struct {
	Days    int     `json:"days"`
	Hours   int     `json:"hours"`
	Minutes int     `json:"minutes"`
	Seconds float64 `json:"seconds"`
}

// SplitDuration decomposes a non-negative number of seconds.
func SplitDuration(totalS float64) Clock {
	if totalS <= 0 || math.IsNaN(totalS) || math.IsInf(totalS, 0) {
		return Clock{}
	}
	whole := math.Floor(totalS)
	rest := int64(whole)
	c := Clock{
		Days:    int(rest / secondsPerDay),
		Hours:   int(rest % secondsPerDay / secondsPerHour),
		Minutes: int(rest % secondsPerHour / secondsPerMinute),
	}
	c.Seconds = float64(rest%secondsPerMinute) + (totalS - whole)
	return c
}

// TotalSeconds reconstitutes the duration.
func (c Clock) TotalSeconds() float64 {
	return float64(c.Days*secondsPerDay+c.Hours*secondsPerHour+c.Minutes*secondsPerMinute) + c.Seconds
}

// Day is one row of the training timeline.
type Day struct {
	Date        string   `json:"date"`
	ISOYear     int      `json:"iso_year"`
	ISOWeek     int      `json:"iso_week"`
	Workouts    int      `json:"workouts"`
	Sports      []string `json:"sports,omitempty"`
	DurationS   *float64 `json:"duration_s,omitempty"`
	Duration    *Clock   `json:"duration,omitempty"`
	DistanceM   *float64 `json:"distance_m,omitempty"`
	StressScore *float64 `json:"stress_score,omitempty"`
}

// HasWorkout reports whether any workout fell on the day.
func (d Day) HasWorkout() bool {
	return d.Workouts > 0
}

type totals struct {
	count     int
	sports    []string
	durationS float64
	distanceM float64
	stress    float64
	hasStress bool
}

func (t *totals) add(sport activity.Sport, row activity.Synthesized) {
	t.count++
	name := sport.String()
	seen := false
	for _, s := range t.sports {
		if s == name {
			seen = true
			break
		}
	}
	if !seen {
		t.sports = append(t.sports, name)
	}
	t.durationS += row.DurationS
	t.distanceM += row.DistanceM
	if row.StressScore != nil {
		t.stress += *row.StressScore
		t.hasStress = true
	}
}

func newDay(date time.Time, t *totals) Day {
	year, week := date.ISOWeek()
	d := Day{Date: date.Format(dayLayout), ISOYear: year, ISOWeek: week}
	if t == nil {
		return d
	}
	duration := t.durationS
	distance := t.distanceM
	clock := SplitDuration(duration)
	d.Workouts = t.count
	d.Sports = t.sports
	d.DurationS = &duration
	d.Duration = &clock
	d.DistanceM = &distance
	if t.hasStress {
		stress := t.stress
		d.StressScore = &stress
	}
	return d
}
