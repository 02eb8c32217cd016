// Package calendar builds the read-side views over synthesized workouts: the
// sport-tagged calendar, the daily training timeline and single-activity lap
// analysis.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lucasjlepore/sporting/activity"
)

// DefaultLookbackDays is the timeline length used when none is given.
const DefaultLookbackDays = 92

const dayLayout = "2006-01-02"

// ErrActivityNotFound is returned by Analysis when the activity has no laps.
var ErrActivityNotFound = errors.New("activity not found")

// Source reads persisted rows. *sqlstore.Store satisfies it.
type Source interface {
	Synthesized(ctx context.Context, sport activity.Sport, userID int64, since time.Time) ([]activity.Synthesized, error)
	Laps(ctx context.Context, sport activity.Sport, userID, activityID int64) ([]activity.Lap, error)
}

// Cache stores rendered views per user. Load reports the user's cache
// generation alongside the hit; Store writes under that generation so a view
// read before an invalidation is never served after it.
type Cache interface {
	Load(ctx context.Context, userID int64, view string, dst any) (gen int64, hit bool, err error)
	Store(ctx context.Context, userID int64, view string, gen int64, v any) error
}

// Entry is one calendar item.
type Entry struct {
	ActivityID  int64     `json:"activity_id"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationS   float64   `json:"duration_s"`
	DistanceM   float64   `json:"distance_m"`
	StressScore *float64  `json:"stress_score,omitempty"`
}

// Aggregator merges synthesized rows across sports.
type Aggregator struct {
	src      Source
	cache    Cache
	now      func() time.Time
	lookback int
	log      *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCache enables read-through caching of the calendar and timeline views.
func WithCache(c Cache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithClock overrides the clock that anchors the timeline.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLookback sets the default timeline length in days.
func WithLookback(days int) Option {
	return func(a *Aggregator) {
		if days >= 0 {
			a.lookback = days
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

func New(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{src: src, now: time.Now, lookback: DefaultLookbackDays, log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Lookback returns the configured default timeline length.
func (a *Aggregator) Lookback() int {
	return a.lookback
}

// Calendar returns every synthesized workout of the user across all sports,
// tagged with its sport. Within a sport rows keep storage order.
func (a *Aggregator) Calendar(ctx context.Context, userID int64) ([]Entry, error) {
	var entries []Entry
	gen, hit := a.cached(ctx, userID, "calendar", &entries)
	if hit {
		return entries, nil
	}

	entries = []Entry{}
	for _, sport := range activity.Sports() {
		rows, err := a.src.Synthesized(ctx, sport, userID, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("read %s workouts: %w", sport, err)
		}
		for _, row := range rows {
			start := row.Date()
			entries = append(entries, Entry{
				ActivityID:  row.ActivityID,
				Title:       sport.String(),
				Date:        start.Format(dayLayout),
				Start:       start,
				End:         start.Add(row.Duration()),
				DurationS:   row.DurationS,
				DistanceM:   row.DistanceM,
				StressScore: row.StressScore,
			})
		}
	}

	a.store(ctx, userID, "calendar", gen, entries)
	return entries, nil
}

// FullWorkouts returns one row per day from today-lookback to today
// inclusive. Days without a workout keep nil metrics.
func (a *Aggregator) FullWorkouts(ctx context.Context, userID int64, lookback int) ([]Day, error) {
	if lookback < 0 {
		return nil, fmt.Errorf("lookback must not be negative, got %d", lookback)
	}
	today := truncateDay(a.now())
	first := today.AddDate(0, 0, -lookback)
	view := fmt.Sprintf("workouts:%d:%s", lookback, today.Format(dayLayout))

	var days []Day
	gen, hit := a.cached(ctx, userID, view, &days)
	if hit {
		return days, nil
	}

	byDay := make(map[string]*totals)
	for _, sport := range activity.Sports() {
		rows, err := a.src.Synthesized(ctx, sport, userID, first)
		if err != nil {
			return nil, fmt.Errorf("read %s workouts: %w", sport, err)
		}
		for _, row := range rows {
			key := row.Date().Format(dayLayout)
			t := byDay[key]
			if t == nil {
				t = &totals{}
				byDay[key] = t
			}
			t.add(sport, row)
		}
	}

	days = make([]Day, 0, lookback+1)
	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		days = append(days, newDay(d, byDay[d.Format(dayLayout)]))
	}

	a.store(ctx, userID, view, gen, days)
	return days, nil
}

// LapView is a lap as shown in activity analysis.
type LapView struct {
	Start            time.Time `json:"start"`
	DurationS        float64   `json:"duration_s"`
	DistanceKm       float64   `json:"distance_km"`
	AvgHeartRate     *float64  `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *float64  `json:"max_heart_rate,omitempty"`
	AvgCadence       *float64  `json:"avg_cadence,omitempty"`
	AvgSpeedMPS      *float64  `json:"avg_speed_mps,omitempty"`
	PaceSPerKm       *float64  `json:"pace_s_per_km,omitempty"`
	AvgPowerW        *float64  `json:"avg_power_w,omitempty"`
	MaxPowerW        *float64  `json:"max_power_w,omitempty"`
	NormalizedPowerW *float64  `json:"normalized_power_w,omitempty"`
	AscentM          *float64  `json:"ascent_m,omitempty"`
	Calories         *float64  `json:"calories,omitempty"`
	Label            string    `json:"label"`
}

// Analysis returns the laps of one activity in lap order, without identifier
// columns and with distance in kilometres.
func (a *Aggregator) Analysis(ctx context.Context, userID int64, sport activity.Sport, activityID int64) ([]LapView, error) {
	laps, err := a.src.Laps(ctx, sport, userID, activityID)
	if err != nil {
		return nil, fmt.Errorf("read laps: %w", err)
	}
	if len(laps) == 0 {
		return nil, fmt.Errorf("%s activity %d: %w", sport, activityID, ErrActivityNotFound)
	}
	sort.SliceStable(laps, func(i, j int) bool { return laps[i].LapIndex < laps[j].LapIndex })

	views := make([]LapView, len(laps))
	for i, lap := range laps {
		views[i] = LapView{
			Start:            time.Unix(lap.StartTS, 0).UTC(),
			DurationS:        lap.DurationS,
			DistanceKm:       Kilometres(lap.DistanceM),
			AvgHeartRate:     lap.AvgHeartRate,
			MaxHeartRate:     lap.MaxHeartRate,
			AvgCadence:       lap.AvgCadence,
			AvgSpeedMPS:      lap.AvgSpeedMPS,
			PaceSPerKm:       lap.PaceSPerKm,
			AvgPowerW:        lap.AvgPowerW,
			MaxPowerW:        lap.MaxPowerW,
			NormalizedPowerW: lap.NormalizedPower,
			AscentM:          lap.AscentM,
			Calories:         lap.Calories,
			Label:            lap.Label,
		}
	}
	return views, nil
}

// Kilometres converts metres to kilometres rounded to 2 decimals.
func Kilometres(m float64) float64 {
	return math.Round(m/1000*100) / 100
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// cached returns the generation to store a fresh view under. A negative
// generation means it could not be read and the view is not written back.
func (a *Aggregator) cached(ctx context.Context, userID int64, view string, dst any) (int64, bool) {
	if a.cache == nil {
		return -1, false
	}
	gen, hit, err := a.cache.Load(ctx, userID, view, dst)
	if err != nil {
		a.log.Warn("calendar cache read failed", zap.Int64("user_id", userID), zap.String("view", view), zap.Error(err))
		return gen, false
	}
	return gen, hit
}

func (a *Aggregator) store(ctx context.Context, userID int64, view string, gen int64, v any) {
	if a.cache == nil || gen < 0 {
		return
	}
	if err := a.cache.Store(ctx, userID, view, gen, v); err != nil {
		a.log.Warn("calendar cache write failed", zap.Int64("user_id", userID), zap.String("view", view), zap.Error(err))
	}
}
