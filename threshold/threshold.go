// Package threshold keeps the append-only history of a user's reference
// intensities and resolves the one currently in force.
package threshold

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DateLayout is the calendar date format thresholds are keyed by.
const DateLayout = "2006-01-02"

// ErrNoThreshold is returned when a user has never submitted a threshold.
var ErrNoThreshold = errors.New("no threshold recorded")

// ErrInvalidThreshold wraps every validation failure of a submission.
var ErrInvalidThreshold = errors.New("invalid threshold")

// Threshold is one dated submission. Seq is assigned by storage and grows
// with insertion order.
type Threshold struct {
	Seq                 int64    `db:"seq" json:"seq"`
	UserID              int64    `db:"user_id" json:"user_id"`
	Date                string   `db:"date" json:"date"`
	FTPWatts            *float64 `db:"ftp_w" json:"ftp_w,omitempty"`
	ThresholdPaceSPerKm *float64 `db:"threshold_pace_s_per_km" json:"threshold_pace_s_per_km,omitempty"`
	ThresholdHR         *float64 `db:"threshold_hr" json:"threshold_hr,omitempty"`
	CreatedAt           int64    `db:"created_at" json:"created_at"`
}

// FTP returns the functional threshold power, or 0.
func (t Threshold) FTP() float64 {
	return positive(t.FTPWatts)
}

// Pace returns the threshold pace in seconds per kilometre, or 0.
func (t Threshold) Pace() float64 {
	return positive(t.ThresholdPaceSPerKm)
}

// HeartRate returns the threshold heart rate, or 0.
func (t Threshold) HeartRate() float64 {
	return positive(t.ThresholdHR)
}

func positive(v *float64) float64 {
	if v == nil || *v <= 0 {
		return 0
	}
	return *v
}

// Validate checks the submission is usable.
func (t Threshold) Validate() error {
	if t.UserID <= 0 {
		return fmt.Errorf("%w: user id must be positive", ErrInvalidThreshold)
	}
	if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return fmt.Errorf("%w: date %q: %v", ErrInvalidThreshold, t.Date, err)
	}
	if t.FTP() == 0 && t.Pace() == 0 && t.HeartRate() == 0 {
		return fmt.Errorf("%w: at least one threshold value is required", ErrInvalidThreshold)
	}
	return nil
}

// TieBreak decides between several thresholds sharing the latest date.
type TieBreak uint8

const (
	// LatestInsert picks the row inserted last among the tied rows.
	LatestInsert TieBreak = iota
	// RejectTies reports a *ConflictError.
	RejectTies
)

// ParseTieBreak parses "latest_insert" or "reject". Empty means LatestInsert.
func ParseTieBreak(value string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "latest_insert":
		return LatestInsert, nil
	case "reject":
		return RejectTies, nil
	default:
		return LatestInsert, fmt.Errorf("unknown threshold tie break %q", value)
	}
}

// ConflictError reports several thresholds on the latest date under the
// RejectTies policy.
type ConflictError struct {
	UserID int64
	Date   string
	Count  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("threshold conflict: user %d has %d entries dated %s", e.UserID, e.Count, e.Date)
}

// Resolve picks the current threshold: maximum date, then the tie-break.
func Resolve(rows []Threshold, policy TieBreak) (Threshold, error) {
	if len(rows) == 0 {
		return Threshold{}, ErrNoThreshold
	}
	sorted := append([]Threshold(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date > sorted[j].Date
		}
		return sorted[i].Seq > sorted[j].Seq
	})

	top := sorted[0]
	tied := 1
	for _, r := range sorted[1:] {
		if r.Date != top.Date {
			break
		}
		tied++
	}
	if tied > 1 && policy == RejectTies {
		return Threshold{}, &ConflictError{UserID: top.UserID, Date: top.Date, Count: tied}
	}
	return top, nil
}

// Repository persists thresholds. Thresholds returns rows ordered by date
// then seq, both descending; limit <= 0 means no limit.
type Repository interface {
	AppendThreshold(ctx context.Context, t Threshold) (Threshold, error)
	Thresholds(ctx context.Context, userID int64, limit int) ([]Threshold, error)
}

// tieWindow bounds how many rows Current inspects for same-date ties.
const tieWindow = 32

// Tracker appends thresholds and resolves the current one.
type Tracker struct {
	repo   Repository
	policy TieBreak
	now    func() time.Time
	log    *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTieBreak sets the tie-break policy.
func WithTieBreak(p TieBreak) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithClock overrides the clock used for default dates.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTracker returns a Tracker over repo.
func NewTracker(repo Repository, opts ...Option) *Tracker {
	t := &Tracker{repo: repo, policy: LatestInsert, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Submit appends a threshold. An empty date means today (UTC).
func (t *Tracker) Submit(ctx context.Context, th Threshold) (Threshold, error) {
	if th.Date == "" {
		th.Date = t.now().UTC().Format(DateLayout)
	}
	if err := th.Validate(); err != nil {
		return Threshold{}, fmt.Errorf("submit threshold: %w", err)
	}
	th.CreatedAt = t.now().UTC().Unix()
	stored, err := t.repo.AppendThreshold(ctx, th)
	if err != nil {
		return Threshold{}, fmt.Errorf("append threshold: %w", err)
	}
	t.log.Info("threshold appended",
		zap.Int64("user_id", stored.UserID),
		zap.String("date", stored.Date),
		zap.Int64("seq", stored.Seq))
	return stored, nil
}

// Current returns the threshold in force for a user.
func (t *Tracker) Current(ctx context.Context, userID int64) (Threshold, error) {
	rows, err := t.repo.Thresholds(ctx, userID, tieWindow)
	if err != nil {
		return Threshold{}, fmt.Errorf("load thresholds: %w", err)
	}
	return Resolve(rows, t.policy)
}

// History returns up to limit thresholds, newest date first.
func (t *Tracker) History(ctx context.Context, userID int64, limit int) ([]Threshold, error) {
	rows, err := t.repo.Thresholds(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	return rows, nil
}
