// Package ingest runs one uploaded activity file through decoding, sport
// dispatch, synthesis and the atomic write of its rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/events"
	"github.com/lucasjlepore/sporting/feeder"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/observability"
	"github.com/lucasjlepore/sporting/threshold"
)

// DefaultWriteTimeout bounds the transaction of one activity.
const DefaultWriteTimeout = 10 * time.Second

// Writer persists the rows of one activity atomically.
type Writer interface {
	WriteActivity(ctx context.Context, rows *activity.Rows, policy activity.CollisionPolicy) error
}

// Thresholds resolves the threshold in force for a user.
type Thresholds interface {
	Current(ctx context.Context, userID int64) (threshold.Threshold, error)
}

// Invalidator drops cached views of a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Receipt describes a committed activity.
type Receipt struct {
	RunID      string               `json:"run_id"`
	ActivityID int64                `json:"activity_id"`
	Sport      activity.Sport       `json:"sport"`
	Workout    activity.Synthesized `json:"workout"`
	Points     int                  `json:"points"`
	Laps       int                  `json:"laps"`
	Skipped    int                  `json:"skipped_messages"`
}

// Service is the upload pipeline.
type Service struct {
	reader       *fitcodec.Reader
	writer       Writer
	thresholds   Thresholds
	invalidator  Invalidator
	publisher    events.Publisher
	policy       activity.CollisionPolicy
	writeTimeout time.Duration
	now          func() time.Time
	log          *zap.Logger
}

type Option func(*Service)

func WithCollisionPolicy(p activity.CollisionPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithInvalidator registers the cache dropped after every commit.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithPublisher registers the post-commit event sink.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wires the pipeline. thresholds may be nil, in which case every
// activity is computed without a user threshold.
func NewService(writer Writer, thresholds Thresholds, opts ...Option) *Service {
	s := &Service{
		reader:       fitcodec.NewReader(),
		writer:       writer,
		thresholds:   thresholds,
		publisher:    events.Nop{},
		policy:       activity.Reject,
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest decodes, synthesizes and stores one activity file. Either every row
// of the activity is committed or none is.
func (s *Service) Ingest(ctx context.Context, userID int64, data []byte) (*Receipt, error) {
	started := s.now()
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID), zap.Int64("user_id", userID))

	receipt, err := s.ingest(ctx, log, runID, userID, data)

	sport := ""
	points := 0
	if receipt != nil {
		sport = receipt.Sport.String()
		points = receipt.Points
	} else {
		var unsupported *activity.UnsupportedSportError
		var failure *feeder.ComputeFailure
		switch {
		case errors.As(err, &failure):
			sport = failure.Sport.String()
		case errors.As(err, &unsupported):
			sport = "unsupported"
		}
	}
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
		log.Warn("ingest failed", zap.String("kind", outcome), zap.Error(err))
	}
	observability.RecordIngest(sport, outcome, s.now().Sub(started), points)
	return receipt, err
}

func (s *Service) ingest(ctx context.Context, log *zap.Logger, runID string, userID int64, data []byte) (*Receipt, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("user id must be positive, got %d", userID)
	}

	decoded, err := s.reader.DecodeActivity(data)
	if err != nil {
		return nil, err
	}
	f, activityID, err := feeder.Route(decoded)
	if err != nil {
		return nil, err
	}
	sport := f.Sport()
	log = log.With(zap.Int64("activity_id", activityID), zap.Stringer("sport", sport))

	th, err := s.currentThreshold(ctx, log, userID)
	if err != nil {
		return nil, err
	}

	rows, err := f.Compute(feeder.Input{
		UserID:     userID,
		ActivityID: activityID,
		Session:    decoded.Sessions[0],
		Points:     decoded.Points,
		Laps:       decoded.Laps,
		Threshold:  th,
	})
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.writer.WriteActivity(writeCtx, rows, s.policy); err != nil {
		if errors.Is(err, activity.ErrDuplicateActivity) {
			return nil, fmt.Errorf("%s activity %d for user %d: %w", sport, activityID, userID, err)
		}
		return nil, &feeder.ComputeFailure{Sport: sport, ActivityID: activityID, Stage: feeder.StagePersist, Err: err}
	}
	log.Info("activity stored",
		zap.Int("points", len(rows.Points)),
		zap.Int("laps", len(rows.Laps)),
		zap.String("threshold_source", rows.Workout.ThresholdSource))

	s.afterCommit(ctx, log, runID, rows)

	skipped := 0
	if decoded.Inventory != nil {
		skipped = decoded.Inventory.Skipped
	}
	return &Receipt{
		RunID:      runID,
		ActivityID: activityID,
		Sport:      sport,
		Workout:    rows.Workout,
		Points:     len(rows.Points),
		Laps:       len(rows.Laps),
		Skipped:    skipped,
	}, nil
}

func (s *Service) currentThreshold(ctx context.Context, log *zap.Logger, userID int64) (*threshold.Threshold, error) {
	if s.thresholds == nil {
		return nil, nil
	}
	th, err := s.thresholds.Current(ctx, userID)
	var conflict *threshold.ConflictError
	switch {
	case err == nil:
		return &th, nil
	case errors.Is(err, threshold.ErrNoThreshold):
		log.Debug("no threshold recorded")
		return nil, nil
	case errors.As(err, &conflict):
		log.Warn("threshold conflict, computing without threshold", zap.String("date", conflict.Date), zap.Int("rows", conflict.Count))
		return nil, nil
	default:
		return nil, fmt.Errorf("current threshold: %w", err)
	}
}

// afterCommit runs the best-effort steps that follow a committed write. Their
// failures are logged only.
func (s *Service) afterCommit(ctx context.Context, log *zap.Logger, runID string, rows *activity.Rows) {
	key := rows.Key()
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, key.UserID); err != nil {
			log.Warn("cache invalidation failed", zap.Error(err))
		}
	}
	evt := events.WorkoutSynthesized{
		RunID:      runID,
		UserID:     key.UserID,
		ActivityID: key.ActivityID,
		Sport:      rows.Sport,
		Workout:    rows.Workout,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.PublishWorkout(ctx, evt); err != nil {
		log.Warn("event publish failed", zap.Error(err))
	}
}

// Error kinds reported by ErrorKind.
const (
	KindParse            = "parse"
	KindUnsupportedSport = "unsupported_sport"
	KindDuplicate        = "duplicate"
	KindCompute          = "compute"
	KindPersist          = "persist"
	KindUnexpected       = "unexpected"
)

// ErrorKind classifies an Ingest error into a stable label.
func ErrorKind(err error) string {
	var (
		parse       *fitcodec.ParseError
		unsupported *activity.UnsupportedSportError
		failure     *feeder.ComputeFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &parse):
		return KindParse
	case errors.As(err, &unsupported):
		return KindUnsupportedSport
	case errors.Is(err, activity.ErrDuplicateActivity):
		return KindDuplicate
	case errors.As(err, &failure):
		if failure.Stage == feeder.StagePersist {
			return KindPersist
		}
		return KindCompute
	default:
		return KindUnexpected
	}
}
