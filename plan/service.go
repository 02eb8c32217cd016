// Package plan publishes planned workouts: it encodes them for devices and
// keeps their metadata.
package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/observability"
)

// Repository stores plan metadata.
type Repository interface {
	SavePlan(ctx context.Context, rec Record) error
	Plans(ctx context.Context, userID int64) ([]Record, error)
}

// Published is the outcome of Publish: the stored metadata and the encoded
// workout file.
type Published struct {
	Record Record
	Data   []byte
}

// FileName returns a device-friendly name for the encoded file.
func (p *Published) FileName() string {
	return p.Record.PlanID + ".fit"
}

type Service struct {
	repo Repository
	now  func() time.Time
	log  *zap.Logger
}

type Option func(*Service)

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

// NewService returns a Service. A nil repo encodes without persisting.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish encodes the plan and then records its metadata. When encoding
// fails nothing is stored.
func (s *Service) Publish(ctx context.Context, userID int64, p fitcodec.PlannedWorkout) (*Published, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("user id must be positive, got %d", userID)
	}
	normalized, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	created := s.now().UTC()
	data, err := fitcodec.EncodeWorkout(normalized, created)
	if err != nil {
		return nil, err
	}
	observability.RecordPlanEncoded()

	rec := Record{
		PlanID:        uuid.NewString(),
		UserID:        userID,
		Name:          normalized.Name,
		Sport:         normalized.Sport,
		DurationGoalS: normalized.DurationGoalS,
		DistanceGoalM: normalized.DistanceGoalM,
		Steps:         Steps(normalized.Steps),
		CreatedAt:     created.Unix(),
	}
	if !normalized.ScheduledFor.IsZero() {
		at := normalized.ScheduledFor.Unix()
		rec.ScheduledFor = &at
	}

	if s.repo != nil {
		if err := s.repo.SavePlan(ctx, rec); err != nil {
			return nil, fmt.Errorf("save plan %s: %w", rec.PlanID, err)
		}
	}
	s.log.Info("workout plan published",
		zap.String("plan_id", rec.PlanID),
		zap.Int64("user_id", userID),
		zap.Stringer("sport", rec.Sport),
		zap.Int("steps", len(rec.Steps)),
		zap.Int("bytes", len(data)))
	return &Published{Record: rec, Data: data}, nil
}

// List returns the stored plans of a user.
func (s *Service) List(ctx context.Context, userID int64) ([]Record, error) {
	if s.repo == nil {
		return nil, nil
	}
	recs, err := s.repo.Plans(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return recs, nil
}
