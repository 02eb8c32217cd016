// Package events notifies downstream consumers once an activity is committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lucasjlepore/sporting/activity"
)

// TypeWorkoutSynthesized is the event_type header of ingestion events.
const TypeWorkoutSynthesized = "workout.synthesized"

// WorkoutSynthesized is published after the rows of an activity commit.
type WorkoutSynthesized struct {
	RunID      string               `json:"run_id"`
	UserID     int64                `json:"user_id"`
	ActivityID int64                `json:"activity_id"`
	Sport      activity.Sport       `json:"sport"`
	Workout    activity.Synthesized `json:"workout"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishWorkout(ctx context.Context, evt WorkoutSynthesized) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishWorkout(context.Context, WorkoutSynthesized) error { return nil }
func (Nop) Close() error                                             { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by user and activity so a
// partition keeps per-activity order.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}}
}

func (p *KafkaPublisher) PublishWorkout(ctx context.Context, evt WorkoutSynthesized) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := activity.Key{UserID: evt.UserID, ActivityID: evt.ActivityID}
	msg := kafka.Message{
		Key:   []byte(key.String()),
		Value: payload,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypeWorkoutSynthesized)},
			{Key: "sport", Value: []byte(evt.Sport.String())},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TypeWorkoutSynthesized, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
