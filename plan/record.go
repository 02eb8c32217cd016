package plan

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/fitcodec"
)

// Record is the persisted metadata of a published plan.
type Record struct {
	PlanID        string         `db:"plan_id" json:"plan_id"`
	UserID        int64          `db:"user_id" json:"user_id"`
	Name          string         `db:"name" json:"name"`
	Sport         activity.Sport `db:"sport" json:"sport"`
	ScheduledFor  *int64         `db:"scheduled_for" json:"scheduled_for,omitempty"`
	DurationGoalS float64        `db:"duration_goal_s" json:"duration_goal_s"`
	DistanceGoalM float64        `db:"distance_goal_m" json:"distance_goal_m"`
	Steps         Steps          `db:"steps" json:"steps"`
	CreatedAt     int64          `db:"created_at" json:"created_at"`
}

// Steps stores the ordered steps of a plan as a JSON document.
type Steps []fitcodec.PlannedStep

func (s Steps) Value() (driver.Value, error) {
	if s == nil {
		s = Steps{}
	}
	b, err := json.Marshal([]fitcodec.PlannedStep(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Steps) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("scan steps: unsupported type %T", src)
	}
	var steps []fitcodec.PlannedStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return fmt.Errorf("scan steps: %w", err)
	}
	*s = steps
	return nil
}
