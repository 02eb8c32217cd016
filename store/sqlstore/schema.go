package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasjlepore/sporting/activity"
)

// Namespaces that are not per sport.
const (
	nsParam    = "param"
	nsSettings = "settings"
	nsPlan     = "plan"
)

type columnTypes struct {
	float    string
	serialPK string
}

var dialectTypes = map[Dialect]columnTypes{
	Postgres: {float: "DOUBLE PRECISION", serialPK: "BIGSERIAL PRIMARY KEY"},
	SQLite:   {float: "REAL", serialPK: "INTEGER PRIMARY KEY AUTOINCREMENT"},
}

// Bootstrap creates every namespace and table if missing. It is idempotent.
func (s *Store) Bootstrap(ctx context.Context) error {
	stmts := s.schema()
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

func (s *Store) schema() []string {
	t := dialectTypes[s.dialect]
	f := t.float

	var stmts []string
	if s.dialect == Postgres {
		namespaces := []string{nsParam, nsSettings, nsPlan}
		for _, sport := range activity.Sports() {
			namespaces = append(namespaces, sport.String())
		}
		for _, ns := range namespaces {
			stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+ns)
		}
	}

	for _, sport := range activity.Sports() {
		ns := sport.String()
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	user_id BIGINT NOT NULL,
	activity_id BIGINT NOT NULL,
	seq INTEGER NOT NULL,
	ts BIGINT NOT NULL,
	elapsed_s %[2]s NOT NULL,
	latitude %[2]s,
	longitude %[2]s,
	altitude_m %[2]s,
	distance_m %[2]s,
	speed_mps %[2]s,
	heart_rate %[2]s,
	cadence %[2]s,
	power_w %[2]s,
	pace_s_per_km %[2]s,
	temperature_c %[2]s,
	PRIMARY KEY (user_id, activity_id, seq)
)`, s.table(ns, "point"), f),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	user_id BIGINT NOT NULL,
	activity_id BIGINT NOT NULL,
	lap_index INTEGER NOT NULL,
	start_ts BIGINT NOT NULL,
	duration_s %[2]s NOT NULL,
	distance_m %[2]s NOT NULL,
	avg_heart_rate %[2]s,
	max_heart_rate %[2]s,
	avg_cadence %[2]s,
	avg_speed_mps %[2]s,
	pace_s_per_km %[2]s,
	avg_power_w %[2]s,
	max_power_w %[2]s,
	normalized_power_w %[2]s,
	ascent_m %[2]s,
	calories %[2]s,
	label TEXT NOT NULL,
	PRIMARY KEY (user_id, activity_id, lap_index)
)`, s.table(ns, "lap"), f),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	user_id BIGINT NOT NULL,
	activity_id BIGINT NOT NULL,
	sport TEXT NOT NULL,
	date_ts BIGINT NOT NULL,
	duration_s %[2]s NOT NULL,
	distance_m %[2]s NOT NULL,
	avg_heart_rate %[2]s,
	max_heart_rate %[2]s,
	avg_speed_mps %[2]s,
	avg_pace_s_per_km %[2]s,
	avg_cadence %[2]s,
	avg_power_w %[2]s,
	max_power_w %[2]s,
	normalized_power_w %[2]s,
	variability_index %[2]s,
	work_kj %[2]s,
	ascent_m %[2]s,
	calories %[2]s,
	threshold_value %[2]s,
	threshold_source TEXT NOT NULL,
	intensity_factor %[2]s,
	stress_score %[2]s,
	lap_count INTEGER NOT NULL,
	point_count INTEGER NOT NULL,
	structure TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, activity_id)
)`, s.table(ns, "syn"), f),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_syn_user_date ON %s (user_id, date_ts)", ns, s.table(ns, "syn")),
		)
	}

	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	user_id BIGINT NOT NULL,
	activity_id BIGINT NOT NULL,
	sport TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (user_id, activity_id)
)`, s.table(nsSettings, "activities")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq %s,
	user_id BIGINT NOT NULL,
	date TEXT NOT NULL,
	ftp_w %[3]s,
	threshold_pace_s_per_km %[3]s,
	threshold_hr %[3]s,
	created_at BIGINT NOT NULL
)`, s.table(nsParam, "user_threshold"), t.serialPK, f),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS user_threshold_user_date ON %s (user_id, date)", s.table(nsParam, "user_threshold")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	plan_id TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	sport TEXT NOT NULL,
	scheduled_for BIGINT,
	duration_goal_s %[2]s NOT NULL,
	distance_goal_m %[2]s NOT NULL,
	steps TEXT NOT NULL,
	created_at BIGINT NOT NULL
)`, s.table(nsPlan, "workouts"), f),
	)
	return stmts
}

// table returns the qualified name of a table: schema-qualified on Postgres,
// prefixed on SQLite.
func (s *Store) table(ns, name string) string {
	if s.dialect == Postgres {
		return ns + "." + name
	}
	return ns + "_" + name
}

func columns(cols ...string) (list, named string) {
	params := make([]string, len(cols))
	for i, c := range cols {
		params[i] = ":" + c
	}
	return strings.Join(cols, ", "), strings.Join(params, ", ")
}

var (
	pointColumns = []string{
		"user_id", "activity_id", "seq", "ts", "elapsed_s", "latitude", "longitude", "altitude_m",
		"distance_m", "speed_mps", "heart_rate", "cadence", "power_w", "pace_s_per_km", "temperature_c",
	}
	lapColumns = []string{
		"user_id", "activity_id", "lap_index", "start_ts", "duration_s", "distance_m", "avg_heart_rate",
		"max_heart_rate", "avg_cadence", "avg_speed_mps", "pace_s_per_km", "avg_power_w", "max_power_w",
		"normalized_power_w", "ascent_m", "calories", "label",
	}
	synColumns = []string{
		"user_id", "activity_id", "sport", "date_ts", "duration_s", "distance_m", "avg_heart_rate",
		"max_heart_rate", "avg_speed_mps", "avg_pace_s_per_km", "avg_cadence", "avg_power_w", "max_power_w",
		"normalized_power_w", "variability_index", "work_kj", "ascent_m", "calories", "threshold_value",
		"threshold_source", "intensity_factor", "stress_score", "lap_count", "point_count", "structure",
	}
	planColumns = []string{
		"plan_id", "user_id", "name", "sport", "scheduled_for", "duration_goal_s", "distance_goal_m", "steps", "created_at",
	}
)
