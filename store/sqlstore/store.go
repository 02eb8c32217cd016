// Package sqlstore persists activities, thresholds and plans in Postgres or
// SQLite through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/plan"
	"github.com/lucasjlepore/sporting/threshold"
)

// errRegistryConflict marks a concurrent insert of the same activity key.
var errRegistryConflict = errors.New("activity registered concurrently")

// Dialect selects SQL flavour and table naming.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// ParseDialect accepts "postgres" or "sqlite".
func ParseDialect(value string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(value))) {
	case Postgres, "postgresql", "pgx":
		return Postgres, nil
	case SQLite, "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", value)
	}
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Store is the relational persistence backend.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
	log     *zap.Logger
}

// Open connects to the database. The connection is verified lazily by
// Bootstrap.
func Open(dialect Dialect, dsn string, log *zap.Logger) (*Store, error) {
	db, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time; SQLite serializes writes anyway.
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect, log), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, dialect Dialect, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, now: time.Now, log: log}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WriteActivity stores the full write set of one activity atomically. An
// existing activity with the same key is rejected or replaced according to
// policy; concurrent writers of one key are serialized by the activity
// registry's primary key.
func (s *Store) WriteActivity(ctx context.Context, rows *activity.Rows, policy activity.CollisionPolicy) error {
	if rows == nil || !rows.Sport.Valid() {
		return fmt.Errorf("write activity: invalid write set")
	}
	const maxAttempts = 2
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			return s.writeActivity(ctx, tx, rows, policy)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, errRegistryConflict) {
			return err
		}
		if policy != activity.Overwrite {
			return fmt.Errorf("activity %s: %w", rows.Key(), activity.ErrDuplicateActivity)
		}
		s.log.Warn("concurrent write of same activity, retrying overwrite",
			zap.String("key", rows.Key().String()), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("activity %s: %w", rows.Key(), activity.ErrDuplicateActivity)
}

func (s *Store) writeActivity(ctx context.Context, tx *sqlx.Tx, rows *activity.Rows, policy activity.CollisionPolicy) error {
	key := rows.Key()
	registry := s.table(nsSettings, "activities")

	var existing activity.Sport
	err := tx.GetContext(ctx, &existing,
		tx.Rebind("SELECT sport FROM "+registry+" WHERE user_id = ? AND activity_id = ?"),
		key.UserID, key.ActivityID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("lookup activity %s: %w", key, err)
	case policy == activity.Reject:
		return fmt.Errorf("activity %s: %w", key, activity.ErrDuplicateActivity)
	default:
		if err := s.deleteActivity(ctx, tx, existing, key); err != nil {
			return err
		}
		s.log.Info("overwriting activity", zap.String("key", key.String()), zap.Stringer("previous_sport", existing))
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO "+registry+" (user_id, activity_id, sport, created_at) VALUES (?, ?, ?, ?)"),
		key.UserID, key.ActivityID, rows.Sport, s.now().UTC().Unix()); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("register activity %s: %w", key, errRegistryConflict)
		}
		return fmt.Errorf("register activity %s: %w", key, err)
	}

	ns := rows.Sport.String()
	if err := insertNamed(ctx, tx, s.table(ns, "point"), pointColumns, len(rows.Points), func(i int) any { return rows.Points[i] }); err != nil {
		return fmt.Errorf("insert points: %w", err)
	}
	if err := insertNamed(ctx, tx, s.table(ns, "lap"), lapColumns, len(rows.Laps), func(i int) any { return rows.Laps[i] }); err != nil {
		return fmt.Errorf("insert laps: %w", err)
	}
	if err := insertNamed(ctx, tx, s.table(ns, "syn"), synColumns, 1, func(int) any { return rows.Workout }); err != nil {
		return fmt.Errorf("insert synthesized row: %w", err)
	}
	return nil
}

func (s *Store) deleteActivity(ctx context.Context, tx *sqlx.Tx, sport activity.Sport, key activity.Key) error {
	ns := sport.String()
	for _, table := range []string{s.table(ns, "point"), s.table(ns, "lap"), s.table(ns, "syn"), s.table(nsSettings, "activities")} {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind("DELETE FROM "+table+" WHERE user_id = ? AND activity_id = ?"),
			key.UserID, key.ActivityID); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

func insertNamed(ctx context.Context, tx *sqlx.Tx, table string, cols []string, n int, row func(i int) any) error {
	if n == 0 {
		return nil
	}
	list, params := columns(cols...)
	stmt, err := tx.PrepareNamedContext(ctx, "INSERT INTO "+table+" ("+list+") VALUES ("+params+")")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)); err != nil {
			return err
		}
	}
	return nil
}

// Synthesized returns a user's synthesized rows of one sport in storage
// order, optionally only those starting at or after since.
func (s *Store) Synthesized(ctx context.Context, sport activity.Sport, userID int64, since time.Time) ([]activity.Synthesized, error) {
	query := "SELECT * FROM " + s.table(sport.String(), "syn") + " WHERE user_id = ?"
	args := []any{userID}
	if !since.IsZero() {
		query += " AND date_ts >= ?"
		args = append(args, since.Unix())
	}
	query += " ORDER BY date_ts, activity_id"

	var out []activity.Synthesized
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select %s synthesized rows: %w", sport, err)
	}
	return out, nil
}

// RecentSynthesized returns up to limit rows of one sport, newest first.
func (s *Store) RecentSynthesized(ctx context.Context, sport activity.Sport, userID int64, limit int) ([]activity.Synthesized, error) {
	query := "SELECT * FROM " + s.table(sport.String(), "syn") + " WHERE user_id = ? ORDER BY date_ts DESC, activity_id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var out []activity.Synthesized
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select recent %s rows: %w", sport, err)
	}
	return out, nil
}

// Laps returns the lap rows of one activity in lap order.
func (s *Store) Laps(ctx context.Context, sport activity.Sport, userID, activityID int64) ([]activity.Lap, error) {
	var out []activity.Lap
	err := s.db.SelectContext(ctx, &out,
		s.db.Rebind("SELECT * FROM "+s.table(sport.String(), "lap")+" WHERE user_id = ? AND activity_id = ? ORDER BY lap_index"),
		userID, activityID)
	if err != nil {
		return nil, fmt.Errorf("select %s laps: %w", sport, err)
	}
	return out, nil
}

// Points returns the point rows of one activity in stream order.
func (s *Store) Points(ctx context.Context, sport activity.Sport, userID, activityID int64) ([]activity.Point, error) {
	var out []activity.Point
	err := s.db.SelectContext(ctx, &out,
		s.db.Rebind("SELECT * FROM "+s.table(sport.String(), "point")+" WHERE user_id = ? AND activity_id = ? ORDER BY seq"),
		userID, activityID)
	if err != nil {
		return nil, fmt.Errorf("select %s points: %w", sport, err)
	}
	return out, nil
}

// ActivitySport returns the sport an activity was stored under.
func (s *Store) ActivitySport(ctx context.Context, userID, activityID int64) (activity.Sport, error) {
	var sport activity.Sport
	err := s.db.GetContext(ctx, &sport,
		s.db.Rebind("SELECT sport FROM "+s.table(nsSettings, "activities")+" WHERE user_id = ? AND activity_id = ?"),
		userID, activityID)
	if err != nil {
		return 0, fmt.Errorf("lookup activity %d:%d: %w", userID, activityID, err)
	}
	return sport, nil
}

// AppendThreshold inserts a threshold and returns it with its sequence.
func (s *Store) AppendThreshold(ctx context.Context, t threshold.Threshold) (threshold.Threshold, error) {
	query := s.db.Rebind("INSERT INTO " + s.table(nsParam, "user_threshold") +
		" (user_id, date, ftp_w, threshold_pace_s_per_km, threshold_hr, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING seq")
	if err := s.db.QueryRowxContext(ctx, query,
		t.UserID, t.Date, t.FTPWatts, t.ThresholdPaceSPerKm, t.ThresholdHR, t.CreatedAt).Scan(&t.Seq); err != nil {
		return threshold.Threshold{}, fmt.Errorf("insert threshold: %w", err)
	}
	return t, nil
}

// Thresholds returns a user's thresholds, newest date first and, within a
// date, newest insert first.
func (s *Store) Thresholds(ctx context.Context, userID int64, limit int) ([]threshold.Threshold, error) {
	query := "SELECT * FROM " + s.table(nsParam, "user_threshold") + " WHERE user_id = ? ORDER BY date DESC, seq DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var out []threshold.Threshold
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select thresholds: %w", err)
	}
	return out, nil
}

// SavePlan stores the metadata of a published plan.
func (s *Store) SavePlan(ctx context.Context, rec plan.Record) error {
	list, params := columns(planColumns...)
	if _, err := s.db.NamedExecContext(ctx,
		"INSERT INTO "+s.table(nsPlan, "workouts")+" ("+list+") VALUES ("+params+")", rec); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// Plans returns a user's plans ordered by creation, newest first.
func (s *Store) Plans(ctx context.Context, userID int64) ([]plan.Record, error) {
	var out []plan.Record
	err := s.db.SelectContext(ctx, &out,
		s.db.Rebind("SELECT * FROM "+s.table(nsPlan, "workouts")+" WHERE user_id = ? ORDER BY created_at DESC, plan_id"),
		userID)
	if err != nil {
		return nil, fmt.Errorf("select plans: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
