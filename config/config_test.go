package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/store/sqlstore"
	"github.com/lucasjlepore/sporting/threshold"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, sqlstore.SQLite, cfg.Dialect())
	assert.Equal(t, 5, cfg.Database.BootstrapAttempts)
	assert.Equal(t, 2*time.Second, cfg.Database.BootstrapDelay)
	assert.Equal(t, 10*time.Second, cfg.Database.WriteTimeout)
	assert.Equal(t, 92, cfg.Calendar.LookbackDays)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)

	policy, err := cfg.CollisionPolicy()
	require.NoError(t, err)
	assert.Equal(t, activity.Reject, policy)
	tie, err := cfg.TieBreak()
	require.NoError(t, err)
	assert.Equal(t, threshold.LatestInsert, tie)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := []byte(`
database:
  driver: postgres
  dsn: postgres://sporting@db/sporting
ingest:
  collision_policy: overwrite
kafka:
  brokers: [kafka-1:9092, kafka-2:9092]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("SPORTING_CALENDAR__LOOKBACK_DAYS", "30")
	t.Setenv("SPORTING_THRESHOLD__TIE_BREAK", "reject")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, sqlstore.Postgres, cfg.Dialect())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30, cfg.Calendar.LookbackDays)

	policy, err := cfg.CollisionPolicy()
	require.NoError(t, err)
	assert.Equal(t, activity.Overwrite, policy)
	tie, err := cfg.TieBreak()
	require.NoError(t, err)
	assert.Equal(t, threshold.RejectTies, tie)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPORTING_INGEST__COLLISION_POLICY", "merge")

	_, err := Load()
	assert.Error(t, err)
}
