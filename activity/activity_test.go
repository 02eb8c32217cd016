package activity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIDUsesEpochSeconds(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(1704067200), DeriveID(first))

	withNanos := first.Add(750 * time.Millisecond)
	assert.Equal(t, int64(1704067200), DeriveID(withNanos))

	otherZone := first.In(time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, int64(1704067200), DeriveID(otherZone))
}

func TestParseSport(t *testing.T) {
	cases := map[string]Sport{
		"running":   Running,
		"Running":   Running,
		" cycling ": Cycling,
		"CYCLING":   Cycling,
	}
	for in, want := range cases {
		got, err := ParseSport(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSport("swimming")
	var unsupported *UnsupportedSportError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "swimming", unsupported.Value)
}

func TestSportScanAndValue(t *testing.T) {
	v, err := Cycling.Value()
	require.NoError(t, err)
	assert.Equal(t, "cycling", v)

	var s Sport
	require.NoError(t, s.Scan([]byte("running")))
	assert.Equal(t, Running, s)

	assert.Error(t, s.Scan(nil))
	assert.Error(t, s.Scan("rowing"))

	_, err = Sport(9).Value()
	assert.Error(t, err)
}

func TestParseCollisionPolicy(t *testing.T) {
	p, err := ParseCollisionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Reject, p)

	p, err = ParseCollisionPolicy("Overwrite")
	require.NoError(t, err)
	assert.Equal(t, Overwrite, p)

	_, err = ParseCollisionPolicy("merge")
	assert.Error(t, err)
}

func TestSynthesizedDateAndDuration(t *testing.T) {
	s := Synthesized{UserID: 7, ActivityID: 1704067200, DateTS: 1704067200, DurationS: 3725.9}
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.Date())
	assert.Equal(t, 3725*time.Second+900*time.Millisecond, s.Duration())
	assert.Equal(t, "7:1704067200", s.Key().String())
}
