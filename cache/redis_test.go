package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHashes struct {
	data     map[string]map[string]string
	counters map[string]int64
	expires  map[string]time.Duration
	failing  error
}

func newFake() *fakeHashes {
	return &fakeHashes{
		data:     map[string]map[string]string{},
		counters: map[string]int64{},
		expires:  map[string]time.Duration{},
	}
}

func (f *fakeHashes) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failing != nil {
		return redis.NewStringResult("", f.failing)
	}
	v, ok := f.counters[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.FormatInt(v, 10), nil)
}

func (f *fakeHashes) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeHashes) HGet(_ context.Context, key, field string) *redis.StringCmd {
	if f.failing != nil {
		return redis.NewStringResult("", f.failing)
	}
	v, ok := f.data[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeHashes) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	h := f.data[key]
	if h == nil {
		h = map[string]string{}
		f.data[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = string(values[i+1].([]byte))
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHashes) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	f.expires[key] = d
	return redis.NewBoolResult(true, nil)
}

func (f *fakeHashes) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type view struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

func TestStoreLoadInvalidate(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	r := &Redis{client: fake, ttl: time.Minute}

	var got []view
	gen, hit, err := r.Load(ctx, 7, "calendar", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(0), gen)

	want := []view{{Date: "2024-06-28", Value: 5.14}}
	require.NoError(t, r.Store(ctx, 7, "calendar", gen, want))
	assert.Equal(t, time.Minute, fake.expires["sporting:calendar:7"])

	_, hit, err = r.Load(ctx, 7, "calendar", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)

	require.NoError(t, r.Invalidate(ctx, 7))
	assert.Equal(t, int64(1), fake.counters["sporting:calendar:7:gen"])
	gen, hit, err = r.Load(ctx, 7, "calendar", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(1), gen)
}

func TestStoreAfterInvalidateIsNotServed(t *testing.T) {
	ctx := context.Background()
	r := &Redis{client: newFake(), ttl: time.Minute}

	var got []view
	gen, hit, err := r.Load(ctx, 7, "calendar", &got)
	require.NoError(t, err)
	require.False(t, hit)

	// An ingest commits between the miss and the write of the view it
	// rendered from older rows.
	require.NoError(t, r.Invalidate(ctx, 7))
	require.NoError(t, r.Store(ctx, 7, "calendar", gen, []view{{Date: "2024-06-28", Value: 5.14}}))

	next, hit, err := r.Load(ctx, 7, "calendar", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Greater(t, next, gen)

	fresh := []view{{Date: "2024-06-29", Value: 8}}
	require.NoError(t, r.Store(ctx, 7, "calendar", next, fresh))
	_, hit, err = r.Load(ctx, 7, "calendar", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, fresh, got)
}

func TestLoadReportsBackendError(t *testing.T) {
	fake := newFake()
	fake.failing = errors.New("connection reset")
	r := &Redis{client: fake}

	var got []view
	gen, _, err := r.Load(context.Background(), 7, "calendar", &got)
	assert.ErrorIs(t, err, fake.failing)
	assert.Equal(t, int64(-1), gen)
}
