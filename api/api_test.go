package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/sporting/calendar"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/fitcodec/fitcodectest"
	"github.com/lucasjlepore/sporting/ingest"
	"github.com/lucasjlepore/sporting/plan"
	"github.com/lucasjlepore/sporting/store/sqlstore"
	"github.com/lucasjlepore/sporting/threshold"
)

var (
	rideStart = time.Date(2024, 6, 28, 7, 0, 0, 0, time.UTC)
	today     = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "api.db") + "?_pragma=busy_timeout(5000)"
	st, err := sqlstore.Open(sqlstore.SQLite, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Bootstrap(context.Background()))

	tracker := threshold.NewTracker(st, threshold.WithClock(func() time.Time { return today }))
	srv := NewServer(Deps{
		Ingest:     ingest.NewService(st, tracker),
		Thresholds: tracker,
		Views:      calendar.New(st, calendar.WithClock(func() time.Time { return today })),
		Plans:      plan.NewService(st),
		Points:     st,
		Health:     st.Ping,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func upload(t *testing.T, ts *httptest.Server, userID string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("user_id", userID))
	part, err := mw.CreateFormFile("file", "ride.fit")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/uploadfile/", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, dst any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp
}

func TestUploadThenReadViews(t *testing.T) {
	ts := newTestServer(t)
	ride := fitcodectest.MustBuild(t, fitcodectest.Cycling(rideStart, 1800))

	resp := upload(t, ts, "7", ride)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
	var receipt ingest.Receipt
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&receipt))
	assert.Equal(t, rideStart.Unix(), receipt.ActivityID)

	dup := upload(t, ts, "7", ride)
	assert.Equal(t, http.StatusConflict, dup.StatusCode)
	var apiErr APIError
	require.NoError(t, json.NewDecoder(dup.Body).Decode(&apiErr))
	assert.Equal(t, "duplicate", apiErr.Kind)

	var entries []calendar.Entry
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/users/7/calendar", &entries).StatusCode)
	require.Len(t, entries, 1)
	assert.Equal(t, "cycling", entries[0].Title)

	var days []calendar.Day
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/users/7/workouts?lookback_days=7", &days).StatusCode)
	require.Len(t, days, 8)
	assert.Equal(t, 1, days[5].Workouts)

	var laps []calendar.LapView
	url := fmt.Sprintf("%s/users/7/analysis/cycling/%d", ts.URL, receipt.ActivityID)
	require.Equal(t, http.StatusOK, getJSON(t, url, &laps).StatusCode)
	assert.Len(t, laps, receipt.Laps)

	missing := getJSON(t, fmt.Sprintf("%s/users/8/analysis/cycling/%d", ts.URL, receipt.ActivityID), nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	csvResp, err := http.Get(fmt.Sprintf("%s/users/7/activities/cycling/%d/points.csv", ts.URL, receipt.ActivityID))
	require.NoError(t, err)
	defer csvResp.Body.Close()
	assert.Equal(t, http.StatusOK, csvResp.StatusCode)
	assert.Equal(t, "text/csv", csvResp.Header.Get("Content-Type"))
}

func TestUploadRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	resp := upload(t, ts, "7", []byte("garbage"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var apiErr APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "parse", apiErr.Kind)
	assert.NotEmpty(t, apiErr.RequestID)

	resp = upload(t, ts, "zero", fitcodectest.MustBuild(t, fitcodectest.Running(rideStart, 60)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	unknown := getJSON(t, ts.URL+"/users/7/analysis/rowing/1", nil)
	assert.Equal(t, http.StatusBadRequest, unknown.StatusCode)
}

func TestThresholdRoutes(t *testing.T) {
	ts := newTestServer(t)

	none := getJSON(t, ts.URL+"/users/7/threshold", nil)
	assert.Equal(t, http.StatusNotFound, none.StatusCode)

	post := func(body string) int {
		resp, err := http.Post(ts.URL+"/users/7/thresholds", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusCreated, post(`{"date":"2024-06-01","ftp_w":250}`))
	assert.Equal(t, http.StatusCreated, post(`{"ftp_w":260}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"date":"2024-06-01"}`))
	assert.Equal(t, http.StatusBadRequest, post(`not json`))

	var current threshold.Threshold
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/users/7/threshold", &current).StatusCode)
	assert.Equal(t, "2024-06-30", current.Date)
	assert.Equal(t, 260.0, current.FTP())

	var history []threshold.Threshold
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/users/7/thresholds?limit=1", &history).StatusCode)
	assert.Len(t, history, 1)
}

func TestPublishPlanRoute(t *testing.T) {
	ts := newTestServer(t)
	body := `{"name":"Sweet spot","sport":"cycling","steps":[
		{"intensity":"warmup","duration_s":600},
		{"intensity":"active","duration_s":1200,"target":{"kind":"power","low":230,"high":250}}]}`

	resp, err := http.Post(ts.URL+"/users/7/plans", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	planID := resp.Header.Get(headerPlanID)
	assert.NotEmpty(t, planID)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	decoded, err := fitcodec.NewReader().DecodeWorkout(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1800.0, decoded.DurationGoalS)

	var recs []plan.Record
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/users/7/plans", &recs).StatusCode)
	require.Len(t, recs, 1)
	assert.Equal(t, planID, recs[0].PlanID)

	bad, err := http.Post(ts.URL+"/users/7/plans", "application/json", strings.NewReader(`{"name":"x","sport":"cycling","steps":[]}`))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", nil).StatusCode)
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/metrics", nil).StatusCode)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{&threshold.ConflictError{UserID: 1, Date: "2024-01-01", Count: 2}, http.StatusConflict, "threshold_conflict"},
		{fmt.Errorf("x: %w", fitcodec.ErrInvalidPlan), http.StatusBadRequest, "invalid_plan"},
		{threshold.ErrNoThreshold, http.StatusNotFound, "not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "unexpected"},
	}
	for _, c := range cases {
		status, kind := classify(c.err)
		assert.Equal(t, c.status, status, "%v", c.err)
		assert.Equal(t, c.kind, kind, "%v", c.err)
	}
}
