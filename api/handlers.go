package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/calendar"
	"github.com/lucasjlepore/sporting/export"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/plan"
	"github.com/lucasjlepore/sporting/threshold"
)

const headerPlanID = "X-Plan-Id"

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v <= 0 {
		return 0, badRequest("%s must be a positive integer", name)
	}
	return v, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload ingests a multipart "file" for the form field "user_id".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.deps.MaxUploadBytes); err != nil {
		s.respondWithError(w, r, badRequest("multipart form: %v", err))
		return
	}
	userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		s.respondWithError(w, r, badRequest("user_id must be a positive integer"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.respondWithError(w, r, badRequest("file: %v", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondWithError(w, r, badRequest("read file: %v", err))
		return
	}

	receipt, err := s.deps.Ingest.Ingest(r.Context(), userID, data)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleSubmitThreshold(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var th threshold.Threshold
	if err := json.NewDecoder(r.Body).Decode(&th); err != nil {
		s.respondWithError(w, r, badRequest("invalid request body: %v", err))
		return
	}
	th.UserID = userID
	th.Seq = 0

	stored, err := s.deps.Thresholds.Submit(r.Context(), th)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleCurrentThreshold(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	th, err := s.deps.Thresholds.Current(r.Context(), userID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, th)
}

type historyQuery struct {
	Limit int `schema:"limit"`
}

func (s *Server) handleThresholdHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	q := historyQuery{Limit: 50}
	if err := s.query.Decode(&q, r.URL.Query()); err != nil || q.Limit < 0 {
		s.respondWithError(w, r, badRequest("limit must be a non-negative integer"))
		return
	}
	rows, err := s.deps.Thresholds.History(r.Context(), userID, q.Limit)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if rows == nil {
		rows = []threshold.Threshold{}
	}
	respondWithJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	entries, err := s.deps.Views.Calendar(r.Context(), userID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

type workoutsQuery struct {
	LookbackDays *int `schema:"lookback_days"`
}

func (s *Server) handleWorkouts(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var q workoutsQuery
	if err := s.query.Decode(&q, r.URL.Query()); err != nil {
		s.respondWithError(w, r, badRequest("lookback_days must be an integer"))
		return
	}
	lookback := s.deps.Views.Lookback()
	if q.LookbackDays != nil {
		lookback = *q.LookbackDays
	}
	if lookback < 0 || lookback > 3660 {
		s.respondWithError(w, r, badRequest("lookback_days out of range"))
		return
	}
	days, err := s.deps.Views.FullWorkouts(r.Context(), userID, lookback)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, days)
}

func (s *Server) activityPath(r *http.Request) (int64, activity.Sport, int64, error) {
	userID, err := pathInt(r, "user")
	if err != nil {
		return 0, 0, 0, err
	}
	sport, err := activity.ParseSport(mux.Vars(r)["sport"])
	if err != nil {
		return 0, 0, 0, err
	}
	activityID, err := pathInt(r, "activity")
	if err != nil {
		return 0, 0, 0, err
	}
	return userID, sport, activityID, nil
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, sport, activityID, err := s.activityPath(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	laps, err := s.deps.Views.Analysis(r.Context(), userID, sport, activityID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, laps)
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	userID, sport, activityID, err := s.activityPath(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	format, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		s.respondWithError(w, r, badRequest("%v", err))
		return
	}
	points, err := s.deps.Points.Points(r.Context(), sport, userID, activityID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if len(points) == 0 {
		s.respondWithError(w, r, fmt.Errorf("%s activity %d: %w", sport, activityID, calendar.ErrActivityNotFound))
		return
	}

	var (
		body        bytes.Buffer
		contentType string
	)
	switch format {
	case export.Parquet:
		data, err := export.MarshalPointsParquet(points)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		body.Write(data)
		contentType = "application/vnd.apache.parquet"
	default:
		if err := export.WritePointsCSV(&body, points); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%d.%s"`, sport, activityID, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

func (s *Server) handlePublishPlan(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var p fitcodec.PlannedWorkout
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondWithError(w, r, badRequest("invalid request body: %v", err))
		return
	}
	published, err := s.deps.Plans.Publish(r.Context(), userID, p)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.ant.fit")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, published.FileName()))
	w.Header().Set(headerPlanID, published.Record.PlanID)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(published.Data)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	recs, err := s.deps.Plans.List(r.Context(), userID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if recs == nil {
		recs = []plan.Record{}
	}
	respondWithJSON(w, http.StatusOK, recs)
}
