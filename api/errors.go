package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lucasjlepore/sporting/calendar"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/ingest"
	"github.com/lucasjlepore/sporting/threshold"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Status    int    `json:"-"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// errBadRequest marks malformed request parameters.
var errBadRequest = errors.New("bad request")

// classify maps an error to its HTTP status and kind label.
func classify(err error) (int, string) {
	var conflict *threshold.ConflictError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, fitcodec.ErrInvalidPlan):
		return http.StatusBadRequest, "invalid_plan"
	case errors.Is(err, threshold.ErrInvalidThreshold):
		return http.StatusBadRequest, "invalid_threshold"
	case errors.As(err, &conflict):
		return http.StatusConflict, "threshold_conflict"
	case errors.Is(err, threshold.ErrNoThreshold), errors.Is(err, calendar.ErrActivityNotFound):
		return http.StatusNotFound, "not_found"
	}

	kind := ingest.ErrorKind(err)
	switch kind {
	case ingest.KindParse, ingest.KindUnsupportedSport:
		return http.StatusBadRequest, kind
	case ingest.KindDuplicate:
		return http.StatusConflict, kind
	case ingest.KindCompute:
		return http.StatusUnprocessableEntity, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	apiErr := APIError{Status: status, Kind: kind, Message: err.Error(), RequestID: requestID(r.Context())}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", requestFields(r, zapError(err))...)
		apiErr.Message = http.StatusText(status)
	}
	respondWithJSON(w, status, apiErr)
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
