// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/calendar"
	"github.com/lucasjlepore/sporting/fitcodec"
	"github.com/lucasjlepore/sporting/ingest"
	"github.com/lucasjlepore/sporting/plan"
	"github.com/lucasjlepore/sporting/threshold"
)

const defaultMaxUploadBytes = 32 << 20

type Ingester interface {
	Ingest(ctx context.Context, userID int64, data []byte) (*ingest.Receipt, error)
}

type Thresholds interface {
	Submit(ctx context.Context, th threshold.Threshold) (threshold.Threshold, error)
	Current(ctx context.Context, userID int64) (threshold.Threshold, error)
	History(ctx context.Context, userID int64, limit int) ([]threshold.Threshold, error)
}

type Views interface {
	Calendar(ctx context.Context, userID int64) ([]calendar.Entry, error)
	FullWorkouts(ctx context.Context, userID int64, lookback int) ([]calendar.Day, error)
	Analysis(ctx context.Context, userID int64, sport activity.Sport, activityID int64) ([]calendar.LapView, error)
	Lookback() int
}

type Plans interface {
	Publish(ctx context.Context, userID int64, p fitcodec.PlannedWorkout) (*plan.Published, error)
	List(ctx context.Context, userID int64) ([]plan.Record, error)
}

type PointReader interface {
	Points(ctx context.Context, sport activity.Sport, userID, activityID int64) ([]activity.Point, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Ingest     Ingester
	Thresholds Thresholds
	Views      Views
	Plans      Plans
	Points     PointReader
	// Health reports whether the backing store is reachable.
	Health         func(ctx context.Context) error
	MaxUploadBytes int64
	AllowedOrigins []string
	Log            *zap.Logger
}

// Server routes requests to the pipeline.
type Server struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler
	query   *schema.Decoder
	log     *zap.Logger
}

func NewServer(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	query := schema.NewDecoder()
	query.IgnoreUnknownKeys(true)

	s := &Server{deps: deps, router: mux.NewRouter(), query: query, log: deps.Log}
	s.setupRoutes()

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	var h http.Handler = s.router
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", headerRequestID}),
		handlers.ExposedHeaders([]string{headerRequestID, headerPlanID}),
	)(h)
	h = s.accessLog(h)
	h = withRequestID(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}))(h)
	s.handler = h
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/uploadfile/", s.handleUpload).Methods(http.MethodPost)

	users := r.PathPrefix("/users/{user:[0-9]+}").Subrouter()
	users.HandleFunc("/thresholds", s.handleSubmitThreshold).Methods(http.MethodPost)
	users.HandleFunc("/thresholds", s.handleThresholdHistory).Methods(http.MethodGet)
	users.HandleFunc("/threshold", s.handleCurrentThreshold).Methods(http.MethodGet)
	users.HandleFunc("/calendar", s.handleCalendar).Methods(http.MethodGet)
	users.HandleFunc("/workouts", s.handleWorkouts).Methods(http.MethodGet)
	users.HandleFunc("/analysis/{sport}/{activity:[0-9]+}", s.handleAnalysis).Methods(http.MethodGet)
	users.HandleFunc("/activities/{sport}/{activity:[0-9]+}/points.{format:csv|parquet}", s.handlePoints).Methods(http.MethodGet)
	users.HandleFunc("/plans", s.handlePublishPlan).Methods(http.MethodPost)
	users.HandleFunc("/plans", s.handleListPlans).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type recoveryLogger struct{ log *zap.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.log.Error("panic recovered", zap.Any("panic", v))
}
