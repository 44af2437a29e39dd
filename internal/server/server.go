package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"voice-geo-go/internal/events"
	"voice-geo-go/internal/ingest"
	"voice-geo-go/internal/live"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/metrics"
	"voice-geo-go/internal/pipeline"
)

// Runner executes one pipeline run for a request.
type Runner interface {
	Run(ctx context.Context, src ingest.Source, deadline time.Duration) (pipeline.Result, error)
}

// EventStore is the read-only historical events lookup.
type EventStore interface {
	FetchEvents(ctx context.Context, start, end time.Time) ([]events.Event, error)
}

// CaptureControl drives the background microphone task.
type CaptureControl interface {
	Start() error
	Stop() error
	Status() live.Status
}

// Deps are the collaborators built once in main. Events, Capture and Hub may
// be nil; their endpoints then answer 503.
type Deps struct {
	Runner  Runner
	Events  EventStore
	Capture CaptureControl
	Hub     *live.Hub
	Metrics *metrics.Metrics
	Log     *logger.Logger

	MaxUploadBytes  int64
	MaxScanSeconds  int
	DefaultLocation string
}

type Server struct {
	d Deps

	// selected by /sendRequest/newlocation; used when /scan names no feed
	mu       sync.RWMutex
	location string
}

func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 50 << 20
	}
	if d.MaxScanSeconds <= 0 {
		d.MaxScanSeconds = 120
	}
	name, _ := ingest.ResolvePreset(d.DefaultLocation, ingest.DefaultPreset)
	return &Server{d: d, location: name}
}

// Handler returns the routed mux wrapped with request ids and access logs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/transcribe", s.handleTranscribe)
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/streams", s.handleStreams)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/capture/start", s.handleCaptureStart)
	mux.HandleFunc("/capture/stop", s.handleCaptureStop)
	mux.HandleFunc("/capture/status", s.handleCaptureStatus)
	mux.HandleFunc("/capture/live", s.handleCaptureLive)
	mux.Handle("/metrics", s.d.Metrics.Handler())

	// paths the original web front end calls
	mux.HandleFunc("/sendRequest/scanner", s.handleScan)
	mux.HandleFunc("/sendRequest/history", s.handleHistory)
	mux.HandleFunc("/sendRequest/newlocation", s.handleNewLocation)

	return s.withRequest(mux)
}

type ctxKey struct{}

func (s *Server) withRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := logger.RequestID(r)
		w.Header().Set("X-Request-ID", reqID)
		reqLog := s.d.Log.WithRequest(r, reqID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqLog)))
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("request served")
	})
}

func requestLog(r *http.Request) *logger.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*logger.Logger); ok {
		return l
	}
	return logger.Discard()
}

func (s *Server) currentLocation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

type errorEnvelope struct {
	Error pipeline.ErrorBody `json:"error"`
}

// writeRunError reports a failed pipeline run with its stage-tagged body.
func writeRunError(w http.ResponseWriter, err error) {
	writeJSON(w, pipeline.HTTPStatus(err), errorEnvelope{Error: pipeline.Describe(err)})
}

// writeRejected reports a request refused before any stage ran.
func writeRejected(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorEnvelope{Error: pipeline.ErrorBody{Stage: "request", Kind: kind, Message: msg}})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeRejected(w, http.StatusBadRequest, "bad_request", msg)
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeRejected(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	return false
}
