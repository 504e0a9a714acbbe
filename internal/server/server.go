// Package server exposes the classifier over HTTP: POST /v1/classify for
// predictions, /v1/labels for the label table, /healthz for liveness.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-image-classify/internal/classify"
	"github.com/example/go-image-classify/internal/config"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Classifier turns an encoded image stream into scored predictions.
type Classifier interface {
	ClassifyImage(ctx context.Context, img io.Reader, topK int) ([]classify.Prediction, error)
}

// LabelLister returns the ordered class names.
type LabelLister interface {
	Labels() []string
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxBodyBytes   int
	workers        int
	requestTimeout time.Duration
	defaultTopK    int
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   8 << 20,
		workers:        2,
		requestTimeout: 30 * time.Second,
		defaultTopK:    5,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes sets the maximum accepted request body size.
func WithMaxBodyBytes(n int) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent classification calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request classification deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithDefaultTopK sets how many predictions are returned when the request
// does not ask for a specific count.
func WithDefaultTopK(k int) Option {
	return func(o *options) { o.defaultTopK = k }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	classifier Classifier
	labels     LabelLister
	opts       options
	sem        chan struct{} // semaphore for worker pool
	log        *slog.Logger
}

// NewHandler returns an http.Handler serving /healthz, /v1/labels, and
// POST /v1/classify.
func NewHandler(classifier Classifier, labels LabelLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		classifier: classifier,
		labels:     labels,
		opts:       opts,
		log:        opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/v1/labels", h.handleLabels)
	mux.HandleFunc("/v1/classify", h.handleClassify)

	return requestID(mux)
}

// requestID tags every request with an ID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID the middleware attached, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleLabels(w http.ResponseWriter, _ *http.Request) {
	names := h.labels.Labels()
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"classes": names,
		"count":   len(names),
	})
}

type classifyResponse struct {
	Predictions []classify.Prediction `json:"predictions"`
	DurationMS  int64                 `json:"duration_ms"`
}

func (h *handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	topK := h.opts.defaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 1 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}

		topK = k
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.opts.maxBodyBytes))

	img, cleanup, err := imageStream(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	// Acquire a worker slot — honour context cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
			// slot acquired
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	preds, err := h.classifier.ClassifyImage(ctx, img, topK)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			h.log.WarnContext(r.Context(), "classification timed out",
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "classification timed out")
			return
		}

		status := http.StatusInternalServerError

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}

		h.log.ErrorContext(r.Context(), "classification failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "classification complete",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.Int("predictions", len(preds)),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, classifyResponse{
		Predictions: preds,
		DurationMS:  durationMS,
	})
}

// imageStream extracts the image bytes: the "image" part of a multipart
// form, or the raw body otherwise.
func imageStream(r *http.Request) (io.Reader, func(), error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, func() {}, fmt.Errorf("parse multipart form: %w", err)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, func() {}, errors.New(`multipart form must carry an "image" file`)
		}
		return nil, func() {}, fmt.Errorf("read image part: %w", err)
	}

	return file, func() { _ = file.Close() }, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful
// shutdown.
type Server struct {
	cfg             config.Config
	classifier      Classifier
	labels          LabelLister
	shutdownTimeout time.Duration
}

func New(cfg config.Config, classifier Classifier, labels LabelLister) *Server {
	timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Server{
		cfg:             cfg,
		classifier:      classifier,
		labels:          labels,
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	h := NewHandler(s.classifier, s.labels,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithDefaultTopK(s.cfg.Classify.TopK),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks a running server's liveness endpoint.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/healthz") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
