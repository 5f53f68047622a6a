package server

import (
	"errors"
	"io"
	"net/http"

	"ata-pipeline/internal/metrics"
	"ata-pipeline/internal/pool"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
)

// Queue is satisfied by *trigger.Dispatcher.
type Queue interface {
	Enqueue(ev events.S3Event) bool
}

type Handler struct {
	maxBody int64
	metrics *metrics.Metrics
	queue   Queue
}

func NewHandler(maxBody int64, m *metrics.Metrics, q Queue) *Handler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		maxBody: maxBody,
		metrics: m,
		queue:   q,
	}
}

// Routes
//
//   - POST /trigger : S3 notification body, queued for a pipeline run
//   - GET  /metrics : Prometheus scrape
//   - GET  /health  : load balancer health check
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Post("/trigger", h.HandleTrigger)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// HandleTrigger
//
// Decodes one S3 notification and queues it. The run happens later on
// the dispatcher goroutine, so the response only says whether the
// notification was accepted:
//
//	202 accepted, 400 unreadable or empty, 413 over maxBody, 503 queue full
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	defer r.Body.Close()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, http.StatusRequestEntityTooLarge, "too_large", err)
			return
		}
		h.reject(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var ev events.S3Event
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		h.reject(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if len(ev.Records) == 0 {
		h.reject(w, http.StatusBadRequest, "bad_request", nil)
		return
	}

	if !h.queue.Enqueue(ev) {
		h.reject(w, http.StatusServiceUnavailable, "queue_full", nil)
		return
	}

	h.metrics.Trigger("accepted")
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) reject(w http.ResponseWriter, status int, outcome string, err error) {
	h.metrics.Trigger(outcome)
	zlog.Warn().Err(err).Int("status", status).Str("outcome", outcome).Msg("trigger rejected")
	w.WriteHeader(status)
}
