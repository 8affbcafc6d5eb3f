// Package opsapi serves the operational HTTP surface: health, Prometheus
// metrics and a read-only view of the triage queue.
package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/report"
)

// QueueSource exposes the controller state the API reports on.
type QueueSource interface {
	Queue() []*report.Session
	ActiveReports() int
}

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// API holds dependencies for HTTP handlers.
type API struct {
	log    logrus.FieldLogger
	src    QueueSource
	checks map[string]Check
}

// New creates the API. checks may be nil.
func New(log logrus.FieldLogger, src QueueSource, checks map[string]Check) *API {
	if src == nil {
		panic("opsapi: queue source is required")
	}
	return &API{log: log.WithField("component", "opsapi"), src: src, checks: checks}
}

// Handler returns the routed, instrumented handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue", a.handleQueue)
	})

	return otelhttp.NewHandler(r, "ops.http",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// dont trace scrapes and probes
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	if len(a.checks) > 0 {
		resp.Checks = make(map[string]string, len(a.checks))
		names := make([]string, 0, len(a.checks))
		for name := range a.checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := a.checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, code, resp)
}

// QueueEntry is one queued report as served by /api/v1/queue.
type QueueEntry struct {
	Position    int       `json:"position"`
	ReportID    string    `json:"report_id"`
	ReporterID  string    `json:"reporter_id,omitempty"`
	Auto        bool      `json:"auto"`
	Minor       bool      `json:"minor"`
	Nudity      bool      `json:"nudity"`
	Severity    float64   `json:"severity"`
	Reason      string    `json:"reason,omitempty"`
	Subtype     string    `json:"subtype,omitempty"`
	MessageURL  string    `json:"message_url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type queueResponse struct {
	ActiveReports int          `json:"active_reports"`
	Queued        int          `json:"queued"`
	Reports       []QueueEntry `json:"reports"`
}

func (a *API) handleQueue(w http.ResponseWriter, _ *http.Request) {
	queued := a.src.Queue()
	resp := queueResponse{
		ActiveReports: a.src.ActiveReports(),
		Queued:        len(queued),
		Reports:       make([]QueueEntry, 0, len(queued)),
	}
	for i, s := range queued {
		e := QueueEntry{
			Position:    i + 1,
			ReportID:    s.ID,
			ReporterID:  s.ReporterID,
			Auto:        s.Auto(),
			Minor:       s.IsMinor(),
			Nudity:      s.HasNudity(),
			Severity:    s.SeverityScore(),
			MessageURL:  s.Target().JumpURL(),
			SubmittedAt: s.SubmittedAt(),
		}
		if r, ok := s.Reason(); ok {
			e.Reason = r.Name
		}
		if st, ok := s.Subtype(); ok {
			e.Subtype = st.Name
		}
		resp.Reports = append(resp.Reports, e)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
