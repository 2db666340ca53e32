// Package status exposes the simulator's health snapshot and alert history over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
	"github.com/vital-sim/vital-sim/sim/threshold"
)

// Health is a point-in-time view of the process. Reading it has no side effects.
type Health struct {
	Alive        bool            `json:"alive"`
	LastTick     time.Time       `json:"last_tick"` // simulated time of the last completed tick
	Tick         int64           `json:"tick"`
	Patients     int             `json:"patients"` // patients still generating
	ActiveAlerts int             `json:"active_alerts"`
	Uptime       time.Duration   `json:"uptime_ns"`
	Components   map[string]bool `json:"components,omitempty"` // external connections by name
}

// Provider returns the current health snapshot.
type Provider interface {
	Health() Health
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() Health

// Health calls f.
func (f ProviderFunc) Health() Health { return f() }

// AlertLister answers alert history queries.
type AlertLister interface {
	ListAlerts(f alert.Filter) []alert.Alert
}

// NewRouter serves GET /health, /status and /metrics, plus GET /alerts when
// alerts is non-nil. /health answers 200 while alive and 503 otherwise; /status
// always answers 200.
func NewRouter(p Provider, alerts AlertLister, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		h := p.Health()
		code := http.StatusOK
		body := "ok"
		if !h.Alive {
			code = http.StatusServiceUnavailable
			body = "unavailable"
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Health()); err != nil {
			logrus.Warnf("status: encoding response: %v", err)
		}
	})

	if alerts != nil {
		r.Get("/alerts", func(w http.ResponseWriter, req *http.Request) {
			f, err := parseFilter(req.URL.Query())
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(alerts.ListAlerts(f)); err != nil {
				logrus.Warnf("status: encoding alerts: %v", err)
			}
		})
	}

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// parseFilter reads patient_id, status, severity, vital_sign and limit.
// Absent parameters match everything.
func parseFilter(q url.Values) (alert.Filter, error) {
	f := alert.Filter{PatientID: q.Get("patient_id")}
	var err error
	if v := q.Get("status"); v != "" {
		if f.Status, err = alert.ParseStatus(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("severity"); v != "" {
		if f.Severity, err = threshold.ParseSeverity(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("vital_sign"); v != "" {
		if f.Vital, err = sim.ParseVitalSign(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer, got %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

// Server runs the status router until its context ends.
type Server struct {
	srv *http.Server
}

// NewServer binds the router to addr.
func NewServer(addr string, p Provider, alerts AlertLister, gatherer prometheus.Gatherer) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(p, alerts, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("status: listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
