package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Agent tracks autonomous agent performance. A nil *Agent records nothing.
type Agent struct {
	registry *prometheus.Registry

	actions          *prometheus.CounterVec
	confidence       *prometheus.HistogramVec
	lowConfidence    *prometheus.CounterVec
	rollbacks        *prometheus.CounterVec
	followups        *prometheus.CounterVec
	notifyFailures   *prometheus.CounterVec
	pendingFollowups prometheus.Gauge
}

func New() *Agent {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Agent{
		registry: reg,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolvebot",
			Name:      "autonomous_actions_total",
			Help:      "Autonomous actions executed, by action type and outcome.",
		}, []string{"action_type", "success", "confidence_level"}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resolvebot",
			Name:      "confidence_score",
			Help:      "Confidence scores seen at decision time, by ticket category.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"category"}),
		lowConfidence: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolvebot",
			Name:      "very_low_confidence_total",
			Help:      "Decisions taken with confidence below 0.3.",
		}, []string{"category"}),
		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolvebot",
			Name:      "rollbacks_total",
			Help:      "Rollback attempts, by action type and result.",
		}, []string{"action_type", "result"}),
		followups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolvebot",
			Name:      "followup_transitions_total",
			Help:      "Follow-up state transitions.",
		}, []string{"state"}),
		notifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resolvebot",
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered.",
		}, []string{"kind"}),
		pendingFollowups: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resolvebot",
			Name:      "pending_followups",
			Help:      "Follow-up triggers currently armed in this process.",
		}),
	}
}

func ConfidenceLevel(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.6:
		return "medium"
	default:
		return "low"
	}
}

func (a *Agent) TrackAction(actionType string, confidence float64, success bool) {
	if a == nil {
		return
	}
	ok := "false"
	if success {
		ok = "true"
	}
	a.actions.WithLabelValues(actionType, ok, ConfidenceLevel(confidence)).Inc()
}

func (a *Agent) TrackConfidence(category string, confidence float64) {
	if a == nil {
		return
	}
	a.confidence.WithLabelValues(category).Observe(confidence)
	if confidence < 0.3 {
		a.lowConfidence.WithLabelValues(category).Inc()
	}
}

func (a *Agent) TrackRollback(actionType, result string) {
	if a == nil {
		return
	}
	a.rollbacks.WithLabelValues(actionType, result).Inc()
}

func (a *Agent) TrackFollowup(state string) {
	if a == nil {
		return
	}
	a.followups.WithLabelValues(state).Inc()
}

func (a *Agent) TrackNotifyFailure(kind string) {
	if a == nil {
		return
	}
	a.notifyFailures.WithLabelValues(kind).Inc()
}

func (a *Agent) SetPendingFollowups(n int) {
	if a == nil {
		return
	}
	a.pendingFollowups.Set(float64(n))
}

func (a *Agent) Registry() *prometheus.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *Agent) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func (a *Agent) Serve(ctx context.Context, addr string) {
	if a == nil || addr == "" {
		log.Println("Metrics endpoint disabled")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Printf("Metrics listening on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()
}
