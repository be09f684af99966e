// Package metrics exports engine counters in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"abbas/config"
	"abbas/model"
)

const namespace = "abbas"

// Metrics implements responder.Metrics and tools.Observer on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	rounds          prometheus.Counter
	promptTokens    prometheus.Histogram
	inferenceErrors *prometheus.CounterVec
	recursionLimit  prometheus.Counter
	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Generation rounds sent to the model.",
		}),
		promptTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_tokens",
			Help:      "Token count of rendered prompts.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
		}),
		inferenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Failed model calls by error kind.",
		}, []string{"kind"}),
		recursionLimit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recursion_limit_total",
			Help:      "Replies abandoned after too many tool rounds.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	m.registry.MustRegister(
		m.rounds,
		m.promptTokens,
		m.inferenceErrors,
		m.recursionLimit,
		m.toolCalls,
		m.toolDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveRound(promptTokens int) {
	m.rounds.Inc()
	m.promptTokens.Observe(float64(promptTokens))
}

func (m *Metrics) ObserveInferenceError(kind model.ErrorKind) {
	m.inferenceErrors.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ObserveRecursionLimit() {
	m.recursionLimit.Inc()
}

func (m *Metrics) ObserveToolCall(name string, failed bool, elapsed time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(name, outcome).Inc()
	m.toolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Metrics] Listening on %s", addr)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
