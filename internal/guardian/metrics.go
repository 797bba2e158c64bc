package guardian

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: решения движка по типу действия и исходу
	DecisionsTotal *prometheus.CounterVec

	// Errors: какие guardian-ы блокируют чаще всего
	DenialsTotal *prometheus.CounterVec

	// Latency: полная обработка действия (включая кастоди)
	ActionDuration *prometheus.HistogramVec

	// Saturation: состояние защелки kill-switch (0 - торгуем, 1 - стоп)
	HaltState prometheus.Gauge

	// Saturation: состояние Circuit Breaker кастоди-клиента
	CircuitBreakerState prometheus.Gauge

	// Audit: заполненность буфера журнала (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Total number of risk engine decisions.",
		}, []string{"action_type", "outcome"}),

		DenialsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guard_denials_total",
			Help: "Total number of denials by guardian.",
		}, []string{"guardian"}),

		ActionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guard_action_duration_seconds",
			Help:    "Histogram of end-to-end action handling latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"action_type", "status"}),

		HaltState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "guard_halt_state",
			Help: "Kill switch latch state (0=trading, 1=halted).",
		}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "guard_custody_circuit_breaker_state",
			Help: "Current state of the custody circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "guard_audit_buffer_utilization",
			Help: "Current number of events in the audit buffer.",
		}),
	}
}
