// Package metrics exposes task store and broadcast activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schedbot/internal/schedule"
)

const namespace = "schedbot"

// StatsFunc reports the current store size for the gauges.
type StatsFunc func() schedule.Stats

// Metrics owns a private registry so tests and multiple instances do not
// collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	taskOps      *prometheus.CounterVec
	persist      *prometheus.HistogramVec
	broadcast    *prometheus.CounterVec
	updates      *prometheus.CounterVec
	configReload *prometheus.CounterVec
}

func New(stats StatsFunc) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		taskOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_operations_total",
			Help:      "Task store mutations by operation and result.",
		}, []string{"op", "result"}),
		persist: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Time spent writing the task document.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"result"}),
		broadcast: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_messages_total",
			Help:      "Menu broadcast deliveries by result.",
		}, []string{"result"}),
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_updates_total",
			Help:      "Incoming Telegram updates by kind.",
		}, []string{"kind"}),
		configReload: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reload attempts by result.",
		}, []string{"result"}),
	}

	if stats != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Tasks currently stored.",
		}, func() float64 { return float64(stats().Tasks) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_owners",
			Help:      "Users with at least one task.",
		}, func() float64 { return float64(stats().Owners) })
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveOp implements schedule.Observer.
func (m *Metrics) ObserveOp(op string, err error) {
	m.taskOps.WithLabelValues(op, result(err)).Inc()
}

// ObservePersist implements schedule.Observer.
func (m *Metrics) ObservePersist(d time.Duration, err error) {
	m.persist.WithLabelValues(result(err)).Observe(d.Seconds())
}

// ObserveBroadcast implements reminder.Observer.
func (m *Metrics) ObserveBroadcast(sent, failed int) {
	m.broadcast.WithLabelValues("ok").Add(float64(sent))
	m.broadcast.WithLabelValues("error").Add(float64(failed))
}

func (m *Metrics) ObserveUpdate(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveReload(err error) {
	m.configReload.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
