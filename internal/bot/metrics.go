// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Dispatch outcomes.
const (
	StatusOK      = "ok"
	StatusDropped = "dropped"
	StatusFailed  = "failed"
)

// Outbound action kinds, in flush order.
const (
	ActionLog     = "log"
	ActionKick    = "kick"
	ActionTopic   = "topic"
	ActionNick    = "nick"
	ActionJoin    = "join"
	ActionLeave   = "leave"
	ActionMode    = "mode"
	ActionNotice  = "notice"
	ActionAction  = "action"
	ActionMessage = "message"
)

// DispatchTotal counts dispatched events by kind and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var DispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cassium_dispatch_total",
		Help: "Total number of dispatched events by kind and outcome",
	},
	[]string{"kind", "status"},
)

// DispatchDuration is the histogram of time spent dispatching one event,
// including the flush.
var DispatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cassium_dispatch_duration_seconds",
		Help:    "Event dispatch duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// ActionsTotal counts outbound actions sent by flushes.
var ActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cassium_actions_total",
		Help: "Total number of outbound actions sent by kind",
	},
	[]string{"action"},
)

// HandlerErrors counts handler failures per plugin.
var HandlerErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cassium_handler_errors_total",
		Help: "Total number of plugin handler failures by plugin",
	},
	[]string{"plugin"},
)

// RegisterMetrics registers the bot metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(DispatchTotal)
	reg.MustRegister(DispatchDuration)
	reg.MustRegister(ActionsTotal)
	reg.MustRegister(HandlerErrors)
}

func recordDispatch(kind pluginsdk.Kind, status string, d time.Duration) {
	DispatchTotal.WithLabelValues(string(kind), status).Inc()
	DispatchDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func recordActions(action string, n int) {
	if n > 0 {
		ActionsTotal.WithLabelValues(action).Add(float64(n))
	}
}

func recordHandlerError(plugin string) {
	HandlerErrors.WithLabelValues(plugin).Inc()
}
