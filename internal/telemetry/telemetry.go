// Package telemetry holds the Prometheus collectors shared by the client,
// the scenario flow and the companion server.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the application-specific collectors.
	Registry = prometheus.NewRegistry()

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatif",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Backend API calls by method and response status.",
		},
		[]string{"method", "status"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatif",
			Subsystem: "api",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	scenarioFlows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatif",
			Subsystem: "scenario_flow",
			Name:      "runs_total",
			Help:      "Wizard submissions by target kind and outcome.",
		},
		[]string{"target", "outcome"},
	)

	rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatif",
			Subsystem: "scenario_flow",
			Name:      "rollbacks_total",
			Help:      "Compensating scenario deletes by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(apiRequests, tokenRefreshes, scenarioFlows, rollbacks)
}

// RecordRequest counts one backend call. status 0 means a transport error.
func RecordRequest(method string, status int) {
	apiRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func RecordRefresh(ok bool) {
	tokenRefreshes.WithLabelValues(outcome(ok)).Inc()
}

func RecordFlow(target, result string) {
	scenarioFlows.WithLabelValues(target, result).Inc()
}

func RecordRollback(ok bool) {
	rollbacks.WithLabelValues(outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
