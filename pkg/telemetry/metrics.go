// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes Prometheus instrumentation for the HTTP
// transport's /metrics endpoint. The stdio transport never serves it but
// the counters are still cheap to keep.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sfmcp"

// Registry is the private registry backing /metrics; a private registry
// keeps Go runtime collectors from third-party defaults out of the scrape.
var Registry = prometheus.NewRegistry()

var (
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total tool invocations by tool name and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Salesforce API requests by API type, method and status class.",
		},
		[]string{"api_type", "method", "status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "cache_lookups_total",
			Help:      "Gateway cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(toolCalls, gatewayRequests, cacheLookups)
}

// RecordToolCall counts one tool invocation. Outcome is one of
// success, error or cancelled.
func RecordToolCall(tool, outcome string) {
	toolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordGatewayRequest counts one Salesforce API request.
func RecordGatewayRequest(apiType, method, statusClass string) {
	gatewayRequests.WithLabelValues(apiType, method, statusClass).Inc()
}

// RecordCacheLookup counts one cache lookup; result is hit or miss.
func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the private registry for the HTTP transport.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
