// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// operationsTotal counts build operations by outcome. Served by the
// statusfeed /metrics endpoint through the default registry.
var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "orchestrator",
	Name:      "operations_total",
	Help:      "Build operations by operation and outcome.",
}, []string{"operation", "outcome"})

func countOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}
