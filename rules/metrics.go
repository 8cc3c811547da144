/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package rules

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

/*
Metrics holds Prometheus metrics of the rule engine. A nil Metrics object
discards all observations.
*/
type Metrics struct {
	registry         *prometheus.Registry
	evaluationsTotal *prometheus.CounterVec
	membershipsTotal *prometheus.CounterVec
	cascadesTotal    *prometheus.CounterVec
	bulkUpdatesTotal *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
}

/*
NewMetrics creates a new set of metrics in its own registry.
*/
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulegraph",
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Total predicate evaluations",
		}, []string{"class", "rule", "result"}),

		membershipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulegraph",
			Subsystem: "rules",
			Name:      "membership_changes_total",
			Help:      "Total created and removed membership edges",
		}, []string{"class", "rule", "op"}),

		cascadesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulegraph",
			Subsystem: "rules",
			Name:      "cascades_total",
			Help:      "Total re-evaluations caused by trigger edges",
		}, []string{"class", "rule"}),

		bulkUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulegraph",
			Subsystem: "rules",
			Name:      "bulk_updates_total",
			Help:      "Total applied bulk batches",
		}, []string{"class", "rule"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulegraph",
			Subsystem: "rules",
			Name:      "errors_total",
			Help:      "Total failed rule evaluations",
		}, []string{"class", "rule"}),
	}

	m.registry.MustRegister(
		m.evaluationsTotal,
		m.membershipsTotal,
		m.cascadesTotal,
		m.bulkUpdatesTotal,
		m.errorsTotal,
	)

	return m
}

/*
Registry returns the Prometheus registry of these metrics.
*/
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) evaluation(class string, rule string, result bool, err error) {
	if m == nil {
		return
	}

	res := strconv.FormatBool(result)
	if err != nil {
		res = "error"
	}

	m.evaluationsTotal.WithLabelValues(class, rule, res).Inc()
}

func (m *Metrics) membership(class string, rule string, op string, n int) {
	if m != nil && n > 0 {
		m.membershipsTotal.WithLabelValues(class, rule, op).Add(float64(n))
	}
}

func (m *Metrics) cascade(class string, rule string) {
	if m != nil {
		m.cascadesTotal.WithLabelValues(class, rule).Inc()
	}
}

func (m *Metrics) bulk(class string, rule string) {
	if m != nil {
		m.bulkUpdatesTotal.WithLabelValues(class, rule).Inc()
	}
}

func (m *Metrics) failure(class string, rule string) {
	if m != nil {
		m.errorsTotal.WithLabelValues(class, rule).Inc()
	}
}
