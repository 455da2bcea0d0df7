// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package jobgraph

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics is a set of scheduler metrics.
// A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	transitions *prometheus.CounterVec
	execute     *prometheus.HistogramVec
	running     prometheus.Gauge
	extracted   prometheus.Counter
}

// NewMetrics creates metrics in a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anvil_job_transitions_total",
				Help: "Number of job state transitions, by new state.",
			},
			[]string{"state"},
		),
		execute: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anvil_job_execute_seconds",
				Help:    "Duration of job operations in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"result"},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "anvil_jobs_running",
				Help: "Number of jobs currently running.",
			},
		),
		extracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "anvil_extracted_dependencies_total",
				Help: "Number of dependencies extracted from commands.",
			},
		),
	}
	m.reg.MustRegister(m.transitions, m.execute, m.running, m.extracted)
	return m
}

// Registry returns the registry of the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) transition(from, to State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to.String()).Inc()
	switch {
	case to == Running:
		m.running.Inc()
	case from == Running:
		m.running.Dec()
	}
}

func (m *Metrics) executed(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.execute.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) extractedDeps(n int) {
	if m == nil {
		return
	}
	m.extracted.Add(float64(n))
}

// WriteText writes the metrics in Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	mfs, err := m.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		_, err := expfmt.MetricFamilyToText(w, mf)
		if err != nil {
			return err
		}
	}
	return nil
}
