// Copyright 2020 The v2p Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package migrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vdbtools/v2p/pkg/log"
)

var (
	phaseDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "v2p",
			Subsystem: "migrator",
			Name:      "phase_duration_seconds",
			Help:      "duration of a pipeline phase",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 18),
		}, []string{"phase"})

	phaseErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "v2p",
			Subsystem: "migrator",
			Name:      "phase_error_total",
			Help:      "total number of failed pipeline phases",
		}, []string{"phase"})

	migrationGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "v2p",
			Subsystem: "migrator",
			Name:      "running",
			Help:      "whether a migration run is in progress",
		})

	relocatedBytesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "v2p",
			Subsystem: "migrator",
			Name:      "relocated_bytes",
			Help:      "total bytes of data files relocated by the run",
		})
)

// RegisterMetrics registers migrator metrics into the registry.
func RegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(phaseDurationHistogram)
	registry.MustRegister(phaseErrorCounter)
	registry.MustRegister(migrationGauge)
	registry.MustRegister(relocatedBytesGauge)
}

// DumpMetrics writes the gathered state of the registry to the log. The run
// is a one-shot process, so the metrics are dumped at exit instead of being
// served over HTTP.
func DumpMetrics(registry *prometheus.Registry, logger log.Logger) {
	families, err := registry.Gather()
	if err != nil {
		logger.Warn("gather metrics", log.ShortError(err))
		return
	}
	for _, mf := range families {
		logger.Info("metric", zap.String("family", mf.String()))
	}
}
