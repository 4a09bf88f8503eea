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
	. "github.com/pingcap/check"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vdbtools/v2p/pkg/log"
)

var _ = Suite(&testMetricsSuite{})

type testMetricsSuite struct{}

func (t *testMetricsSuite) TestRegisterAndDump(c *C) {
	registry := prometheus.NewRegistry()
	RegisterMetrics(registry)

	phaseDurationHistogram.WithLabelValues("preflight").Observe(0.2)
	phaseErrorCounter.WithLabelValues("preflight").Inc()
	relocatedBytesGauge.Set(1024)

	families, err := registry.Gather()
	c.Assert(err, IsNil)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, name := range []string{
		"v2p_migrator_phase_duration_seconds",
		"v2p_migrator_phase_error_total",
		"v2p_migrator_running",
		"v2p_migrator_relocated_bytes",
	} {
		c.Assert(names[name], IsTrue, Commentf("missing metric family %s", name))
	}

	DumpMetrics(registry, log.L())
}
