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
	"bytes"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Status is a point-in-time snapshot of the run.
type Status struct {
	RunID          string        `json:"run-id"`
	Source         string        `json:"source"`
	Target         string        `json:"target"`
	FinishedPhases int           `json:"finished-phases"`
	TotalPhases    int           `json:"total-phases"`
	RelocatedBytes int64         `json:"relocated-bytes"`
	Duration       time.Duration `json:"duration"`
}

// Status reports the progress of the run so far.
func (m *Migrator) Status() Status {
	var (
		finished int
		total    time.Duration
	)
	for _, pr := range m.results {
		total += pr.Duration
		if pr.Succeeded {
			finished++
		}
	}
	s := Status{
		Source:         m.st.sourceUniqueName,
		Target:         m.st.targetUniqueName,
		FinishedPhases: finished,
		TotalPhases:    len(m.results),
		RelocatedBytes: m.st.totalDataBytes,
		Duration:       total,
	}
	if m.rctx != nil {
		s.RunID = m.rctx.RunID
	}
	return s
}

// finalReport renders the operator-facing summary of a successful run.
func (m *Migrator) finalReport() string {
	s := m.Status()
	var b bytes.Buffer
	fmt.Fprintf(&b, "database %s migrated to physical storage as %s", s.Source, s.Target)
	fmt.Fprintf(&b, ", %s relocated", humanize.IBytes(uint64(s.RelocatedBytes)))
	fmt.Fprintf(&b, ", %d phases in %s", s.FinishedPhases, s.Duration.Round(time.Second))
	if m.st.cluster.Clustered {
		fmt.Fprintf(&b, "; verify instance states with the cluster registrar before resuming service")
	} else {
		fmt.Fprintf(&b, "; the database is shut down, start it from the rewritten parameter file to resume service")
	}
	return b.String()
}
