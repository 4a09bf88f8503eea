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
	"time"
)

// TablespaceStatus is the status of a tablespace as reported by the engine.
type TablespaceStatus string

// tablespace statuses seen at preflight
const (
	TablespaceOnline   TablespaceStatus = "ONLINE"
	TablespaceOffline  TablespaceStatus = "OFFLINE"
	TablespaceReadOnly TablespaceStatus = "READ ONLY"
)

// Tablespace is a named logical storage unit, read at preflight. Status
// transitions are applied through the engine only, never cached beyond a
// single phase.
type Tablespace struct {
	Name   string
	Status TablespaceStatus
}

// TempFile backs temporary (scratch) storage of a temporary tablespace.
type TempFile struct {
	Tablespace string
	FileName   string
	SizeBytes  int64
}

// RedoLogGroup is one online log group of a thread, read once at preflight.
type RedoLogGroup struct {
	Group  int
	Thread int
	SizeKB int64
}

// Instance is a running database instance bound to a cluster node.
type Instance struct {
	Name string
	Host string
}

// ClusterConfig is queried once at preflight and immutable for the run.
type ClusterConfig struct {
	Clustered bool
	HomePath  string
	Instances []Instance
}

// CommandSet is an ordered, named list of administrative statements generated
// from typed catalog records. Generated once, persisted as a run artifact,
// and executed later as a whole.
type CommandSet struct {
	Name       string
	Statements []string
}

// Empty reports whether the set contains no statements.
func (cs CommandSet) Empty() bool {
	return len(cs.Statements) == 0
}

// PhaseResult is the audit record of a single pipeline phase.
type PhaseResult struct {
	Phase     string        `json:"phase"`
	Succeeded bool          `json:"succeeded"`
	Output    string        `json:"output,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// pipelineState accumulates metadata discovered at preflight and the command
// sets generated from it. It is exclusively owned by the orchestrating
// goroutine for the whole run.
type pipelineState struct {
	sourceUniqueName string
	targetUniqueName string
	localInstance    string

	spfilePath       string
	controlfilePath  string
	archiveDestParam string

	cluster ClusterConfig

	tablespaces []Tablespace
	tempfiles   []TempFile
	redoGroups  []RedoLogGroup

	totalDataBytes int64

	addTempfiles  CommandSet
	dropTempfiles CommandSet
	dropOffline   CommandSet
	readWrite     CommandSet
	readOnly      CommandSet

	// pfile artifact pointing at the externalized parameter store, used for
	// every restart after relocation.
	bootPfile string
}
