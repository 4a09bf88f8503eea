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
	tcontext "github.com/vdbtools/v2p/pkg/context"
)

// StartMode is the instance state a Startup call drives to. Startup is always
// forced: a running instance is torn down first.
type StartMode string

// startup modes
const (
	StartOpen    StartMode = "open"
	StartMount   StartMode = "mount"
	StartNomount StartMode = "nomount"
)

// ShutdownMode selects between a clean and an abrupt instance shutdown.
type ShutdownMode string

// shutdown modes
const (
	ShutdownImmediate ShutdownMode = "immediate"
	ShutdownAbort     ShutdownMode = "abort"
)

// AdminClient is the boundary to the database engine. Query methods return
// structured results; batch execution returns the captured diagnostic output
// of the engine verbatim so a failing phase leaves a diagnosable trail.
//
// All calls block until the engine answers; there is no timeout at this
// boundary.
type AdminClient interface {
	// QueryScalar runs a single-row single-column query. A query with no rows
	// returns an empty string and no error.
	QueryScalar(tctx *tcontext.Context, query string) (string, error)
	// QueryGrid runs a query and returns all rows as strings.
	QueryGrid(tctx *tcontext.Context, query string) ([][]string, error)
	// ExecBatch runs administrative statements in order, stopping at the
	// first failure. The captured engine output is returned in both cases.
	ExecBatch(tctx *tcontext.Context, name string, stmts []string) (string, error)
	// Startup (re)starts the instance in the given mode, forcing down any
	// running instance first. A non-empty pfile makes the instance boot from
	// that parameter file instead of its default parameter store.
	Startup(tctx *tcontext.Context, mode StartMode, pfile string) error
	// Shutdown stops the instance.
	Shutdown(tctx *tcontext.Context, mode ShutdownMode) error
	// SetLocalInstance repoints subsequent administrative calls at another
	// local instance identity. The identity of the local node may change
	// when the relocated database comes up under the cluster registrar.
	SetLocalInstance(instance string)
	// Close releases the catalog connection, if any.
	Close() error
}

// ClusterClient is the boundary to the cluster registrar. It accepts database
// identities and instance bindings; every mutation reports pass/fail with the
// registrar's diagnostic output carried in the error.
type ClusterClient interface {
	// DatabaseRegistered reports whether the identity is known to the registrar.
	DatabaseRegistered(tctx *tcontext.Context, db string) (bool, error)
	// ConfiguredInstances lists the instance names registered under db.
	ConfiguredInstances(tctx *tcontext.Context, db string) ([]string, error)
	// RunningInstances lists instances of db currently running, with their nodes.
	RunningInstances(tctx *tcontext.Context, db string) ([]Instance, error)
	AddDatabase(tctx *tcontext.Context, db, home, spfile string) error
	RemoveDatabase(tctx *tcontext.Context, db string) error
	AddInstance(tctx *tcontext.Context, db, instance, node string) error
	RemoveInstance(tctx *tcontext.Context, db, instance string) error
	StartDatabase(tctx *tcontext.Context, db string) error
	// StopDatabase stops the database; abort selects an abrupt stop.
	StopDatabase(tctx *tcontext.Context, db string, abort bool) error
}

// RelocateRequest describes one copy-based relocation of all online data
// files into a new destination.
type RelocateRequest struct {
	// ControlfilePath is the current controlfile of the source instance.
	ControlfilePath string
	// ControlfileDest is where the restored controlfile must land.
	ControlfileDest string
	// DataDest receives the data file copies.
	DataDest string
	// SnapshotControlfile is the shared location the snapshot controlfile is
	// repointed to.
	SnapshotControlfile string
	// Parallelism is the number of concurrent copy channels.
	Parallelism int
	// SkipOffline skips data files of offline tablespaces.
	SkipOffline bool
}

// StorageEngine performs block-level copy relocation of the database into a
// new destination. The orchestrator treats Relocate as a single blocking
// operation regardless of the engine's internal concurrency.
type StorageEngine interface {
	Relocate(tctx *tcontext.Context, req RelocateRequest) (output string, err error)
}
