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

package terror

// Error codes list
const (
	// Database operation error code list
	codeDBDriverError ErrCode = iota + 10001
	codeDBBadConn
	codeDBInvalidConn
	codeDBUnExpect
	codeDBQueryFailed

	// Config related error code list
	codeConfigParseFlagSet ErrCode = iota + 10101
	codeConfigTomlTransform
	codeConfigInvalidFlag
	codeConfigMissingSID
	codeConfigMissingOracleHome
	codeConfigMissingGridHome
	codeConfigDataDestNotValid
	codeConfigInvalidParallelism
	codeConfigConfirmFailed
	codeConfigAborted

	// Preflight error code list
	codePreflightQuery ErrCode = iota + 10201
	codePreflightNoSpfile
	codePreflightNoControlfile
	codePreflightNoUniqueName

	// Admin channel (sqlplus) error code list
	codeAdminBatchFailed ErrCode = iota + 10301
	codeAdminRestartFailed
	codeAdminShutdownFailed
	codeAdminSpfileCreate

	// Storage relocation engine error code list
	codeStorageRelocation ErrCode = iota + 10401
	codeStorageScript

	// Cluster registrar error code list
	codeClusterCommand ErrCode = iota + 10501
	codeClusterTargetUnknown
	codeClusterIdentityMismatch
	codeClusterLocalInstance

	// Relocation (tablespace/tempfile/redo) error code list
	codeRelocateTablespaceDrop ErrCode = iota + 10601
	codeRelocateTablespaceToggle
	codeRelocateTempfile
	codeRedoAddMember
	codeRedoDropGroup
	codeRedoDropRetryable
	codeRedoDropRetryExhausted

	// Migrator error code list
	codeMigratorPhaseFailed ErrCode = iota + 10701
	codeMigratorArtifact
	codeMigratorPfilePreserve
	codeMigratorInterrupt
)

// Error instances
var (
	// Database operation related error
	ErrDBDriverError   = New(codeDBDriverError, ClassDatabase, ScopeNotSet, LevelHigh, "database driver error", "")
	ErrDBBadConn       = New(codeDBBadConn, ClassDatabase, ScopeNotSet, LevelHigh, "database driver", "")
	ErrDBInvalidConn = New(codeDBInvalidConn, ClassDatabase, ScopeNotSet, LevelHigh, "connection to the instance not recovered: %s", "The catalog connection stayed broken through every retry. Please check that the instance is reachable.")
	ErrDBUnExpect    = New(codeDBUnExpect, ClassDatabase, ScopeNotSet, LevelHigh, "unexpect database error: %s", "")
	ErrDBQueryFailed = New(codeDBQueryFailed, ClassDatabase, ScopeNotSet, LevelHigh, "query statement failed: %s", "")

	// Config related error
	ErrConfigParseFlagSet       = New(codeConfigParseFlagSet, ClassConfig, ScopeInternal, LevelMedium, "parse config flag set", "")
	ErrConfigTomlTransform      = New(codeConfigTomlTransform, ClassConfig, ScopeInternal, LevelMedium, "%s", "Please check the configuration file has correct TOML format.")
	ErrConfigInvalidFlag        = New(codeConfigInvalidFlag, ClassConfig, ScopeInternal, LevelMedium, "'%s' is an invalid flag", "")
	ErrConfigMissingSID         = New(codeConfigMissingSID, ClassConfig, ScopeInternal, LevelHigh, "source instance identifier not set", "Please set the ORACLE_SID environment variable to the virtual database instance.")
	ErrConfigMissingOracleHome  = New(codeConfigMissingOracleHome, ClassConfig, ScopeInternal, LevelHigh, "database home not set", "Please set the ORACLE_HOME environment variable.")
	ErrConfigMissingGridHome    = New(codeConfigMissingGridHome, ClassConfig, ScopeInternal, LevelHigh, "cluster manager home not set for clustered source", "Please set the GRID_HOME environment variable for clustered deployments.")
	ErrConfigDataDestNotValid   = New(codeConfigDataDestNotValid, ClassConfig, ScopeInternal, LevelHigh, "data destination %q not valid: %s", "Please pass an existing writable directory as the data destination.")
	ErrConfigInvalidParallelism = New(codeConfigInvalidParallelism, ClassConfig, ScopeInternal, LevelMedium, "channel parallelism %d not valid", "Please use a parallelism between 1 and 64.")
	ErrConfigConfirmFailed      = New(codeConfigConfirmFailed, ClassConfig, ScopeInternal, LevelMedium, "read operator confirmation", "")
	ErrConfigAborted            = New(codeConfigAborted, ClassConfig, ScopeInternal, LevelLow, "migration aborted by operator", "")

	// Preflight related error
	ErrPreflightQuery         = New(codePreflightQuery, ClassPreflight, ScopeSource, LevelHigh, "preflight query %s", "")
	ErrPreflightNoSpfile      = New(codePreflightNoSpfile, ClassPreflight, ScopeSource, LevelHigh, "source instance does not use a server parameter file", "v2p requires the source instance to run from an spfile. Please create one with CREATE SPFILE FROM PFILE and restart the instance.")
	ErrPreflightNoControlfile = New(codePreflightNoControlfile, ClassPreflight, ScopeSource, LevelHigh, "current controlfile not found", "")
	ErrPreflightNoUniqueName  = New(codePreflightNoUniqueName, ClassPreflight, ScopeSource, LevelHigh, "db_unique_name not discoverable", "")

	// Admin channel related error
	ErrAdminBatchFailed    = New(codeAdminBatchFailed, ClassAdmin, ScopeSource, LevelHigh, "admin batch %s failed", "")
	ErrAdminRestartFailed  = New(codeAdminRestartFailed, ClassAdmin, ScopeSource, LevelHigh, "restart instance in %s mode", "")
	ErrAdminShutdownFailed = New(codeAdminShutdownFailed, ClassAdmin, ScopeSource, LevelHigh, "shutdown instance (%s)", "")
	ErrAdminSpfileCreate   = New(codeAdminSpfileCreate, ClassAdmin, ScopeSource, LevelHigh, "externalize parameter store to %s", "")

	// Storage relocation engine related error
	ErrStorageRelocation = New(codeStorageRelocation, ClassStorage, ScopeDestination, LevelHigh, "storage relocation failed", "The run log contains the full storage engine output. Diagnose and re-run after resolving the root cause; no automatic rollback is performed.")
	ErrStorageScript     = New(codeStorageScript, ClassStorage, ScopeInternal, LevelHigh, "write storage relocation script %s", "")

	// Cluster registrar related error
	ErrClusterCommand          = New(codeClusterCommand, ClassCluster, ScopeSource, LevelHigh, "cluster registrar command %s failed", "")
	ErrClusterTargetUnknown    = New(codeClusterTargetUnknown, ClassCluster, ScopeSource, LevelHigh, "target database %s not registered with the cluster", "Please register the target database with the cluster registrar before migrating to a different unique name.")
	ErrClusterIdentityMismatch = New(codeClusterIdentityMismatch, ClassCluster, ScopeSource, LevelHigh, "registered instances of %s do not include current instance %s", "The registered target identity does not match the migrating instance. This cannot be repaired by v2p.")
	ErrClusterLocalInstance    = New(codeClusterLocalInstance, ClassCluster, ScopeSource, LevelHigh, "no instance of %s registered for local node %s", "")

	// Relocation related error
	ErrRelocateTablespaceDrop   = New(codeRelocateTablespaceDrop, ClassRelocate, ScopeSource, LevelHigh, "drop offline tablespaces", "")
	ErrRelocateTablespaceToggle = New(codeRelocateTablespaceToggle, ClassRelocate, ScopeSource, LevelHigh, "toggle tablespaces %s", "")
	ErrRelocateTempfile         = New(codeRelocateTempfile, ClassRelocate, ScopeSource, LevelHigh, "tempfile relocation batch %s failed", "")
	ErrRedoAddMember            = New(codeRedoAddMember, ClassRelocate, ScopeDestination, LevelHigh, "add replacement log for group %d thread %d", "")
	ErrRedoDropGroup            = New(codeRedoDropGroup, ClassRelocate, ScopeSource, LevelHigh, "drop log group %d", "")
	ErrRedoDropRetryable        = New(codeRedoDropRetryable, ClassRelocate, ScopeSource, LevelMedium, "log group %d is active, retry after switch and checkpoint", "")
	ErrRedoDropRetryExhausted   = New(codeRedoDropRetryExhausted, ClassRelocate, ScopeSource, LevelHigh, "drop log group %d failed after forced switch and checkpoint", "The group could not be dropped even after a forced log switch and global checkpoint. Diagnose the source instance manually.")

	// Migrator related error
	ErrMigratorPhaseFailed   = New(codeMigratorPhaseFailed, ClassMigrator, ScopeNotSet, LevelHigh, "phase %s failed: %s", "The run log and generated artifacts are retained for diagnosis.")
	ErrMigratorArtifact      = New(codeMigratorArtifact, ClassMigrator, ScopeInternal, LevelHigh, "write run artifact %s", "")
	ErrMigratorPfilePreserve = New(codeMigratorPfilePreserve, ClassMigrator, ScopeInternal, LevelLow, "preserve original parameter file %s", "")
	ErrMigratorInterrupt     = New(codeMigratorInterrupt, ClassMigrator, ScopeInternal, LevelHigh, "migration interrupted before phase %s", "")
)
