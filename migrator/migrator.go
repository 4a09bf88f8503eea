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
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/pingcap/failpoint"
	"github.com/siddontang/go/sync2"
	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
	"github.com/vdbtools/v2p/pkg/utils"
)

const queryInstanceStatus = "SELECT status FROM v$instance"

// phase is one fail-fast step of the pipeline. The returned output is the
// diagnostic trail recorded in the run log, not a result consumed by later
// phases; those communicate through pipelineState only.
type phase struct {
	name string
	run  func(*tcontext.Context) (string, error)
}

// Migrator converts a virtual database into a physical one: it relocates the
// data, temp, redo and control files onto the destination storage, rewrites
// the persistent parameters, and re-registers the database with the cluster
// registrar when one is present. A Migrator performs exactly one run.
type Migrator struct {
	cfg    Config
	logger log.Logger

	rctx    *RunContext
	admin   AdminClient
	coord   ClusterCoordinator
	storage StorageEngine

	tablespaces *tablespaceManager
	tempfiles   *tempfileRelocator
	redo        *redoLogRelocator

	st      *pipelineState
	results []PhaseResult
	closed  sync2.AtomicBool
}

// NewMigrator creates a Migrator from the validated config.
func NewMigrator(cfg *Config) *Migrator {
	m := &Migrator{
		cfg:    *cfg,
		logger: log.With(zap.String("unit", "migrator")),
		st:     &pipelineState{},
	}
	return m
}

// Run executes the migration pipeline. The first failing phase halts the run
// with run artifacts retained for inspection; on success the artifacts are
// removed and a final report is logged. Run blocks until the pipeline
// finishes or ctx is canceled between phases.
func (m *Migrator) Run(ctx context.Context) error {
	tctx := tcontext.NewContext(ctx, m.logger)

	rctx, err := NewRunContext(m.cfg.SID, m.cfg.WorkDir, m.logger)
	if err != nil {
		return err
	}
	m.rctx = rctx

	m.admin, err = newAdminClient(&m.cfg, m.logger)
	if err != nil {
		return err
	}
	m.storage = newStorageEngine(m.cfg.OracleHome, m.cfg.SID, m.rctx, m.logger)
	m.tablespaces = newTablespaceManager(m.admin, m.logger)
	m.tempfiles = newTempfileRelocator(m.admin, m.logger)
	m.redo = newRedoLogRelocator(m.admin, m.logger)

	migrationGauge.Set(1)
	defer migrationGauge.Set(0)

	phases := []phase{
		{"validate", m.validate},
		{"preflight", m.runPreflight},
		{"cluster-register", m.clusterRegister},
		{"restart-source", m.restartSource},
		{"generate-command-sets", m.generateCommandSets},
		{"detach-tablespaces", m.detachTablespaces},
		{"retarget-parameters", m.retargetParameters},
		{"externalize-spfile", m.externalizeSpfile},
		{"relocate-storage", m.relocateStorage},
		{"restart-target", m.restartTarget},
		{"add-tempfiles", m.addTempfiles},
		{"relocate-redo", m.relocateRedo},
		{"restore-read-only", m.restoreReadOnly},
		{"cluster-teardown", m.clusterTeardown},
		{"mount-checkpoint", m.mountCheckpoint},
		{"drop-old-tempfiles", m.dropOldTempfiles},
		{"final-shutdown", m.finalShutdown},
		{"preserve-pfile", m.preservePfile},
		{"final-startup", m.finalStartup},
	}

	for _, p := range phases {
		if cerr := tctx.Context().Err(); cerr != nil {
			m.rctx.Retain()
			return terror.ErrMigratorInterrupt.Delegate(cerr, p.name)
		}
		if err = m.runPhase(tctx, p); err != nil {
			m.rctx.Retain()
			return err
		}
	}

	m.rctx.RemoveAll()
	m.logger.Info("migration finished", zap.String("report", m.finalReport()))
	return nil
}

// runPhase runs a single phase, records its result and updates metrics.
func (m *Migrator) runPhase(tctx *tcontext.Context, p phase) error {
	begin := time.Now()
	tctx.L().Info("phase started", zap.String("phase", p.name))

	output, err := p.run(tctx)
	failpoint.Inject("phaseFailed", func(val failpoint.Value) {
		if name, ok := val.(string); ok && name == p.name {
			tctx.L().Info("phase failure injected", zap.String("failpoint", "phaseFailed"), zap.String("phase", p.name))
			err = terror.ErrMigratorPhaseFailed.Generate(p.name, "injected failure")
		}
	})

	duration := time.Since(begin)
	pr := PhaseResult{Phase: p.name, Succeeded: err == nil, Output: output, Duration: duration}
	m.results = append(m.results, pr)
	m.rctx.RecordResult(pr)
	phaseDurationHistogram.WithLabelValues(p.name).Observe(duration.Seconds())

	if err != nil {
		phaseErrorCounter.WithLabelValues(p.name).Inc()
		tctx.L().Error("phase failed", zap.String("phase", p.name),
			zap.Duration("cost time", duration), log.ShortError(err))
		if _, ok := err.(*terror.Error); ok {
			return err
		}
		return terror.ErrMigratorPhaseFailed.Delegate(err, p.name, err.Error())
	}
	tctx.L().Info("phase finished", zap.String("phase", p.name), zap.Duration("cost time", duration))
	return nil
}

// validate re-checks the run parameters and obtains the operator's
// confirmation. The migration is destructive and not compensable, so an
// interactive run must be acknowledged explicitly.
func (m *Migrator) validate(tctx *tcontext.Context) (string, error) {
	tctx.L().Info("run parameters",
		zap.String("instance", m.cfg.SID),
		zap.String("data destination", m.cfg.DataDest),
		zap.String("redo destination", m.cfg.RedoDest),
		zap.Int("parallelism", m.cfg.Parallelism))
	if m.cfg.NoConfirm {
		return "", nil
	}
	rl, err := readline.New(fmt.Sprintf("convert %s to physical storage under %s, this cannot be undone [yes/no]: ",
		m.cfg.SID, m.cfg.DataDest))
	if err != nil {
		return "", terror.ErrConfigConfirmFailed.Delegate(err)
	}
	defer rl.Close()
	line, err := rl.Readline()
	if err != nil {
		return "", terror.ErrConfigConfirmFailed.Delegate(err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return "confirmed", nil
	default:
		return "", terror.ErrConfigAborted.Generate()
	}
}

func (m *Migrator) runPreflight(tctx *tcontext.Context) (string, error) {
	return "", m.preflight(tctx)
}

func (m *Migrator) clusterRegister(tctx *tcontext.Context) (string, error) {
	if !m.coord.Clustered() {
		return "not clustered, skipped", nil
	}
	err := m.coord.Register(tctx, m.st.sourceUniqueName, m.st.targetUniqueName,
		m.cfg.OracleHome, m.targetSpfilePath())
	return "", err
}

// restartSource bounces the instance off its original parameter store so the
// pipeline starts from a clean memory state.
func (m *Migrator) restartSource(tctx *tcontext.Context) (string, error) {
	return "", m.admin.Startup(tctx, StartOpen, "")
}

// generateCommandSets derives every command set of the run from the typed
// catalog records captured at preflight, then persists them as artifacts. The
// restore set is derived from the same records as the toggle set, in the same
// order, so it restores exactly the states the toggle changed.
func (m *Migrator) generateCommandSets(tctx *tcontext.Context) (string, error) {
	st := m.st
	st.addTempfiles, st.dropTempfiles = m.tempfiles.ComputeRelocation(st.tempfiles, m.cfg.DataDest)
	st.dropOffline = m.tablespaces.ComputeOfflineDrop(st.tablespaces)
	st.readWrite, st.readOnly = m.tablespaces.ComputeReadWriteToggle(st.tablespaces)

	for _, cs := range []CommandSet{st.addTempfiles, st.dropTempfiles, st.dropOffline, st.readWrite, st.readOnly} {
		if cs.Empty() {
			continue
		}
		if _, err := m.rctx.CreateArtifact(cs.Name+".sql", strings.Join(cs.Statements, ";\n")+";\n"); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("add-tempfiles=%d drop-tempfiles=%d drop-offline=%d read-write=%d",
		len(st.addTempfiles.Statements), len(st.dropTempfiles.Statements),
		len(st.dropOffline.Statements), len(st.readWrite.Statements)), nil
}

// detachTablespaces puts read-only tablespaces into read write so the copy
// relocation carries them, and drops offline tablespaces outright.
func (m *Migrator) detachTablespaces(tctx *tcontext.Context) (string, error) {
	out, err := m.tablespaces.Apply(tctx, m.st.readWrite)
	if err != nil {
		return out, terror.ErrRelocateTablespaceToggle.Delegate(err, "read write")
	}
	out2, err := m.tablespaces.Apply(tctx, m.st.dropOffline)
	if err != nil {
		return out + out2, terror.ErrRelocateTablespaceDrop.Delegate(err)
	}
	return out + out2, nil
}

// retargetParameters rewrites the persistent parameters for the destination
// storage and identity, then restarts unmounted so the new values are live in
// memory without touching the old files.
func (m *Migrator) retargetParameters(tctx *tcontext.Context) (string, error) {
	st := m.st
	stmts := []string{
		fmt.Sprintf("ALTER SYSTEM SET db_unique_name='%s' SCOPE=SPFILE", st.targetUniqueName),
		fmt.Sprintf("ALTER SYSTEM SET db_create_file_dest='%s' SCOPE=SPFILE", m.cfg.DataDest),
		fmt.Sprintf("ALTER SYSTEM SET db_create_online_log_dest_1='%s' SCOPE=SPFILE", m.cfg.RedoDest),
		fmt.Sprintf("ALTER SYSTEM SET %s='LOCATION=%s' SCOPE=SPFILE", st.archiveDestParam, m.cfg.DataDest),
		fmt.Sprintf("ALTER SYSTEM SET control_files='%s' SCOPE=SPFILE", m.controlfileDest()),
		"ALTER SYSTEM RESET filesystemio_options SCOPE=SPFILE SID='*'",
	}
	out, err := m.admin.ExecBatch(tctx, "retarget-parameters", stmts)
	if err != nil {
		return out, err
	}
	return out, m.admin.Startup(tctx, StartNomount, "")
}

// externalizeSpfile writes the retargeted parameters into the server
// parameter file of the target identity.
func (m *Migrator) externalizeSpfile(tctx *tcontext.Context) (string, error) {
	stmt := fmt.Sprintf("CREATE SPFILE='%s' FROM MEMORY", m.targetSpfilePath())
	out, err := m.admin.ExecBatch(tctx, "externalize-spfile", []string{stmt})
	if err != nil {
		return out, terror.ErrAdminSpfileCreate.Delegate(err, m.targetSpfilePath())
	}
	return out, nil
}

func (m *Migrator) relocateStorage(tctx *tcontext.Context) (string, error) {
	req := RelocateRequest{
		ControlfilePath:     m.st.controlfilePath,
		ControlfileDest:     m.controlfileDest(),
		DataDest:            m.cfg.DataDest,
		SnapshotControlfile: filepath.Join(m.cfg.DataDest, fmt.Sprintf("snapcf_%s.f", m.st.targetUniqueName)),
		Parallelism:         m.cfg.Parallelism,
		SkipOffline:         true,
	}
	out, err := m.storage.Relocate(tctx, req)
	if err == nil {
		relocatedBytesGauge.Set(float64(m.st.totalDataBytes))
	}
	return out, err
}

// restartTarget brings the instance up on the relocated storage under the
// target identity, from a minimal pfile that chains to the externalized
// parameter store.
func (m *Migrator) restartTarget(tctx *tcontext.Context) (string, error) {
	boot, err := m.rctx.CreateArtifact("init_boot.ora", fmt.Sprintf("spfile='%s'\n", m.targetSpfilePath()))
	if err != nil {
		return "", err
	}
	m.st.bootPfile = boot

	if err = m.admin.Shutdown(tctx, ShutdownAbort); err != nil {
		return "", err
	}
	if m.coord.Clustered() {
		if err = m.coord.StartDatabase(tctx, m.st.targetUniqueName); err != nil {
			return "", err
		}
		instance, ierr := m.coord.ResolveLocalIdentity(tctx, m.st.targetUniqueName, m.st.localInstance)
		if ierr != nil {
			return "", ierr
		}
		// adopt the resolved identity for every remaining local operation
		m.st.localInstance = instance
		m.admin.SetLocalInstance(instance)
		return "local instance " + instance, nil
	}
	return "", m.admin.Startup(tctx, StartOpen, m.st.bootPfile)
}

func (m *Migrator) addTempfiles(tctx *tcontext.Context) (string, error) {
	return m.tempfiles.Apply(tctx, m.st.addTempfiles)
}

func (m *Migrator) relocateRedo(tctx *tcontext.Context) (string, error) {
	return "", m.redo.Relocate(tctx, m.st.redoGroups, m.cfg.RedoDest)
}

func (m *Migrator) restoreReadOnly(tctx *tcontext.Context) (string, error) {
	out, err := m.tablespaces.Apply(tctx, m.st.readOnly)
	if err != nil {
		return out, terror.ErrRelocateTablespaceToggle.Delegate(err, "read only")
	}
	return out, nil
}

// clusterTeardown removes the transient registration. It never fails the run.
func (m *Migrator) clusterTeardown(tctx *tcontext.Context) (string, error) {
	if !m.coord.Clustered() {
		return "not clustered, skipped", nil
	}
	m.coord.Teardown(tctx, m.st.sourceUniqueName, m.st.targetUniqueName)
	return "", nil
}

// mountCheckpoint restarts mount-only and verifies the relocated controlfile
// carries a mountable database before anything else is dropped.
func (m *Migrator) mountCheckpoint(tctx *tcontext.Context) (string, error) {
	if err := m.admin.Startup(tctx, StartMount, m.st.bootPfile); err != nil {
		return "", err
	}
	status, err := m.admin.QueryScalar(tctx, queryInstanceStatus)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(status, "MOUNTED") {
		return status, terror.ErrMigratorPhaseFailed.Generate("mount-checkpoint",
			fmt.Sprintf("unexpected instance status %q after mount", status))
	}
	return m.admin.ExecBatch(tctx, "reopen", []string{"ALTER DATABASE OPEN"})
}

func (m *Migrator) dropOldTempfiles(tctx *tcontext.Context) (string, error) {
	return m.tempfiles.Apply(tctx, m.st.dropTempfiles)
}

func (m *Migrator) finalShutdown(tctx *tcontext.Context) (string, error) {
	return "", m.admin.Shutdown(tctx, ShutdownImmediate)
}

// preservePfile backs up the original client-side parameter file, then
// rewrites it to chain to the externalized parameter store so manual
// startups keep working after the migration.
func (m *Migrator) preservePfile(tctx *tcontext.Context) (string, error) {
	pfile := filepath.Join(m.cfg.OracleHome, "dbs", fmt.Sprintf("init%s.ora", m.cfg.SID))
	if utils.IsFileExists(pfile) {
		saved := pfile + ".premigration"
		if err := utils.CopyFile(pfile, saved); err != nil {
			return "", terror.ErrMigratorPfilePreserve.Delegate(err, pfile)
		}
		tctx.L().Info("original pfile preserved", zap.String("copy", saved))
	}
	content := fmt.Sprintf("spfile='%s'\n", m.targetSpfilePath())
	if err := ioutil.WriteFile(pfile, []byte(content), 0644); err != nil {
		return "", terror.ErrMigratorPfilePreserve.Delegate(err, pfile)
	}
	return pfile, nil
}

// finalStartup brings the migrated database up across all registered
// instances. A non-clustered database stays down after the final shutdown;
// starting it is the operator's follow-up step.
func (m *Migrator) finalStartup(tctx *tcontext.Context) (string, error) {
	if !m.coord.Clustered() {
		return "not clustered, skipped", nil
	}
	return "", m.coord.FinalStartup(tctx, m.st.targetUniqueName)
}

func (m *Migrator) targetSpfilePath() string {
	return filepath.Join(m.cfg.OracleHome, "dbs", fmt.Sprintf("spfile%s.ora", m.st.targetUniqueName))
}

func (m *Migrator) controlfileDest() string {
	return filepath.Join(m.cfg.DataDest, fmt.Sprintf("control_%s.ctl", m.st.targetUniqueName))
}

// Close releases the admin channel. It is safe to call more than once.
func (m *Migrator) Close() {
	if m.closed.Get() {
		return
	}
	m.closed.Set(true)
	if m.admin != nil {
		if err := m.admin.Close(); err != nil {
			m.logger.Warn("close admin channel", log.ShortError(err))
		}
	}
}
