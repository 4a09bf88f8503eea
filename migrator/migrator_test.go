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
	"os"
	"path/filepath"
	"strings"

	. "github.com/pingcap/check"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
	"github.com/vdbtools/v2p/pkg/utils"
)

// fakeAdmin records every call made through the admin boundary and replays
// canned catalog answers.
type fakeAdmin struct {
	scalars map[string]string
	grids   map[string][][]string
	gridErr map[string]error

	instance  string
	batches   []string
	batchSIDs []string
	stmts     map[string][]string
	failBatch map[string]int // batch name -> remaining failures
	startups  []string
	shutdowns []string
	closed    bool
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		scalars:   make(map[string]string),
		grids:     make(map[string][][]string),
		gridErr:   make(map[string]error),
		stmts:     make(map[string][]string),
		failBatch: make(map[string]int),
	}
}

func (f *fakeAdmin) QueryScalar(tctx *tcontext.Context, query string) (string, error) {
	return f.scalars[query], nil
}

func (f *fakeAdmin) QueryGrid(tctx *tcontext.Context, query string) ([][]string, error) {
	if err := f.gridErr[query]; err != nil {
		return nil, err
	}
	return f.grids[query], nil
}

func (f *fakeAdmin) ExecBatch(tctx *tcontext.Context, name string, stmts []string) (string, error) {
	f.batches = append(f.batches, name)
	f.batchSIDs = append(f.batchSIDs, f.instance)
	f.stmts[name] = append([]string{}, stmts...)
	if remaining := f.failBatch[name]; remaining > 0 {
		f.failBatch[name] = remaining - 1
		return "ORA-fake: batch failed", fmt.Errorf("batch %s failed", name)
	}
	return "ok", nil
}

func (f *fakeAdmin) SetLocalInstance(instance string) {
	f.instance = instance
}

func (f *fakeAdmin) Startup(tctx *tcontext.Context, mode StartMode, pfile string) error {
	f.startups = append(f.startups, strings.TrimSpace(string(mode)+" "+pfile))
	return nil
}

func (f *fakeAdmin) Shutdown(tctx *tcontext.Context, mode ShutdownMode) error {
	f.shutdowns = append(f.shutdowns, string(mode))
	return nil
}

func (f *fakeAdmin) Close() error {
	f.closed = true
	return nil
}

// fakeStorage records the relocation request.
type fakeStorage struct {
	requests []RelocateRequest
	err      error
}

func (f *fakeStorage) Relocate(tctx *tcontext.Context, req RelocateRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "relocation output", f.err
	}
	return "relocation output", nil
}

var _ = Suite(&testMigratorSuite{})

type testMigratorSuite struct {
	cleanup func()
}

// newTestSetup wires a Migrator against fakes, with a standalone two-temp
// three-redo source resembling a small production virtual database.
func (t *testMigratorSuite) newTestSetup(c *C) (*Migrator, *fakeAdmin, *fakeStorage, *Config) {
	oracleHome := c.MkDir()
	c.Assert(os.MkdirAll(filepath.Join(oracleHome, "dbs"), 0755), IsNil)

	cfg := &Config{
		SID:              "ORCL",
		OracleHome:       oracleHome,
		Auth:             defaultAuth,
		TargetUniqueName: "ORCLP",
		DataDest:         c.MkDir(),
		RedoDest:         c.MkDir(),
		Parallelism:      4,
		NoConfirm:        true,
		WorkDir:          c.MkDir(),
	}

	admin := newFakeAdmin()
	admin.scalars[queryUniqueName] = "ORCL"
	admin.scalars[querySpfile] = filepath.Join(oracleHome, "dbs", "spfileORCL.ora")
	admin.scalars[queryControlfile] = "/vdb/ORCL/control01.ctl"
	admin.scalars[queryArchiveDest] = "LOG_ARCHIVE_DEST_2"
	admin.scalars[queryClustered] = "FALSE"
	admin.scalars[queryInstance] = "ORCL"
	admin.scalars[queryDataBytes] = "10737418240"
	admin.scalars[queryInstanceStatus] = "MOUNTED"
	admin.grids[queryTablespaces] = [][]string{
		{"HIST", "READ ONLY"},
		{"SCRATCH", "OFFLINE"},
		{"SYSTEM", "ONLINE"},
		{"USERS", "ONLINE"},
	}
	admin.grids[queryTempfiles] = [][]string{
		{"TEMP", "/vdb/ORCL/temp01.dbf", "1073741824"},
		{"TEMP", "/vdb/ORCL/temp02.dbf", "1073741824"},
	}
	admin.grids[queryRedoGroups] = [][]string{
		{"2", "1", "204800"},
		{"1", "1", "204800"},
		{"3", "1", "204800.5"},
	}

	storage := &fakeStorage{}

	oldAdmin, oldStorage := newAdminClient, newStorageEngine
	newAdminClient = func(*Config, log.Logger) (AdminClient, error) { return admin, nil }
	newStorageEngine = func(string, string, *RunContext, log.Logger) StorageEngine { return storage }
	t.cleanup = func() {
		newAdminClient, newStorageEngine = oldAdmin, oldStorage
	}

	return NewMigrator(cfg), admin, storage, cfg
}

func (t *testMigratorSuite) TestRunSuccess(c *C) {
	m, admin, storage, cfg := t.newTestSetup(c)
	defer t.cleanup()
	defer m.Close()

	err := m.Run(context.Background())
	c.Assert(err, IsNil)
	c.Assert(admin.closed, IsFalse)

	c.Assert(m.results, HasLen, 19)
	for _, pr := range m.results {
		c.Assert(pr.Succeeded, IsTrue)
	}

	// artifacts removed on success
	c.Assert(utils.IsDirExists(m.rctx.Dir), IsFalse)

	// read-write toggle ran before the offline drops, adds before every drop
	order := make(map[string]int)
	for i, name := range admin.batches {
		if _, ok := order[name]; !ok {
			order[name] = i
		}
	}
	c.Assert(order["tablespaces_read_write"] < order["drop_offline_tablespaces"], IsTrue)
	c.Assert(order["add_tempfiles"] < order["tablespaces_read_only"], IsTrue)
	c.Assert(order["tablespaces_read_only"] < order["drop_tempfiles"], IsTrue)

	// redo groups relocated ascending, replacement added before drop
	c.Assert(order["redo_add_g1"] < order["redo_drop_g1"], IsTrue)
	c.Assert(order["redo_drop_g1"] < order["redo_add_g2"], IsTrue)
	c.Assert(order["redo_add_g2"] < order["redo_add_g3"], IsTrue)

	// generated statements honor the catalog records
	c.Assert(admin.stmts["drop_offline_tablespaces"], DeepEquals,
		[]string{"DROP TABLESPACE SCRATCH INCLUDING CONTENTS"})
	c.Assert(admin.stmts["tablespaces_read_only"], DeepEquals,
		[]string{"ALTER TABLESPACE HIST READ ONLY"})
	c.Assert(admin.stmts["add_tempfiles"], DeepEquals, []string{
		fmt.Sprintf("ALTER TABLESPACE TEMP ADD TEMPFILE '%s' SIZE 1073741824", filepath.Join(cfg.DataDest, "temp01.dbf")),
		fmt.Sprintf("ALTER TABLESPACE TEMP ADD TEMPFILE '%s' SIZE 1073741824", filepath.Join(cfg.DataDest, "temp02.dbf")),
	})
	c.Assert(admin.stmts["drop_tempfiles"], DeepEquals, []string{
		"ALTER TABLESPACE TEMP DROP TEMPFILE '/vdb/ORCL/temp01.dbf'",
		"ALTER TABLESPACE TEMP DROP TEMPFILE '/vdb/ORCL/temp02.dbf'",
	})

	// the storage engine received the retargeted identity
	c.Assert(storage.requests, HasLen, 1)
	req := storage.requests[0]
	c.Assert(req.ControlfilePath, Equals, "/vdb/ORCL/control01.ctl")
	c.Assert(req.ControlfileDest, Equals, filepath.Join(cfg.DataDest, "control_ORCLP.ctl"))
	c.Assert(req.Parallelism, Equals, 4)
	c.Assert(req.SkipOffline, IsTrue)

	// retargeted parameters carry the discovered archive destination
	retarget := strings.Join(admin.stmts["retarget-parameters"], "\n")
	c.Assert(strings.Contains(retarget, "db_unique_name='ORCLP'"), IsTrue)
	c.Assert(strings.Contains(retarget, "log_archive_dest_2="), IsTrue)
	c.Assert(strings.Contains(retarget, "RESET filesystemio_options"), IsTrue)

	// pfile rewritten to chain to the externalized parameter store
	pfile := filepath.Join(cfg.OracleHome, "dbs", "initORCL.ora")
	content, rerr := ioutil.ReadFile(pfile)
	c.Assert(rerr, IsNil)
	c.Assert(string(content), Equals,
		fmt.Sprintf("spfile='%s'\n", filepath.Join(cfg.OracleHome, "dbs", "spfileORCLP.ora")))

	// final lifecycle: abort after relocation, immediate at the end; a
	// non-clustered database stays down after the final shutdown
	c.Assert(admin.shutdowns, DeepEquals, []string{string(ShutdownAbort), string(ShutdownImmediate)})
	c.Assert(admin.startups, HasLen, 4)
	c.Assert(admin.startups[0], Equals, "open")
	c.Assert(admin.startups[1], Equals, "nomount")
	c.Assert(strings.HasPrefix(admin.startups[2], "open "), IsTrue)
	c.Assert(strings.HasPrefix(admin.startups[3], "mount "), IsTrue)
}

func (t *testMigratorSuite) TestRunFailFast(c *C) {
	m, admin, storage, _ := t.newTestSetup(c)
	defer t.cleanup()
	defer m.Close()

	admin.failBatch["retarget-parameters"] = 1

	err := m.Run(context.Background())
	c.Assert(err, NotNil)
	c.Assert(terror.ErrAdminBatchFailed.Equal(err) || terror.ErrMigratorPhaseFailed.Equal(err), IsTrue)

	// halted at phase 7, nothing after it ran
	c.Assert(m.results, HasLen, 7)
	c.Assert(m.results[6].Phase, Equals, "retarget-parameters")
	c.Assert(m.results[6].Succeeded, IsFalse)
	c.Assert(storage.requests, HasLen, 0)

	// artifacts retained for diagnosis, audit log included
	c.Assert(utils.IsDirExists(m.rctx.Dir), IsTrue)
	c.Assert(utils.IsFileExists(filepath.Join(m.rctx.Dir, resultLogName)), IsTrue)
}

func (t *testMigratorSuite) TestRunInterrupted(c *C) {
	m, _, _, _ := t.newTestSetup(c)
	defer t.cleanup()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Run(ctx)
	c.Assert(terror.ErrMigratorInterrupt.Equal(err), IsTrue)
	c.Assert(m.results, HasLen, 0)
}

func (t *testMigratorSuite) TestRedoDropRetriedOnce(c *C) {
	m, admin, _, _ := t.newTestSetup(c)
	defer t.cleanup()
	defer m.Close()

	// group 2 is the active write target on the first drop attempt
	admin.failBatch["redo_drop_g2"] = 1

	err := m.Run(context.Background())
	c.Assert(err, IsNil)

	var sequence []string
	for _, name := range admin.batches {
		if strings.HasPrefix(name, "redo_") {
			sequence = append(sequence, name)
		}
	}
	c.Assert(sequence, DeepEquals, []string{
		"redo_add_g1", "redo_drop_g1",
		"redo_add_g2", "redo_drop_g2", "redo_recover_g2", "redo_drop_g2",
		"redo_add_g3", "redo_drop_g3",
	})
	c.Assert(admin.stmts["redo_recover_g2"], DeepEquals, []string{
		"ALTER SYSTEM SWITCH LOGFILE",
		"ALTER SYSTEM CHECKPOINT GLOBAL",
	})
}

// TestClusteredIdentityAdoption runs a clustered pipeline where the local
// instance comes back under a different name after relocation; every admin
// batch issued after the restart must target the resolved identity.
func (t *testMigratorSuite) TestClusteredIdentityAdoption(c *C) {
	_, admin, _, cfg := t.newTestSetup(c)
	defer t.cleanup()

	host, err := os.Hostname()
	c.Assert(err, IsNil)

	admin.scalars[queryClustered] = "TRUE"
	admin.instance = "ORCL"
	admin.grids[queryInstance] = [][]string{{"ORCL"}}
	admin.grids[queryGvInstances] = [][]string{{"ORCL", host}}
	cfg.GridHome = c.MkDir()
	cfg.TargetUniqueName = "" // keep the source unique name

	cluster := newFakeCluster()
	cluster.registered["ORCL"] = true
	cluster.running["ORCL"] = []Instance{{Name: "ORCL1", Host: host}}

	oldCluster := newClusterClient
	newClusterClient = func(string, log.Logger) ClusterClient { return cluster }
	defer func() { newClusterClient = oldCluster }()

	m := NewMigrator(cfg)
	defer m.Close()
	err = m.Run(context.Background())
	c.Assert(err, IsNil)
	c.Assert(m.st.localInstance, Equals, "ORCL1")
	c.Assert(admin.instance, Equals, "ORCL1")

	// batches before the target restart run under the source identity, the
	// rest under the resolved one
	sidOf := make(map[string]string)
	for i, name := range admin.batches {
		if _, ok := sidOf[name]; !ok {
			sidOf[name] = admin.batchSIDs[i]
		}
	}
	c.Assert(sidOf["retarget-parameters"], Equals, "ORCL")
	c.Assert(sidOf["externalize-spfile"], Equals, "ORCL")
	c.Assert(sidOf["add_tempfiles"], Equals, "ORCL1")
	c.Assert(sidOf["tablespaces_read_only"], Equals, "ORCL1")
	c.Assert(sidOf["reopen"], Equals, "ORCL1")
	c.Assert(sidOf["drop_tempfiles"], Equals, "ORCL1")

	// full registrar lifecycle: register, materialize, restart, teardown,
	// cluster-wide final startup
	spfile := filepath.Join(cfg.OracleHome, "dbs", "spfileORCL.ora")
	c.Assert(cluster.calls, DeepEquals, []string{
		"remove database ORCL",
		fmt.Sprintf("add database ORCL %s %s", cfg.OracleHome, spfile),
		"remove instance ORCL ORCL",
		fmt.Sprintf("add instance ORCL ORCL %s", host),
		"start database ORCL",
		"stop database ORCL abort=true",
		"start database ORCL",
		"stop database ORCL abort=false",
		"start database ORCL",
	})
}

func (t *testMigratorSuite) TestRelocationPhaseErrors(c *C) {
	cases := []struct {
		batch string
		check func(error) bool
	}{
		{"tablespaces_read_write", terror.ErrRelocateTablespaceToggle.Equal},
		{"drop_offline_tablespaces", terror.ErrRelocateTablespaceDrop.Equal},
		{"add_tempfiles", terror.ErrRelocateTempfile.Equal},
		{"tablespaces_read_only", terror.ErrRelocateTablespaceToggle.Equal},
		{"drop_tempfiles", terror.ErrRelocateTempfile.Equal},
	}
	for _, ca := range cases {
		m, admin, _, _ := t.newTestSetup(c)
		admin.failBatch[ca.batch] = 1
		err := m.Run(context.Background())
		c.Assert(err, NotNil, Commentf("batch %s", ca.batch))
		c.Assert(ca.check(err), IsTrue, Commentf("batch %s got %v", ca.batch, err))
		m.Close()
		t.cleanup()
	}
}

func (t *testMigratorSuite) TestRedoDropRetryExhausted(c *C) {
	m, admin, _, _ := t.newTestSetup(c)
	defer t.cleanup()
	defer m.Close()

	admin.failBatch["redo_drop_g1"] = 2

	err := m.Run(context.Background())
	c.Assert(terror.ErrRedoDropRetryExhausted.Equal(err), IsTrue)

	// fail-fast: groups after the fatal one were never touched
	for _, name := range admin.batches {
		c.Assert(strings.HasPrefix(name, "redo_add_g2"), IsFalse)
	}
	c.Assert(utils.IsDirExists(m.rctx.Dir), IsTrue)
}
