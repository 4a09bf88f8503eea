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

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/terror"
)

var _ = Suite(&testPreflightSuite{})

type testPreflightSuite struct{}

func (t *testPreflightSuite) newMigrator(admin *fakeAdmin) *Migrator {
	m := NewMigrator(&Config{
		SID:        "ORCL",
		OracleHome: "/u01/app/oracle",
		DataDest:   "/oradata/ORCLP",
	})
	m.admin = admin
	return m
}

func (t *testPreflightSuite) newDiscoverableAdmin() *fakeAdmin {
	admin := newFakeAdmin()
	admin.scalars[queryUniqueName] = "ORCL"
	admin.scalars[querySpfile] = "/u01/app/oracle/dbs/spfileORCL.ora"
	admin.scalars[queryControlfile] = "/vdb/ORCL/control01.ctl"
	admin.scalars[queryClustered] = "FALSE"
	admin.scalars[queryInstance] = "ORCL"
	admin.scalars[queryDataBytes] = "1073741824"
	admin.grids[queryTablespaces] = [][]string{{"SYSTEM", "ONLINE"}, {"HIST", "READ ONLY"}}
	admin.grids[queryTempfiles] = [][]string{{"TEMP", "/vdb/ORCL/temp01.dbf", "1073741824"}}
	admin.grids[queryRedoGroups] = [][]string{{"1", "1", "204800"}, {"2", "1", "204800.25"}}
	return admin
}

func (t *testPreflightSuite) TestDiscovery(c *C) {
	admin := t.newDiscoverableAdmin()
	m := t.newMigrator(admin)

	c.Assert(m.preflight(tcontext.Background()), IsNil)
	st := m.st
	c.Assert(st.sourceUniqueName, Equals, "ORCL")
	// no -db-unique-name keeps the source identity
	c.Assert(st.targetUniqueName, Equals, "ORCL")
	c.Assert(st.spfilePath, Equals, "/u01/app/oracle/dbs/spfileORCL.ora")
	c.Assert(st.controlfilePath, Equals, "/vdb/ORCL/control01.ctl")
	// no archive destination configured falls back to the first slot
	c.Assert(st.archiveDestParam, Equals, defaultArchiveDestParam)
	c.Assert(st.cluster.Clustered, IsFalse)
	c.Assert(m.coord.Clustered(), IsFalse)
	c.Assert(st.tablespaces, DeepEquals, []Tablespace{
		{Name: "SYSTEM", Status: TablespaceOnline},
		{Name: "HIST", Status: TablespaceReadOnly},
	})
	c.Assert(st.tempfiles, DeepEquals, []TempFile{
		{Tablespace: "TEMP", FileName: "/vdb/ORCL/temp01.dbf", SizeBytes: 1073741824},
	})
	// fractional sizes are truncated, not rejected
	c.Assert(st.redoGroups, DeepEquals, []RedoLogGroup{
		{Group: 1, Thread: 1, SizeKB: 204800},
		{Group: 2, Thread: 1, SizeKB: 204800},
	})
	c.Assert(st.totalDataBytes, Equals, int64(1073741824))
}

func (t *testPreflightSuite) TestArchiveDestDiscovered(c *C) {
	admin := t.newDiscoverableAdmin()
	admin.scalars[queryArchiveDest] = "LOG_ARCHIVE_DEST_3"
	m := t.newMigrator(admin)

	c.Assert(m.preflight(tcontext.Background()), IsNil)
	c.Assert(m.st.archiveDestParam, Equals, "log_archive_dest_3")
}

func (t *testPreflightSuite) TestPreconditions(c *C) {
	admin := t.newDiscoverableAdmin()
	admin.scalars[querySpfile] = ""
	err := t.newMigrator(admin).preflight(tcontext.Background())
	c.Assert(terror.ErrPreflightNoSpfile.Equal(err), IsTrue)

	admin = t.newDiscoverableAdmin()
	admin.scalars[queryUniqueName] = ""
	err = t.newMigrator(admin).preflight(tcontext.Background())
	c.Assert(terror.ErrPreflightNoUniqueName.Equal(err), IsTrue)

	admin = t.newDiscoverableAdmin()
	admin.scalars[queryControlfile] = ""
	err = t.newMigrator(admin).preflight(tcontext.Background())
	c.Assert(terror.ErrPreflightNoControlfile.Equal(err), IsTrue)

	// a clustered source demands the cluster manager home
	admin = t.newDiscoverableAdmin()
	admin.scalars[queryClustered] = "TRUE"
	err = t.newMigrator(admin).preflight(tcontext.Background())
	c.Assert(terror.ErrConfigMissingGridHome.Equal(err), IsTrue)
}

func (t *testPreflightSuite) TestTargetIdentityOverride(c *C) {
	admin := t.newDiscoverableAdmin()
	m := t.newMigrator(admin)
	m.cfg.TargetUniqueName = "ORCLP"

	c.Assert(m.preflight(tcontext.Background()), IsNil)
	c.Assert(m.st.sourceUniqueName, Equals, "ORCL")
	c.Assert(m.st.targetUniqueName, Equals, "ORCLP")
}
