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
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/terror"
)

// catalog queries issued once at preflight
const (
	queryUniqueName  = "SELECT db_unique_name FROM v$database"
	querySpfile      = "SELECT value FROM v$parameter WHERE name = 'spfile'"
	queryControlfile = "SELECT name FROM v$controlfile WHERE ROWNUM = 1"
	queryArchiveDest = "SELECT name FROM v$parameter WHERE name LIKE 'log_archive_dest_%' AND value IS NOT NULL AND ROWNUM = 1 ORDER BY name"
	queryClustered   = "SELECT value FROM v$parameter WHERE name = 'cluster_database'"
	queryInstance    = "SELECT instance_name FROM v$instance"
	queryDataBytes   = "SELECT NVL(SUM(bytes), 0) FROM dba_data_files"

	queryTablespaces = "SELECT tablespace_name, status FROM dba_tablespaces WHERE contents <> 'TEMPORARY' ORDER BY tablespace_name"
	queryTempfiles   = "SELECT tablespace_name, file_name, bytes FROM dba_temp_files ORDER BY file_name"
	queryRedoGroups  = "SELECT group#, thread#, bytes/1024 FROM v$log ORDER BY group#"
	queryGvInstances = "SELECT instance_name, host_name FROM gv$instance ORDER BY inst_id"
)

// defaultArchiveDestParam is used when no archive destination parameter is
// currently set on the source.
const defaultArchiveDestParam = "log_archive_dest_1"

// preflight discovers the source metadata the pipeline needs and verifies the
// preconditions that must hold before anything is mutated.
func (m *Migrator) preflight(tctx *tcontext.Context) error {
	st := m.st

	uniqueName, err := m.admin.QueryScalar(tctx, queryUniqueName)
	if err != nil {
		return terror.Annotate(err, "discover db_unique_name")
	}
	if uniqueName == "" {
		return terror.ErrPreflightNoUniqueName.Generate()
	}
	st.sourceUniqueName = uniqueName
	st.targetUniqueName = m.cfg.TargetUniqueName
	if st.targetUniqueName == "" {
		st.targetUniqueName = uniqueName
	}

	// the pipeline rewrites persistent parameters in place, so a dynamic
	// parameter store is a hard precondition.
	spfile, err := m.admin.QueryScalar(tctx, querySpfile)
	if err != nil {
		return terror.Annotate(err, "locate server parameter file")
	}
	if spfile == "" {
		return terror.ErrPreflightNoSpfile.Generate()
	}
	st.spfilePath = spfile

	controlfile, err := m.admin.QueryScalar(tctx, queryControlfile)
	if err != nil {
		return terror.Annotate(err, "locate current controlfile")
	}
	if controlfile == "" {
		return terror.ErrPreflightNoControlfile.Generate()
	}
	st.controlfilePath = controlfile

	archParam, err := m.admin.QueryScalar(tctx, queryArchiveDest)
	if err != nil {
		return terror.Annotate(err, "discover archive destination parameter")
	}
	if archParam == "" {
		archParam = defaultArchiveDestParam
	}
	st.archiveDestParam = strings.ToLower(archParam)

	clustered, err := m.admin.QueryScalar(tctx, queryClustered)
	if err != nil {
		return terror.Annotate(err, "discover cluster membership")
	}
	st.cluster.Clustered = strings.EqualFold(clustered, "TRUE")
	if st.cluster.Clustered {
		if m.cfg.GridHome == "" {
			return terror.ErrConfigMissingGridHome.Generate()
		}
		st.cluster.HomePath = m.cfg.GridHome
	}

	instance, err := m.admin.QueryScalar(tctx, queryInstance)
	if err != nil {
		return terror.Annotate(err, "discover local instance name")
	}
	st.localInstance = instance

	if err = m.discoverRelocatables(tctx); err != nil {
		return err
	}

	// cluster membership selects the coordinator once; no later phase
	// branches on it again.
	m.coord = m.newCoordinator(st.cluster)

	tctx.L().Info("preflight finished",
		zap.String("unique name", st.sourceUniqueName),
		zap.String("target unique name", st.targetUniqueName),
		zap.String("spfile", st.spfilePath),
		zap.String("controlfile", st.controlfilePath),
		zap.String("archive destination parameter", st.archiveDestParam),
		zap.Bool("clustered", st.cluster.Clustered),
		zap.Int("tablespaces", len(st.tablespaces)),
		zap.Int("tempfiles", len(st.tempfiles)),
		zap.Int("redo groups", len(st.redoGroups)),
		zap.String("data size", humanize.IBytes(uint64(st.totalDataBytes))))
	return nil
}

// discoverRelocatables reads the tablespace, tempfile and redo-log catalogs.
func (m *Migrator) discoverRelocatables(tctx *tcontext.Context) error {
	st := m.st

	grid, err := m.admin.QueryGrid(tctx, queryTablespaces)
	if err != nil {
		return terror.Annotate(err, "read tablespace catalog")
	}
	st.tablespaces = st.tablespaces[:0]
	for _, row := range grid {
		st.tablespaces = append(st.tablespaces, Tablespace{Name: row[0], Status: TablespaceStatus(row[1])})
	}

	grid, err = m.admin.QueryGrid(tctx, queryTempfiles)
	if err != nil {
		return terror.Annotate(err, "read tempfile catalog")
	}
	st.tempfiles = st.tempfiles[:0]
	for _, row := range grid {
		size, perr := strconv.ParseInt(row[2], 10, 64)
		if perr != nil {
			return terror.ErrPreflightQuery.AnnotateDelegate(perr, "parse tempfile size %q", row[2])
		}
		st.tempfiles = append(st.tempfiles, TempFile{Tablespace: row[0], FileName: row[1], SizeBytes: size})
	}

	grid, err = m.admin.QueryGrid(tctx, queryRedoGroups)
	if err != nil {
		return terror.Annotate(err, "read redo log catalog")
	}
	st.redoGroups = st.redoGroups[:0]
	for _, row := range grid {
		group, perr := strconv.Atoi(row[0])
		if perr != nil {
			return terror.ErrPreflightQuery.AnnotateDelegate(perr, "parse redo group %q", row[0])
		}
		thread, perr := strconv.Atoi(row[1])
		if perr != nil {
			return terror.ErrPreflightQuery.AnnotateDelegate(perr, "parse redo thread %q", row[1])
		}
		sizeKB, perr := strconv.ParseInt(strings.SplitN(row[2], ".", 2)[0], 10, 64)
		if perr != nil {
			return terror.ErrPreflightQuery.AnnotateDelegate(perr, "parse redo size %q", row[2])
		}
		st.redoGroups = append(st.redoGroups, RedoLogGroup{Group: group, Thread: thread, SizeKB: sizeKB})
	}

	totalStr, err := m.admin.QueryScalar(tctx, queryDataBytes)
	if err != nil {
		return terror.Annotate(err, "read data file sizes")
	}
	if totalStr != "" {
		total, perr := strconv.ParseInt(strings.SplitN(totalStr, ".", 2)[0], 10, 64)
		if perr != nil {
			return terror.ErrPreflightQuery.AnnotateDelegate(perr, "parse data size %q", totalStr)
		}
		st.totalDataBytes = total
	}
	return nil
}
