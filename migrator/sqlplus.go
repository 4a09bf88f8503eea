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
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
)

// sqlplusRunner is a simple wrapper for the sqlplus binary. It feeds a batch
// of administrative statements on stdin and captures the combined output,
// which is surfaced verbatim on failure.
type sqlplusRunner struct {
	oracleHome string
	sid        string
	auth       string

	logger log.Logger
}

func newSQLPlusRunner(cfg *Config, logger log.Logger) *sqlplusRunner {
	return &sqlplusRunner{
		oracleHome: cfg.OracleHome,
		sid:        cfg.SID,
		auth:       cfg.Auth,
		logger:     logger.WithFields(zap.String("channel", "sqlplus")),
	}
}

// setSID repoints the channel at another local instance identity.
func (r *sqlplusRunner) setSID(sid string) {
	r.logger.Info("admin channel repointed", zap.String("instance", sid))
	r.sid = sid
}

// run executes the statements as one batch. sqlerror aborts the batch with a
// non-zero exit, so a failing statement fails the whole call.
func (r *sqlplusRunner) run(tctx *tcontext.Context, name string, stmts []string) (string, error) {
	var script strings.Builder
	script.WriteString("whenever sqlerror exit sql.sqlcode\n")
	script.WriteString("set echo on\n")
	for _, stmt := range stmts {
		script.WriteString(stmt)
		if needsTerminator(stmt) {
			script.WriteByte(';')
		}
		script.WriteByte('\n')
	}
	script.WriteString("exit\n")

	begin := time.Now()
	r.logger.Info("run admin batch", zap.String("batch", name), zap.Int("statements", len(stmts)))

	var out bytes.Buffer
	cmd := exec.CommandContext(tctx.Context(), filepath.Join(r.oracleHome, "bin", "sqlplus"), "-S", r.auth)
	cmd.Env = append(os.Environ(),
		"ORACLE_SID="+r.sid,
		"ORACLE_HOME="+r.oracleHome,
	)
	cmd.Stdin = strings.NewReader(script.String())
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	r.logger.Info("admin batch finished", zap.String("batch", name),
		zap.Duration("cost time", time.Since(begin)), log.ShortError(err))
	if err != nil {
		return out.String(), terror.ErrAdminBatchFailed.AnnotateDelegate(err, "admin batch %s failed: %s", name, out.String())
	}
	return out.String(), nil
}

// needsTerminator tells whether sqlplus wants a trailing `;`. Instance state
// commands (startup/shutdown/connect) are sqlplus commands, not SQL.
func needsTerminator(stmt string) bool {
	lower := strings.ToLower(strings.TrimSpace(stmt))
	for _, prefix := range []string{"startup", "shutdown", "connect", "@"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return !strings.HasSuffix(lower, ";")
}

// startupStatement renders the sqlplus command driving the instance to the
// requested state from the requested parameter file.
func startupStatement(mode StartMode, pfile string) string {
	stmt := "startup force"
	switch mode {
	case StartMount:
		stmt += " mount"
	case StartNomount:
		stmt += " nomount"
	}
	if pfile != "" {
		stmt += fmt.Sprintf(" pfile='%s'", pfile)
	}
	return stmt
}
