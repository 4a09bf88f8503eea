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
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
)

// newStorageEngine is the storage engine initializer, a variable for testing.
var newStorageEngine = newRMANEngine

// rmanEngine relocates data and control files through the recovery manager
// binary of the database home. The script is materialized as a run artifact
// so an aborted relocation can be inspected and resumed by hand.
type rmanEngine struct {
	oracleHome string
	sid        string
	rctx       *RunContext
	logger     log.Logger
}

func newRMANEngine(oracleHome, sid string, rctx *RunContext, logger log.Logger) StorageEngine {
	return &rmanEngine{
		oracleHome: oracleHome,
		sid:        sid,
		rctx:       rctx,
		logger:     logger.WithFields(zap.String("channel", "rman")),
	}
}

// buildScript renders the relocation run block. The copy is taken with the
// database mounted through the already-relocated control file, then the
// catalog is switched over, so a crash mid-copy leaves the source files
// untouched.
func (e *rmanEngine) buildScript(req RelocateRequest) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "restore controlfile to '%s' from '%s';\n", req.ControlfileDest, req.ControlfilePath)
	b.WriteString("alter database mount;\n")
	b.WriteString("run {\n")
	fmt.Fprintf(&b, "configure device type disk parallelism %d;\n", req.Parallelism)
	if req.SkipOffline {
		fmt.Fprintf(&b, "backup as copy database skip offline format '%s';\n", filepath.Join(req.DataDest, "%U"))
	} else {
		fmt.Fprintf(&b, "backup as copy database format '%s';\n", filepath.Join(req.DataDest, "%U"))
	}
	b.WriteString("switch database to copy;\n")
	b.WriteString("}\n")
	fmt.Fprintf(&b, "configure snapshot controlfile name to '%s';\n", req.SnapshotControlfile)
	b.WriteString("exit\n")
	return b.String()
}

// Relocate implements StorageEngine.Relocate.
func (e *rmanEngine) Relocate(tctx *tcontext.Context, req RelocateRequest) (string, error) {
	script := e.buildScript(req)
	scriptPath, err := e.rctx.CreateArtifact("relocate.rman", script)
	if err != nil {
		return "", terror.ErrStorageScript.AnnotateDelegate(err, "persist relocation script")
	}
	e.logger.Info("relocating database storage",
		zap.String("script", scriptPath),
		zap.String("data destination", req.DataDest),
		zap.Int("parallelism", req.Parallelism))

	begin := time.Now()
	var out bytes.Buffer
	cmd := exec.CommandContext(tctx.Context(), filepath.Join(e.oracleHome, "bin", "rman"), "target", "/")
	cmd.Env = append(os.Environ(), "ORACLE_SID="+e.sid, "ORACLE_HOME="+e.oracleHome)
	cmd.Stdin = bytes.NewBufferString(script)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	failpoint.Inject("rmanFailed", func() {
		e.logger.Info("relocation failed", zap.String("failpoint", "rmanFailed"))
		err = errors.New("RMAN-00569: error message stack follows")
	})
	e.logger.Info("storage relocation finished",
		zap.Duration("cost time", time.Since(begin)),
		log.ShortError(err))
	if err != nil {
		return out.String(), terror.ErrStorageRelocation.AnnotateDelegate(err,
			"storage relocation failed, output preserved in %s: %s", e.rctx.Dir, out.String())
	}
	return out.String(), nil
}
