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
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
)

// tempfileRelocator computes the add/drop command sets relocating temp files
// to the new destination. The add set always runs before the drop set: a
// replacement tempfile must exist before the original is removed.
type tempfileRelocator struct {
	admin  AdminClient
	logger log.Logger
}

func newTempfileRelocator(admin AdminClient, logger log.Logger) *tempfileRelocator {
	return &tempfileRelocator{
		admin:  admin,
		logger: logger.WithFields(zap.String("unit", "tempfile")),
	}
}

// ComputeRelocation generates the paired command sets from the preflight
// tempfile records: one add per file at the destination sized like the
// original, and one drop per original file.
func (t *tempfileRelocator) ComputeRelocation(tempfiles []TempFile, dataDest string) (add, drop CommandSet) {
	add = CommandSet{Name: "add_tempfiles"}
	drop = CommandSet{Name: "drop_tempfiles"}
	for _, tf := range tempfiles {
		add.Statements = append(add.Statements,
			fmt.Sprintf("ALTER TABLESPACE %s ADD TEMPFILE '%s' SIZE %d",
				tf.Tablespace, filepath.Join(dataDest, filepath.Base(tf.FileName)), tf.SizeBytes))
		drop.Statements = append(drop.Statements,
			fmt.Sprintf("ALTER TABLESPACE %s DROP TEMPFILE '%s'", tf.Tablespace, tf.FileName))
	}
	return add, drop
}

// Apply executes a command set against the engine.
func (t *tempfileRelocator) Apply(tctx *tcontext.Context, cs CommandSet) (string, error) {
	if cs.Empty() {
		t.logger.Info("nothing to do", zap.String("command set", cs.Name))
		return "", nil
	}
	out, err := t.admin.ExecBatch(tctx, cs.Name, cs.Statements)
	if err != nil {
		return out, terror.ErrRelocateTempfile.Delegate(err, cs.Name)
	}
	return out, nil
}
