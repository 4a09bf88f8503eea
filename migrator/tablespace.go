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

	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
)

// tablespaceManager computes and applies tablespace status transitions. The
// command sets are generated once from the preflight records; the read-only
// restoration set is derived from the same records in the same order, it is
// NOT re-queried at restoration time.
type tablespaceManager struct {
	admin  AdminClient
	logger log.Logger
}

func newTablespaceManager(admin AdminClient, logger log.Logger) *tablespaceManager {
	return &tablespaceManager{
		admin:  admin,
		logger: logger.WithFields(zap.String("unit", "tablespace")),
	}
}

// ComputeOfflineDrop generates one drop-with-contents statement per OFFLINE
// tablespace. Offline tablespaces are not copied by the storage engine, so
// they cannot survive the migration.
func (t *tablespaceManager) ComputeOfflineDrop(tablespaces []Tablespace) CommandSet {
	cs := CommandSet{Name: "drop_offline_tablespaces"}
	for _, ts := range tablespaces {
		if ts.Status != TablespaceOffline {
			continue
		}
		cs.Statements = append(cs.Statements,
			fmt.Sprintf("DROP TABLESPACE %s INCLUDING CONTENTS", ts.Name))
	}
	return cs
}

// ComputeReadWriteToggle generates the set switching every READ ONLY
// tablespace to read write, plus the inverse restoration set over the same
// tablespaces in the same order.
func (t *tablespaceManager) ComputeReadWriteToggle(tablespaces []Tablespace) (toggle, restore CommandSet) {
	toggle = CommandSet{Name: "tablespaces_read_write"}
	restore = CommandSet{Name: "tablespaces_read_only"}
	for _, ts := range tablespaces {
		if ts.Status != TablespaceReadOnly {
			continue
		}
		toggle.Statements = append(toggle.Statements,
			fmt.Sprintf("ALTER TABLESPACE %s READ WRITE", ts.Name))
		restore.Statements = append(restore.Statements,
			fmt.Sprintf("ALTER TABLESPACE %s READ ONLY", ts.Name))
	}
	return toggle, restore
}

// Apply executes a command set against the engine. Partial application is
// possible when a statement in the middle fails; nothing is rolled back.
func (t *tablespaceManager) Apply(tctx *tcontext.Context, cs CommandSet) (string, error) {
	if cs.Empty() {
		t.logger.Info("nothing to do", zap.String("command set", cs.Name))
		return "", nil
	}
	return t.admin.ExecBatch(tctx, cs.Name, cs.Statements)
}
