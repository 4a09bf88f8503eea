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
	"sort"

	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
)

// relocation states of a single redo log group
type redoState int

const (
	redoAdd redoState = iota
	redoDrop
	redoRecover
	redoDropRetry
	redoDone
)

func (s redoState) String() string {
	switch s {
	case redoAdd:
		return "add"
	case redoDrop:
		return "drop"
	case redoRecover:
		return "recover"
	case redoDropRetry:
		return "drop-retry"
	case redoDone:
		return "done"
	}
	return fmt.Sprintf("unknown redo state: %d", int(s))
}

// redoLogRelocator moves every online log group to the new destination. Each
// group walks an explicit state machine:
//
//	add -> drop -> done
//	          `-> recover -> drop-retry -> done | fatal
//
// The drop of the active write target fails by design; a forced log switch
// plus a global checkpoint clears that condition, so exactly one retry is
// permitted. This is the only retry policy in the pipeline.
type redoLogRelocator struct {
	admin  AdminClient
	logger log.Logger
}

func newRedoLogRelocator(admin AdminClient, logger log.Logger) *redoLogRelocator {
	return &redoLogRelocator{
		admin:  admin,
		logger: logger.WithFields(zap.String("unit", "redolog")),
	}
}

// Relocate processes the groups discovered at preflight in ascending group
// order. The replacement log for a group is always added before its old
// group is dropped.
func (r *redoLogRelocator) Relocate(tctx *tcontext.Context, groups []RedoLogGroup, redoDest string) error {
	ordered := make([]RedoLogGroup, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Group < ordered[j].Group })

	for _, group := range ordered {
		if err := r.relocateGroup(tctx, group, redoDest); err != nil {
			return err
		}
	}
	return nil
}

func (r *redoLogRelocator) relocateGroup(tctx *tcontext.Context, group RedoLogGroup, redoDest string) error {
	logger := r.logger.WithFields(zap.Int("group", group.Group), zap.Int("thread", group.Thread))

	state := redoAdd
	for state != redoDone {
		logger.Info("redo relocation step", zap.Stringer("state", state))
		switch state {
		case redoAdd:
			stmt := fmt.Sprintf("ALTER DATABASE ADD LOGFILE THREAD %d '%s/redo_t%d_g%d.log' SIZE %dK",
				group.Thread, redoDest, group.Thread, group.Group, group.SizeKB)
			if _, err := r.admin.ExecBatch(tctx, fmt.Sprintf("redo_add_g%d", group.Group), []string{stmt}); err != nil {
				return terror.ErrRedoAddMember.AnnotateDelegate(err, "add replacement log for group %d thread %d", group.Group, group.Thread)
			}
			state = redoDrop

		case redoDrop:
			if err := r.dropGroup(tctx, group); err != nil {
				// the usual cause is the group being CURRENT or ACTIVE
				rerr := terror.ErrRedoDropRetryable.Delegate(err, group.Group)
				logger.Warn("drop failed, group presumed active", log.ShortError(rerr))
				state = redoRecover
				continue
			}
			state = redoDone

		case redoRecover:
			stmts := []string{
				"ALTER SYSTEM SWITCH LOGFILE",
				"ALTER SYSTEM CHECKPOINT GLOBAL",
			}
			if _, err := r.admin.ExecBatch(tctx, fmt.Sprintf("redo_recover_g%d", group.Group), stmts); err != nil {
				return terror.ErrRedoDropRetryExhausted.AnnotateDelegate(err, "force switch and checkpoint for group %d", group.Group)
			}
			state = redoDropRetry

		case redoDropRetry:
			if err := r.dropGroup(tctx, group); err != nil {
				return terror.ErrRedoDropRetryExhausted.AnnotateDelegate(err, "drop log group %d failed after forced switch and checkpoint", group.Group)
			}
			state = redoDone
		}
	}
	logger.Info("redo group relocated")
	return nil
}

func (r *redoLogRelocator) dropGroup(tctx *tcontext.Context, group RedoLogGroup) error {
	stmt := fmt.Sprintf("ALTER DATABASE DROP LOGFILE GROUP %d", group.Group)
	_, err := r.admin.ExecBatch(tctx, fmt.Sprintf("redo_drop_g%d", group.Group), []string{stmt})
	if err != nil {
		return terror.ErrRedoDropGroup.Delegate(err, group.Group)
	}
	return nil
}
