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
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
)

const resultLogName = "phase_results.log"

// RunContext owns everything scoped to a single migration run: the run
// identifier, the artifact directory and the phase-result audit log.
// Artifacts are removed on success and retained on failure for diagnosis.
type RunContext struct {
	RunID string
	Dir   string

	logger    log.Logger
	artifacts map[string]string
}

// NewRunContext derives the run identifier from the instance id and the
// process id, and creates the artifact directory under workDir.
func NewRunContext(sid, workDir string, logger log.Logger) (*RunContext, error) {
	runID := fmt.Sprintf("%s_%d", sid, os.Getpid())
	dir := filepath.Join(workDir, "v2p_"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, terror.ErrMigratorArtifact.Delegate(err, dir)
	}
	return &RunContext{
		RunID:     runID,
		Dir:       dir,
		logger:    logger.WithFields(zap.String("run", runID)),
		artifacts: make(map[string]string),
	}, nil
}

// CreateArtifact writes content under a unique file name and registers it.
// The short random suffix keeps artifacts of repeated failed runs apart.
func (r *RunContext) CreateArtifact(name, content string) (string, error) {
	token := strings.Replace(uuid.NewV4().String(), "-", "", -1)[:8]
	path := filepath.Join(r.Dir, fmt.Sprintf("%s_%s", name, token))
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		return "", terror.ErrMigratorArtifact.Delegate(err, name)
	}
	r.artifacts[name] = path
	r.logger.Debug("artifact created", zap.String("artifact", name), zap.String("path", path))
	return path, nil
}

// Artifact returns the path of a registered artifact, or empty.
func (r *RunContext) Artifact(name string) string {
	return r.artifacts[name]
}

// RecordResult appends a phase result to the audit log. The audit log is
// persisted even when every phase succeeds.
func (r *RunContext) RecordResult(pr PhaseResult) {
	line, err := json.Marshal(pr)
	if err != nil {
		r.logger.Error("marshal phase result", log.ShortError(err))
		return
	}
	f, err := os.OpenFile(filepath.Join(r.Dir, resultLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		r.logger.Error("open phase result log", log.ShortError(err))
		return
	}
	defer f.Close()
	if _, err = f.Write(append(line, '\n')); err != nil {
		r.logger.Error("append phase result", log.ShortError(err))
	}
}

// RemoveAll deletes every transient artifact of the run.
func (r *RunContext) RemoveAll() {
	if err := os.RemoveAll(r.Dir); err != nil {
		r.logger.Warn("remove run artifacts", zap.String("dir", r.Dir), log.ShortError(err))
		return
	}
	r.logger.Info("run artifacts removed", zap.String("dir", r.Dir))
}

// Retain logs where the run's diagnostics live; called on failure.
func (r *RunContext) Retain() {
	r.logger.Info("run artifacts retained for diagnosis", zap.String("dir", r.Dir))
}
