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

// ClusterCoordinator governs the cluster registrar phases of a run. The
// coordinator is selected once at preflight: clustered deployments get the
// registrar-backed one, everything else the no-op variant, so no later phase
// branches on cluster membership.
type ClusterCoordinator interface {
	// Register binds the target identity with the registrar before relocation.
	Register(tctx *tcontext.Context, vdbName, targetName, installPath, spfilePath string) error
	// ResolveLocalIdentity returns the instance name the local node works
	// under after relocation; it may differ from the source instance name.
	ResolveLocalIdentity(tctx *tcontext.Context, targetName, currentInstance string) (string, error)
	// StartDatabase starts the registered database.
	StartDatabase(tctx *tcontext.Context, targetName string) error
	// Teardown removes the transient registration. Failures are best-effort:
	// logged, never fatal.
	Teardown(tctx *tcontext.Context, vdbName, targetName string)
	// FinalStartup brings the migrated database up across all registered
	// instances.
	FinalStartup(tctx *tcontext.Context, targetName string) error
	// Clustered reports whether this coordinator talks to a real registrar.
	Clustered() bool
}

// newClusterClient is the registrar client initializer, a variable for testing.
var newClusterClient = newSrvctlClient

// newCoordinator selects the coordinator for the run.
func (m *Migrator) newCoordinator(cluster ClusterConfig) ClusterCoordinator {
	if !cluster.Clustered {
		return noopCoordinator{}
	}
	return &registrarCoordinator{
		cli:    newClusterClient(cluster.HomePath, m.logger),
		admin:  m.admin,
		logger: m.logger.WithFields(zap.String("unit", "cluster")),
	}
}

// noopCoordinator serves non-clustered deployments.
type noopCoordinator struct{}

func (noopCoordinator) Register(*tcontext.Context, string, string, string, string) error {
	return nil
}

func (noopCoordinator) ResolveLocalIdentity(_ *tcontext.Context, _, currentInstance string) (string, error) {
	return currentInstance, nil
}

func (noopCoordinator) StartDatabase(*tcontext.Context, string) error { return nil }

func (noopCoordinator) Teardown(*tcontext.Context, string, string) {}

func (noopCoordinator) FinalStartup(*tcontext.Context, string) error { return nil }

func (noopCoordinator) Clustered() bool { return false }

// registrarCoordinator drives the registrar through ClusterClient.
type registrarCoordinator struct {
	cli    ClusterClient
	admin  AdminClient
	logger log.Logger
}

// Register implements ClusterCoordinator.Register.
//
// When the target identity differs from the source, the target must already
// be known to the registrar and its configured instances must include the
// migrating instance; an identity mismatch cannot be repaired here. The stale
// source registration is removed, the target registered fresh, and every
// running instance re-bound to its node under the new identity. A start plus
// forced stop materializes the registration.
func (c *registrarCoordinator) Register(tctx *tcontext.Context, vdbName, targetName, installPath, spfilePath string) error {
	grid, err := c.admin.QueryGrid(tctx, queryInstance)
	if err != nil {
		return terror.Annotate(err, "query local instance name")
	}
	localInstance := ""
	if len(grid) > 0 {
		localInstance = grid[0][0]
	}

	if targetName != vdbName {
		known, err := c.cli.DatabaseRegistered(tctx, targetName)
		if err != nil {
			return err
		}
		if !known {
			return terror.ErrClusterTargetUnknown.Generate(targetName)
		}
		instances, err := c.cli.ConfiguredInstances(tctx, targetName)
		if err != nil {
			return err
		}
		if !containsString(instances, localInstance) {
			return terror.ErrClusterIdentityMismatch.Generate(targetName, localInstance)
		}
	}

	if known, err := c.cli.DatabaseRegistered(tctx, vdbName); err != nil {
		return err
	} else if known {
		if err = c.cli.RemoveDatabase(tctx, vdbName); err != nil {
			return terror.Annotatef(err, "remove stale registration of %s", vdbName)
		}
	}

	if err := c.cli.AddDatabase(tctx, targetName, installPath, spfilePath); err != nil {
		return err
	}

	running, err := c.admin.QueryGrid(tctx, queryGvInstances)
	if err != nil {
		return terror.Annotate(err, "enumerate running instances")
	}
	for _, row := range running {
		instance, node := row[0], row[1]
		// remove may fail when no stale binding exists
		if rerr := c.cli.RemoveInstance(tctx, targetName, instance); rerr != nil {
			c.logger.Warn("remove stale instance binding",
				zap.String("instance", instance), log.ShortError(rerr))
		}
		if err = c.cli.AddInstance(tctx, targetName, instance, node); err != nil {
			return terror.Annotatef(err, "bind instance %s to node %s", instance, node)
		}
	}

	// a start/stop cycle materializes the registration in the registrar
	if err = c.cli.StartDatabase(tctx, targetName); err != nil {
		return err
	}
	if err = c.cli.StopDatabase(tctx, targetName, true); err != nil {
		return err
	}
	c.logger.Info("target registered with cluster", zap.String("database", targetName))
	return nil
}

// ResolveLocalIdentity implements ClusterCoordinator.ResolveLocalIdentity.
func (c *registrarCoordinator) ResolveLocalIdentity(tctx *tcontext.Context, targetName, currentInstance string) (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", terror.ErrClusterLocalInstance.AnnotateDelegate(err, "resolve local host name")
	}
	instances, err := c.cli.RunningInstances(tctx, targetName)
	if err != nil {
		return "", err
	}
	for _, inst := range instances {
		if sameHost(inst.Host, host) {
			if inst.Name != currentInstance {
				c.logger.Info("local instance identity changed",
					zap.String("previous", currentInstance), zap.String("resolved", inst.Name))
			}
			return inst.Name, nil
		}
	}
	return "", terror.ErrClusterLocalInstance.Generate(targetName, host)
}

// StartDatabase implements ClusterCoordinator.StartDatabase.
func (c *registrarCoordinator) StartDatabase(tctx *tcontext.Context, targetName string) error {
	return c.cli.StartDatabase(tctx, targetName)
}

// Teardown implements ClusterCoordinator.Teardown.
func (c *registrarCoordinator) Teardown(tctx *tcontext.Context, vdbName, targetName string) {
	if err := c.cli.StopDatabase(tctx, targetName, false); err != nil {
		c.logger.Warn("stop target database", zap.String("database", targetName), log.ShortError(err))
	}
	if vdbName != targetName {
		if err := c.cli.RemoveDatabase(tctx, vdbName); err != nil {
			c.logger.Warn("remove obsolete source registration",
				zap.String("database", vdbName), log.ShortError(err))
		}
	}
}

// FinalStartup implements ClusterCoordinator.FinalStartup.
func (c *registrarCoordinator) FinalStartup(tctx *tcontext.Context, targetName string) error {
	return c.cli.StartDatabase(tctx, targetName)
}

// Clustered implements ClusterCoordinator.Clustered.
func (c *registrarCoordinator) Clustered() bool { return true }

func containsString(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// sameHost compares host names ignoring domain qualification.
func sameHost(a, b string) bool {
	return strings.EqualFold(strings.SplitN(a, ".", 2)[0], strings.SplitN(b, ".", 2)[0])
}

// srvctlClient implements ClusterClient over the srvctl binary of the
// cluster manager home.
type srvctlClient struct {
	gridHome string
	logger   log.Logger
}

func newSrvctlClient(gridHome string, logger log.Logger) ClusterClient {
	return &srvctlClient{
		gridHome: gridHome,
		logger:   logger.WithFields(zap.String("channel", "srvctl")),
	}
}

func (s *srvctlClient) run(tctx *tcontext.Context, args ...string) (string, error) {
	begin := time.Now()
	var out bytes.Buffer
	cmd := exec.CommandContext(tctx.Context(), filepath.Join(s.gridHome, "bin", "srvctl"), args...)
	cmd.Env = append(os.Environ(), "ORACLE_HOME="+s.gridHome)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	s.logger.Info("registrar command finished",
		zap.Strings("argument", args),
		zap.Duration("cost time", time.Since(begin)),
		log.ShortError(err))
	if err != nil {
		return out.String(), terror.ErrClusterCommand.AnnotateDelegate(err,
			"cluster registrar command %q failed: %s", strings.Join(args, " "), out.String())
	}
	return out.String(), nil
}

// DatabaseRegistered implements ClusterClient.DatabaseRegistered. srvctl
// reports an unknown database through a non-zero exit, which is not an error
// here.
func (s *srvctlClient) DatabaseRegistered(tctx *tcontext.Context, db string) (bool, error) {
	_, err := s.run(tctx, "config", "database", "-d", db)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// ConfiguredInstances implements ClusterClient.ConfiguredInstances.
func (s *srvctlClient) ConfiguredInstances(tctx *tcontext.Context, db string) ([]string, error) {
	out, err := s.run(tctx, "config", "database", "-d", db)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.Index(line, "Database instances:"); idx >= 0 {
			var names []string
			for _, name := range strings.Split(line[idx+len("Database instances:"):], ",") {
				if name = strings.TrimSpace(name); name != "" {
					names = append(names, name)
				}
			}
			return names, nil
		}
	}
	return nil, nil
}

// RunningInstances implements ClusterClient.RunningInstances, parsed from the
// registrar status output lines of the form
// "Instance <name> is running on node <node>".
func (s *srvctlClient) RunningInstances(tctx *tcontext.Context, db string) ([]Instance, error) {
	out, err := s.run(tctx, "status", "database", "-d", db)
	if err != nil {
		return nil, err
	}
	var instances []Instance
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 7 && fields[0] == "Instance" && fields[2] == "is" && fields[3] == "running" {
			instances = append(instances, Instance{Name: fields[1], Host: fields[6]})
		}
	}
	return instances, nil
}

// AddDatabase implements ClusterClient.AddDatabase.
func (s *srvctlClient) AddDatabase(tctx *tcontext.Context, db, home, spfile string) error {
	_, err := s.run(tctx, "add", "database", "-d", db, "-o", home, "-p", spfile)
	return err
}

// RemoveDatabase implements ClusterClient.RemoveDatabase.
func (s *srvctlClient) RemoveDatabase(tctx *tcontext.Context, db string) error {
	_, err := s.run(tctx, "remove", "database", "-d", db, "-f")
	return err
}

// AddInstance implements ClusterClient.AddInstance.
func (s *srvctlClient) AddInstance(tctx *tcontext.Context, db, instance, node string) error {
	_, err := s.run(tctx, "add", "instance", "-d", db, "-i", instance, "-n", node)
	return err
}

// RemoveInstance implements ClusterClient.RemoveInstance.
func (s *srvctlClient) RemoveInstance(tctx *tcontext.Context, db, instance string) error {
	_, err := s.run(tctx, "remove", "instance", "-d", db, "-i", instance, "-f")
	return err
}

// StartDatabase implements ClusterClient.StartDatabase.
func (s *srvctlClient) StartDatabase(tctx *tcontext.Context, db string) error {
	_, err := s.run(tctx, "start", "database", "-d", db)
	return err
}

// StopDatabase implements ClusterClient.StopDatabase.
func (s *srvctlClient) StopDatabase(tctx *tcontext.Context, db string, abort bool) error {
	args := []string{"stop", "database", "-d", db}
	if abort {
		args = append(args, "-o", "abort", "-f")
	}
	_, err := s.run(tctx, args...)
	return err
}
