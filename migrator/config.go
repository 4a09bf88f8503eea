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
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
	"github.com/vdbtools/v2p/pkg/utils"
)

const (
	defaultParallelism = 8
	maxParallelism     = 64
	defaultAuth        = "/ as sysdba"
)

// NewConfig creates a new base config for v2p.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.flagSet = flag.NewFlagSet("v2p", flag.ContinueOnError)
	fs := cfg.flagSet

	fs.BoolVar(&cfg.printVersion, "V", false, "prints version and exit")
	fs.StringVar(&cfg.ConfigFile, "config", "", "path to config file")
	fs.StringVar(&cfg.TargetUniqueName, "db-unique-name", "", "unique name for the migrated physical database, defaults to the source's unique name")
	fs.IntVar(&cfg.Parallelism, "parallel", defaultParallelism, "number of concurrent data-copy channels used by the storage engine")
	fs.BoolVar(&cfg.NoConfirm, "no-confirm", false, "suppress the interactive operator confirmation")
	fs.StringVar(&cfg.WorkDir, "work-dir", os.TempDir(), "directory for run-scoped artifacts")
	fs.StringVar(&cfg.LogLevel, "L", "info", "log level: debug, info, warn, error, fatal")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", `log format: "text" or "json"`)

	return cfg
}

// Config is the configuration of a migration run, the MigrationRequest. It is
// treated as immutable once the pipeline starts.
type Config struct {
	flagSet *flag.FlagSet

	LogLevel  string `toml:"log-level" json:"log-level"`
	LogFile   string `toml:"log-file" json:"log-file"`
	LogFormat string `toml:"log-format" json:"log-format"`

	// SID identifies the source virtual database instance, from ORACLE_SID.
	SID string `toml:"sid" json:"sid"`
	// OracleHome is the database installation, from ORACLE_HOME.
	OracleHome string `toml:"oracle-home" json:"oracle-home"`
	// GridHome is the cluster manager installation, from GRID_HOME. Required
	// only when the source is clustered.
	GridHome string `toml:"grid-home" json:"grid-home"`
	// Auth is the administrative login passed to the engine tools. The
	// default is a local OS-authenticated login.
	Auth string `toml:"auth" json:"-"`

	TargetUniqueName string `toml:"db-unique-name" json:"db-unique-name"`
	DataDest         string `toml:"data-dest" json:"data-dest"`
	RedoDest         string `toml:"redo-dest" json:"redo-dest"`
	Parallelism      int    `toml:"parallel" json:"parallel"`
	NoConfirm        bool   `toml:"no-confirm" json:"no-confirm"`
	WorkDir          string `toml:"work-dir" json:"work-dir"`

	ConfigFile string `json:"config-file"`

	printVersion bool
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		log.L().Error("marshal config to json", log.ShortError(err))
	}
	return string(cfg)
}

// Parse parses flag definitions from the argument list. The positional
// arguments are the required data destination and the optional redo
// destination.
func (c *Config) Parse(arguments []string) error {
	// Parse first to get config file.
	err := c.flagSet.Parse(arguments)
	if err != nil {
		return terror.ErrConfigParseFlagSet.Delegate(err)
	}

	if c.printVersion {
		fmt.Println(utils.GetRawInfo())
		return flag.ErrHelp
	}

	// Load config file if specified.
	if c.ConfigFile != "" {
		err = c.configFromFile(c.ConfigFile)
		if err != nil {
			return err
		}
	}

	// Parse again to replace with command line options.
	err = c.flagSet.Parse(arguments)
	if err != nil {
		return terror.ErrConfigParseFlagSet.Delegate(err)
	}

	switch args := c.flagSet.Args(); len(args) {
	case 0:
	case 1:
		c.DataDest = args[0]
	case 2:
		c.DataDest = args[0]
		c.RedoDest = args[1]
	default:
		return terror.ErrConfigInvalidFlag.Generate(c.flagSet.Arg(2))
	}

	c.adjustFromEnv()
	return c.adjust()
}

// adjustFromEnv fills the environment-sourced settings unless the config file
// already set them.
func (c *Config) adjustFromEnv() {
	if c.SID == "" {
		c.SID = os.Getenv("ORACLE_SID")
	}
	if c.OracleHome == "" {
		c.OracleHome = os.Getenv("ORACLE_HOME")
	}
	if c.GridHome == "" {
		c.GridHome = os.Getenv("GRID_HOME")
	}
	if c.Auth == "" {
		c.Auth = os.Getenv("V2P_AUTH")
	}
}

// adjust applies defaults and validates the request.
func (c *Config) adjust() error {
	if c.SID == "" {
		return terror.ErrConfigMissingSID.Generate()
	}
	if c.OracleHome == "" {
		return terror.ErrConfigMissingOracleHome.Generate()
	}
	if c.Auth == "" {
		c.Auth = defaultAuth
	}
	if c.DataDest == "" {
		return terror.ErrConfigDataDestNotValid.Generate(c.DataDest, "data destination is required")
	}
	if !utils.IsDirExists(c.DataDest) {
		return terror.ErrConfigDataDestNotValid.Generate(c.DataDest, "not an existing directory")
	}
	if c.RedoDest == "" {
		c.RedoDest = c.DataDest
	}
	if c.Parallelism < 1 || c.Parallelism > maxParallelism {
		return terror.ErrConfigInvalidParallelism.Generate(c.Parallelism)
	}
	return nil
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) error {
	_, err := toml.DecodeFile(path, c)
	if err != nil {
		return terror.ErrConfigTomlTransform.Delegate(err, "decode config file")
	}
	return nil
}
