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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vdbtools/v2p/migrator"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
	"github.com/vdbtools/v2p/pkg/utils"
)

func main() {
	cfg := migrator.NewConfig()
	err := cfg.Parse(os.Args[1:])
	switch errors.Cause(err) {
	case nil:
	case flag.ErrHelp:
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "parse cmd flags err: %s\n", terror.Message(err))
		os.Exit(2)
	}

	err = log.InitLogger(&log.Config{
		File:   cfg.LogFile,
		Format: cfg.LogFormat,
		Level:  strings.ToLower(cfg.LogLevel),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger error %s\n", terror.Message(err))
		os.Exit(2)
	}

	utils.PrintInfo("v2p", func() {
		log.L().Info("", zap.Stringer("v2p config", cfg))
	})

	registry := prometheus.NewRegistry()
	migrator.RegisterMetrics(registry)

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sc
		log.L().Info("got signal to exit", zap.Stringer("signal", sig))
		cancel()
	}()

	m := migrator.NewMigrator(cfg)
	err = m.Run(ctx)
	if err != nil {
		log.L().Error("migration failed", zap.Error(err))
	}
	m.Close()
	cancel()
	migrator.DumpMetrics(registry, log.L())
	log.L().Info("v2p exit")

	syncErr := log.L().Sync()
	if syncErr != nil {
		fmt.Fprintln(os.Stderr, "sync log failed", syncErr)
	}

	if err != nil || syncErr != nil {
		os.Exit(1)
	}
}
