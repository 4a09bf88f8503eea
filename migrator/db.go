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
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vdbtools/v2p/pkg/conn"
	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/retry"
	"github.com/vdbtools/v2p/pkg/terror"
)

// queryRetryCount bounds the retries of a catalog query whose connection
// broke; queryRetryInterval is a variable so tests can shorten the wait.
const queryRetryCount = 5

var queryRetryInterval = 2 * time.Second

// newAdminClient is the admin client initializer, a variable for testing.
var newAdminClient = newOracleAdmin

// oracleAdmin implements AdminClient. Catalog queries run over a driver
// connection while the instance is open; administrative batches and instance
// state changes go through the sqlplus channel, whose captured output is the
// diagnostic trail.
type oracleAdmin struct {
	baseDB *conn.BaseDB
	runner *sqlplusRunner

	logger log.Logger
}

func newOracleAdmin(cfg *Config, logger log.Logger) (AdminClient, error) {
	baseDB, err := conn.DefaultDBProvider.Apply(conn.Config{Auth: driverAuth(cfg.Auth)})
	if err != nil {
		return nil, err
	}
	return &oracleAdmin{
		baseDB: baseDB,
		runner: newSQLPlusRunner(cfg, logger),
		logger: logger.WithFields(zap.String("channel", "catalog")),
	}, nil
}

// driverAuth converts the sqlplus-style login into driver credentials. A
// local OS-authenticated login has no user/password part.
func driverAuth(auth string) string {
	cred := strings.TrimSpace(auth)
	if idx := strings.Index(strings.ToLower(cred), " as "); idx >= 0 {
		cred = strings.TrimSpace(cred[:idx])
	}
	if cred == "/" {
		return ""
	}
	return cred
}

// QueryScalar implements AdminClient.QueryScalar. Instance restarts kill the
// session underneath us, so every query borrows a fresh connection.
func (a *oracleAdmin) QueryScalar(tctx *tcontext.Context, query string) (string, error) {
	rows, release, err := a.query(tctx, query)
	if err != nil {
		return "", err
	}
	defer release()
	defer rows.Close()

	if !rows.Next() {
		return "", terror.OraErrorAdapt(rows.Err(), terror.ErrDBQueryFailed, query)
	}
	var value sql.NullString
	if err = rows.Scan(&value); err != nil {
		return "", terror.OraErrorAdapt(err, terror.ErrDBQueryFailed, query)
	}
	return value.String, nil
}

// QueryGrid implements AdminClient.QueryGrid.
func (a *oracleAdmin) QueryGrid(tctx *tcontext.Context, query string) ([][]string, error) {
	rows, release, err := a.query(tctx, query)
	if err != nil {
		return nil, err
	}
	defer release()
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, terror.OraErrorAdapt(err, terror.ErrDBQueryFailed, query)
	}

	var grid [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, terror.OraErrorAdapt(err, terror.ErrDBQueryFailed, query)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		grid = append(grid, row)
	}
	if err = rows.Err(); err != nil {
		return nil, terror.OraErrorAdapt(err, terror.ErrDBQueryFailed, query)
	}
	return grid, nil
}

// query borrows a fresh connection and returns the rows together with the
// release callback; release must be called after the rows are consumed.
// Connection-level failures are retried against a fresh connection, the
// instance may still be coming up from a restart when the query lands.
func (a *oracleAdmin) query(tctx *tcontext.Context, query string) (*sql.Rows, func(), error) {
	params := retry.Params{
		RetryCount:         queryRetryCount,
		FirstRetryDuration: queryRetryInterval,
		RetrySpeed:         retry.SpeedStable,
		IsRetryableFn: func(retryTime int, err error) bool {
			if retry.IsConnectionError(err) {
				a.logger.Warn("catalog connection broken, retrying",
					zap.Int("retry", retryTime), zap.String("query", query), log.ShortError(err))
				return true
			}
			return false
		},
	}

	var (
		rows    *sql.Rows
		release func()
	)
	_, err := a.baseDB.Retry.Apply(tctx, params, func(tctx *tcontext.Context) (interface{}, error) {
		dbConn, err := a.baseDB.GetBaseConn(tctx.Context())
		if err != nil {
			return nil, err
		}
		rel := func() {
			if cerr := a.baseDB.CloseBaseConn(dbConn); cerr != nil {
				a.logger.Warn("release catalog connection", log.ShortError(cerr))
			}
		}
		r, err := dbConn.QuerySQL(tctx, query)
		if err != nil {
			rel()
			return nil, err
		}
		rows, release = r, rel
		return nil, nil
	})
	if err != nil {
		if retry.IsConnectionError(err) {
			return nil, nil, terror.ErrDBInvalidConn.Delegate(err, query)
		}
		return nil, nil, err
	}
	return rows, release, nil
}

// ExecBatch implements AdminClient.ExecBatch.
func (a *oracleAdmin) ExecBatch(tctx *tcontext.Context, name string, stmts []string) (string, error) {
	return a.runner.run(tctx, name, stmts)
}

// Startup implements AdminClient.Startup.
func (a *oracleAdmin) Startup(tctx *tcontext.Context, mode StartMode, pfile string) error {
	_, err := a.runner.run(tctx, "startup "+string(mode), []string{startupStatement(mode, pfile)})
	if err != nil {
		return terror.ErrAdminRestartFailed.AnnotateDelegate(err, "restart instance in %s mode", mode)
	}
	return nil
}

// SetLocalInstance implements AdminClient.SetLocalInstance.
func (a *oracleAdmin) SetLocalInstance(instance string) {
	a.runner.setSID(instance)
}

// Shutdown implements AdminClient.Shutdown.
func (a *oracleAdmin) Shutdown(tctx *tcontext.Context, mode ShutdownMode) error {
	_, err := a.runner.run(tctx, "shutdown "+string(mode), []string{"shutdown " + string(mode)})
	if err != nil {
		return terror.ErrAdminShutdownFailed.AnnotateDelegate(err, "shutdown instance (%s)", mode)
	}
	return nil
}

// Close implements AdminClient.Close.
func (a *oracleAdmin) Close() error {
	return a.baseDB.Close()
}
