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

package conn

import (
	"database/sql"

	"go.uber.org/zap"

	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
)

// BaseConn wraps a connection to the database engine.
//
// each BaseConn holds one underlying connection, and catalog reads issued
// through it run sequentially. retrying over a broken connection is the
// borrower's job: a dead BaseConn is released and a fresh one borrowed from
// the owning BaseDB with its retry strategy.
type BaseConn struct {
	DBConn *sql.Conn
}

// NewBaseConn builds BaseConn to connect real DB
func NewBaseConn(conn *sql.Conn) *BaseConn {
	return &BaseConn{conn}
}

// QuerySQL defines query statement, and connect to real DB
func (conn *BaseConn) QuerySQL(tctx *tcontext.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if conn == nil || conn.DBConn == nil {
		return nil, terror.ErrDBUnExpect.Generate("database connection not valid")
	}
	tctx.L().Debug("query statement",
		zap.String("query", query),
		zap.Reflect("argument", args))

	rows, err := conn.DBConn.QueryContext(tctx.Context(), query, args...)
	if err != nil {
		tctx.L().Error("query statement failed",
			zap.String("query", query),
			zap.Reflect("argument", args),
			log.ShortError(err))
		return nil, terror.ErrDBQueryFailed.Delegate(err, query)
	}
	return rows, nil
}

// close closes the underlying connection.
func (conn *BaseConn) close() error {
	if conn == nil || conn.DBConn == nil {
		return nil
	}
	err := conn.DBConn.Close()
	if err != nil {
		return terror.ErrDBUnExpect.Delegate(err, "close")
	}
	return nil
}
