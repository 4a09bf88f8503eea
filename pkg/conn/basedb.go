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
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	// register the Oracle driver
	_ "github.com/godror/godror"

	"github.com/vdbtools/v2p/pkg/retry"
	"github.com/vdbtools/v2p/pkg/terror"
)

// Config describes how to reach the instance. An empty Auth means a local
// OS-authenticated administrative login over the bequeath connection.
type Config struct {
	ConnectString string `toml:"connect-string" json:"connect-string"`
	Auth          string `toml:"auth" json:"auth"`
}

// DBProvider providers BaseDB instance
type DBProvider interface {
	Apply(config Config) (*BaseDB, error)
}

type defaultDBProvider struct {
}

// DefaultDBProvider is global instance of DBProvider
var DefaultDBProvider DBProvider

func init() {
	DefaultDBProvider = &defaultDBProvider{}
}

// Apply will build BaseDB with Config
func (d *defaultDBProvider) Apply(config Config) (*BaseDB, error) {
	var parts []string
	if config.Auth != "" {
		user, password := splitAuth(config.Auth)
		parts = append(parts, fmt.Sprintf("user=%q password=%q", user, password))
	}
	parts = append(parts,
		fmt.Sprintf("connectString=%q", config.ConnectString),
		"sysdba=1", "standaloneConnection=1")

	db, err := sql.Open("godror", strings.Join(parts, " "))
	if err != nil {
		return nil, terror.OraErrorAdapt(err, terror.ErrDBDriverError)
	}
	return NewBaseDB(db), nil
}

// splitAuth splits a "user/password" credential string.
func splitAuth(auth string) (string, string) {
	idx := strings.Index(auth, "/")
	if idx < 0 {
		return auth, ""
	}
	return auth[:idx], auth[idx+1:]
}

// BaseDB wraps *sql.DB, control the BaseConn
type BaseDB struct {
	DB *sql.DB

	mu sync.Mutex // protects following fields
	// hold all db connections generated from this BaseDB
	conns map[*BaseConn]struct{}

	Retry retry.Strategy
}

// NewBaseDB returns *BaseDB object
func NewBaseDB(db *sql.DB) *BaseDB {
	conns := make(map[*BaseConn]struct{})
	return &BaseDB{DB: db, conns: conns, Retry: &retry.FiniteRetryStrategy{}}
}

// GetBaseConn borrows a fresh *BaseConn from the pool
func (d *BaseDB) GetBaseConn(ctx context.Context) (*BaseConn, error) {
	conn, err := d.DB.Conn(ctx)
	if err != nil {
		return nil, terror.OraErrorAdapt(err, terror.ErrDBDriverError)
	}
	err = conn.PingContext(ctx)
	if err != nil {
		return nil, terror.OraErrorAdapt(err, terror.ErrDBDriverError)
	}
	baseConn := NewBaseConn(conn)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[baseConn] = struct{}{}
	return baseConn, nil
}

// CloseBaseConn release BaseConn resource from BaseDB, and close BaseConn
func (d *BaseDB) CloseBaseConn(conn *BaseConn) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, conn)
	return conn.close()
}

// Close release *BaseDB resource
func (d *BaseDB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	var err error
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.conns {
		terr := conn.close()
		if err == nil {
			err = terr
		}
	}
	terr := d.DB.Close()
	if err == nil {
		return terr
	}
	return err
}
