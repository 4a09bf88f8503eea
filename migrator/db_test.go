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
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	. "github.com/pingcap/check"

	"github.com/vdbtools/v2p/pkg/conn"
	tcontext "github.com/vdbtools/v2p/pkg/context"
	"github.com/vdbtools/v2p/pkg/log"
	"github.com/vdbtools/v2p/pkg/terror"
)

var _ = Suite(&testDBSuite{})

type testDBSuite struct{}

// brokenConnError mimics the server errors the driver surfaces with a
// numeric code.
type brokenConnError struct {
	code int
}

func (e brokenConnError) Error() string { return fmt.Sprintf("ORA-%05d: fake", e.code) }
func (e brokenConnError) Code() int     { return e.code }

func (t *testDBSuite) newAdmin(c *C) (*oracleAdmin, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	c.Assert(err, IsNil)
	return &oracleAdmin{baseDB: conn.NewBaseDB(db), logger: log.L()}, mock
}

func (t *testDBSuite) TestQueryRetriesBrokenConnection(c *C) {
	oldInterval := queryRetryInterval
	queryRetryInterval = time.Millisecond
	defer func() { queryRetryInterval = oldInterval }()

	admin, mock := t.newAdmin(c)
	defer admin.baseDB.Close()

	// the first borrowed connection dies mid-query, a fresh one answers
	mock.ExpectQuery("SELECT status").WillReturnError(brokenConnError{3113})
	mock.ExpectQuery("SELECT status").WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("MOUNTED"))

	status, err := admin.QueryScalar(tcontext.Background(), "SELECT status FROM v$instance")
	c.Assert(err, IsNil)
	c.Assert(status, Equals, "MOUNTED")
	c.Assert(mock.ExpectationsWereMet(), IsNil)
}

func (t *testDBSuite) TestQueryStatementErrorNotRetried(c *C) {
	admin, mock := t.newAdmin(c)
	defer admin.baseDB.Close()

	mock.ExpectQuery("SELECT name").WillReturnError(brokenConnError{942})

	_, err := admin.QueryScalar(tcontext.Background(), "SELECT name FROM v$controlfile")
	c.Assert(terror.ErrDBQueryFailed.Equal(err), IsTrue)
	c.Assert(mock.ExpectationsWereMet(), IsNil)
}

func (t *testDBSuite) TestQueryRetryExhausted(c *C) {
	oldInterval := queryRetryInterval
	queryRetryInterval = time.Millisecond
	defer func() { queryRetryInterval = oldInterval }()

	admin, mock := t.newAdmin(c)
	defer admin.baseDB.Close()

	for i := 0; i < queryRetryCount; i++ {
		mock.ExpectQuery("SELECT status").WillReturnError(brokenConnError{3114})
	}

	_, err := admin.QueryScalar(tcontext.Background(), "SELECT status FROM v$instance")
	c.Assert(terror.ErrDBInvalidConn.Equal(err), IsTrue)
	c.Assert(mock.ExpectationsWereMet(), IsNil)
}
