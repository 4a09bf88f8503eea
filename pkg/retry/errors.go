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

package retry

import (
	"database/sql/driver"

	"github.com/pingcap/errors"
)

// connection-level ORA- codes which a fresh connection may clear.
const (
	oraEndOfFile        = 3113 // end-of-file on communication channel
	oraNotConnected     = 3114 // not connected to ORACLE
	oraNoListener       = 12541
	oraConnTimeout      = 12170
	oraShutdownProgress = 1089 // immediate shutdown in progress
)

// IsConnectionError tells whether an error comes from a broken connection to
// the instance rather than from statement execution. Only these are worth
// retrying in catalog queries; command failures never are.
func IsConnectionError(err error) bool {
	err = errors.Cause(err)
	if err == driver.ErrBadConn {
		return true
	}
	// godror surfaces server errors with a numeric code
	coder, ok := err.(interface{ Code() int })
	if !ok {
		return false
	}
	switch coder.Code() {
	case oraEndOfFile, oraNotConnected, oraNoListener, oraConnTimeout, oraShutdownProgress:
		return true
	}
	return false
}
