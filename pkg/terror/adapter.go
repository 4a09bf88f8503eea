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

package terror

import (
	"database/sql/driver"

	"github.com/pingcap/errors"
)

// OraErrorAdapt maps a raw driver error to the proper connection-level terror,
// falling back to `defaultError` for everything else.
func OraErrorAdapt(err error, defaultError *Error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	switch errors.Cause(err) {
	case driver.ErrBadConn:
		return ErrDBBadConn.Delegate(err, args...)
	default:
		return defaultError.Delegate(err, args...)
	}
}
