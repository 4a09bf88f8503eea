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

package utils

import (
	"io"
	"os"

	"github.com/pingcap/errors"
)

// IsFileExists checks if path exists and is a regular file.
func IsFileExists(name string) bool {
	fi, err := os.Stat(name)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// IsDirExists checks if path exists and is a directory.
func IsDirExists(name string) bool {
	fi, err := os.Stat(name)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

// CopyFile copies the regular file src to dst, preserving the file mode.
func CopyFile(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return errors.Trace(err)
	}
	in, err := os.Open(src)
	if err != nil {
		return errors.Trace(err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode())
	if err != nil {
		return errors.Trace(err)
	}
	defer out.Close()

	if _, err = io.Copy(out, in); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(out.Sync())
}
