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
	"fmt"

	"github.com/pingcap/errors"
)

// ErrCode is used as the unique identifier of a specific error type.
type ErrCode int

// ErrClass represents a class of errors.
type ErrClass int

// Error classes. New classes are appended to the end, never renumbered.
const (
	ClassConfig ErrClass = iota + 1
	ClassPreflight
	ClassDatabase
	ClassAdmin
	ClassStorage
	ClassCluster
	ClassRelocate
	ClassMigrator
	ClassFunctional
)

var errClass2Str = map[ErrClass]string{
	ClassConfig:     "config",
	ClassPreflight:  "preflight",
	ClassDatabase:   "database",
	ClassAdmin:      "admin-channel",
	ClassStorage:    "storage-engine",
	ClassCluster:    "cluster",
	ClassRelocate:   "relocate",
	ClassMigrator:   "migrator",
	ClassFunctional: "functional",
}

// String implements fmt.Stringer interface
func (ec ErrClass) String() string {
	if s, ok := errClass2Str[ec]; ok {
		return s
	}
	return fmt.Sprintf("unknown error class: %d", ec)
}

// ErrScope represents the error occurs environment, such as the source virtual
// database, the physical destination, or v2p itself.
type ErrScope int

// Error scopes
const (
	ScopeNotSet ErrScope = iota
	ScopeSource
	ScopeDestination
	ScopeInternal
)

var errScope2Str = map[ErrScope]string{
	ScopeNotSet:      "not-set",
	ScopeSource:      "source",
	ScopeDestination: "destination",
	ScopeInternal:    "internal",
}

// String implements fmt.Stringer interface
func (es ErrScope) String() string {
	if s, ok := errScope2Str[es]; ok {
		return s
	}
	return fmt.Sprintf("unknown error scope: %d", es)
}

// ErrLevel represents the emergency level of a specific error type.
type ErrLevel int

// Error levels
const (
	LevelLow ErrLevel = iota + 1
	LevelMedium
	LevelHigh
)

var errLevel2Str = map[ErrLevel]string{
	LevelLow:    "low",
	LevelMedium: "medium",
	LevelHigh:   "high",
}

// String implements fmt.Stringer interface
func (el ErrLevel) String() string {
	if s, ok := errLevel2Str[el]; ok {
		return s
	}
	return fmt.Sprintf("unknown error level: %d", el)
}

const errBaseFormat = "[code=%d:class=%s:scope=%s:level=%s]"

// Error implements error interface and adds integration with our error
// taxonomy: every error carries a stable code, a class, the scope where it
// happened and an emergency level, plus an optional operator workaround.
type Error struct {
	code       ErrCode
	class      ErrClass
	scope      ErrScope
	level      ErrLevel
	message    string
	workaround string
	args       []interface{}
	rawCause   error
	stack      errors.StackTracer
}

// New creates a new *Error instance
func New(code ErrCode, class ErrClass, scope ErrScope, level ErrLevel, message, workaround string) *Error {
	return &Error{
		code:       code,
		class:      class,
		scope:      scope,
		level:      level,
		message:    message,
		workaround: workaround,
	}
}

// Code returns the error code
func (e *Error) Code() ErrCode {
	return e.code
}

// Class returns the error class
func (e *Error) Class() ErrClass {
	return e.class
}

// Scope returns the error scope
func (e *Error) Scope() ErrScope {
	return e.scope
}

// Level returns the error level
func (e *Error) Level() ErrLevel {
	return e.level
}

// Workaround returns the error workaround
func (e *Error) Workaround() string {
	return e.workaround
}

// Message returns the formatted error message
func (e *Error) Message() string {
	return e.getMsg()
}

// Error implements error interface
func (e *Error) Error() string {
	str := fmt.Sprintf(errBaseFormat, e.code, e.class, e.scope, e.level)
	if e.getMsg() != "" {
		str += fmt.Sprintf(", Message: %s", e.getMsg())
	}
	if e.rawCause != nil {
		str += fmt.Sprintf(", RawCause: %s", Message(e.rawCause))
	}
	if e.workaround != "" {
		str += fmt.Sprintf(", Workaround: %s", e.workaround)
	}
	return str
}

// Format accepts flags that alter the printing of some verbs
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		_, _ = s.Write([]byte(e.Error()))
		if s.Flag('+') && e.stack != nil {
			e.stack.StackTrace().Format(s, verb)
		}
	case 's':
		_, _ = s.Write([]byte(e.Error()))
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// Cause implements causer.Cause defined in pingcap/errors
func (e *Error) Cause() error {
	return e.rawCause
}

// Equal checks if err equals to e. Two errors are equal when they share the
// same error code.
func (e *Error) Equal(err error) bool {
	if error(e) == err {
		return true
	}
	inErr, ok := err.(*Error)
	return ok && e.code == inErr.code
}

// SetMessage clones an Error and resets its message
func (e *Error) SetMessage(message string) *Error {
	err := *e
	err.message = message
	err.args = append([]interface{}{}, e.args...)
	return &err
}

// New generates a new *Error with the same code, class, scope and level, but
// a new message, and records the stack trace.
func (e *Error) New(message string) error {
	return e.stackLevelGeneratef(1, message)
}

// Generate generates a new *Error based on the message template with args,
// and records the stack trace.
func (e *Error) Generate(args ...interface{}) error {
	return e.stackLevelGeneratef(1, e.message, args...)
}

// Generatef generates a new *Error with a new message template, and records
// the stack trace.
func (e *Error) Generatef(format string, args ...interface{}) error {
	return e.stackLevelGeneratef(1, format, args...)
}

// stackLevelGeneratef builds a new error and skips `stackSkipLevel` levels of
// the stack trace, so the caller of the exported helpers shows up first.
func (e *Error) stackLevelGeneratef(stackSkipLevel int, format string, args ...interface{}) error {
	return &Error{
		code:       e.code,
		class:      e.class,
		scope:      e.scope,
		level:      e.level,
		message:    format,
		workaround: e.workaround,
		args:       args,
		stack:      errors.NewStack(stackSkipLevel),
	}
}

// Delegate creates a new *Error with the same fields, delegating to `err` as
// the raw cause. Returns nil if `err` is nil.
func (e *Error) Delegate(err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		code:       e.code,
		class:      e.class,
		scope:      e.scope,
		level:      e.level,
		message:    e.message,
		workaround: e.workaround,
		args:       args,
		rawCause:   err,
		stack:      errors.NewStack(0),
	}
}

// AnnotateDelegate resets the message of the Error and delegates to `err` as
// the raw cause.
func (e *Error) AnnotateDelegate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		code:       e.code,
		class:      e.class,
		scope:      e.scope,
		level:      e.level,
		message:    format,
		workaround: e.workaround,
		args:       args,
		rawCause:   err,
		stack:      errors.NewStack(0),
	}
}

func (e *Error) getMsg() string {
	if len(e.args) > 0 {
		return fmt.Sprintf(e.message, e.args...)
	}
	return e.message
}

// Annotate tries to convert err to *Error and adds a message to it. If the
// conversion fails, it falls back to errors.Annotate.
func Annotate(err error, message string) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return errors.Annotate(err, message)
	}
	e.message = fmt.Sprintf("%s: %s", message, e.getMsg())
	e.args = nil
	if e.stack == nil {
		e.stack = errors.NewStack(0)
	}
	return e
}

// Annotatef works like Annotate but with message format and args.
func Annotatef(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return errors.Annotatef(err, format, args...)
	}
	e.message = fmt.Sprintf("%s: %s", fmt.Sprintf(format, args...), e.getMsg())
	e.args = nil
	if e.stack == nil {
		e.stack = errors.NewStack(0)
	}
	return e
}

// Message returns the raw message of err, without the terror decoration.
func Message(err error) string {
	if err == nil {
		return ""
	}
	e, ok := err.(*Error)
	if !ok {
		return err.Error()
	}
	return e.getMsg()
}

// WithScope tries to set the scope of err, wrapping non-terror errors with a
// scope prefix.
func WithScope(err error, scope ErrScope) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return errors.Annotatef(err, "error scope: %s", scope)
	}
	e.scope = scope
	return e
}

// WithClass tries to set the class of err, wrapping non-terror errors with a
// class prefix.
func WithClass(err error, class ErrClass) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return errors.Annotatef(err, "error class: %s", class)
	}
	e.class = class
	return e
}
