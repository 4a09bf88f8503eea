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

package context

import (
	"context"

	"github.com/vdbtools/v2p/pkg/log"
)

// Context is used in v2p to carry the per-run context fields together:
// * go context
// * logger
type Context struct {
	ctx    context.Context
	logger log.Logger
}

// Background returns an empty context with the global logger.
func Background() *Context {
	return &Context{
		ctx:    context.Background(),
		logger: log.L(),
	}
}

// NewContext returns a new Context with the given go context and logger.
func NewContext(ctx context.Context, logger log.Logger) *Context {
	return &Context{
		ctx:    ctx,
		logger: logger,
	}
}

// WithContext sets the go context.
func (c *Context) WithContext(ctx context.Context) *Context {
	return &Context{
		ctx:    ctx,
		logger: c.logger,
	}
}

// Context returns the go context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// WithLogger sets the logger.
func (c *Context) WithLogger(logger log.Logger) *Context {
	return &Context{
		ctx:    c.ctx,
		logger: logger,
	}
}

// L returns the logger.
func (c *Context) L() log.Logger {
	return c.logger
}
