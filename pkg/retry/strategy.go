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
	"time"

	tcontext "github.com/vdbtools/v2p/pkg/context"
)

// Speed represents enum of retry speed
type Speed uint8

const (
	// SpeedSlow represents slow retry speed, every retry should wait more time depends on increasing retry times
	SpeedSlow Speed = iota + 1
	// SpeedStable represents fixed retry speed, every retry should wait fix time
	SpeedStable
)

// Params define parameters for a retry operation.
type Params struct {
	RetryCount         int
	FirstRetryDuration time.Duration
	RetrySpeed         Speed

	// IsRetryableFn tells whether we should retry when operateFn failed
	IsRetryableFn func(retryTime int, err error) bool
}

// Strategy define different kind of retry strategy.
type Strategy interface {
	// Apply does the retry operation, it will wait `FirstRetryDuration` before
	// the first retry, and then the wait time of the rest retries depends on
	// RetrySpeed.
	Apply(ctx *tcontext.Context, params Params,
		operateFn func(*tcontext.Context) (interface{}, error)) (interface{}, error)
}

// FiniteRetryStrategy will retry `RetryCount` times when failed to operate DB.
type FiniteRetryStrategy struct {
}

// Apply implements Strategy.Apply
func (*FiniteRetryStrategy) Apply(ctx *tcontext.Context, params Params,
	operateFn func(*tcontext.Context) (interface{}, error)) (ret interface{}, err error) {
	for i := 0; i < params.RetryCount; i++ {
		ret, err = operateFn(ctx)
		if err != nil {
			if params.IsRetryableFn == nil || params.IsRetryableFn(i, err) {
				duration := params.FirstRetryDuration
				if params.RetrySpeed == SpeedSlow {
					duration = time.Duration(i+1) * params.FirstRetryDuration
				}
				select {
				case <-ctx.Context().Done():
					return nil, err
				case <-time.After(duration):
				}
				continue
			}
		}
		break
	}
	return ret, err
}
