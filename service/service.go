// Copyright 2026 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package service runs compress and upload passes, once or on a fixed
// interval, and reports their errors.
package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
)

const (
	// MinSleep is the shortest pause between two passes, even when a pass
	// takes longer than the interval.
	MinSleep = time.Second

	// DefaultInterval is the time between the starts of two passes.
	DefaultInterval = 60 * time.Second
)

// Pass is a single unit of work: one compress or upload sweep.
type Pass func(ctx context.Context) error

// DoOnce runs pass once. Its error, if any, is reported and returned.
func DoOnce(ctx context.Context, name string, pass Pass, r Reporter) error {
	return runPass(ctx, name, pass, r)
}

// DoForever runs pass every interval until ctx is cancelled.
//
// A pass is never interrupted: it runs on a context that ignores ctx's
// cancellation, and cancellation is only observed between passes, in which
// case DoForever returns nil. Transient errors are reported and the loop
// continues. Any other error is reported and returned.
func DoForever(ctx context.Context, name string, interval time.Duration, pass Pass, r Reporter) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx = logging.SetField(ctx, "pass", name)

	for ctx.Err() == nil {
		start := clock.Now(ctx)
		if err := runPass(ctx, name, pass, r); err != nil && !transient.Tag.In(err) {
			return err
		}
		if ctx.Err() != nil {
			break
		}

		sleep := interval - clock.Since(ctx, start)
		if sleep < MinSleep {
			sleep = MinSleep
		}
		logging.Debugf(ctx, "Next pass in %s.", sleep)
		if res := <-clock.After(ctx, sleep); res.Err != nil {
			break
		}
	}
	logging.Infof(ctx, "Stopping.")
	return nil
}

func runPass(ctx context.Context, name string, pass Pass, r Reporter) error {
	ctx = logging.SetFields(context.WithoutCancel(ctx), logging.Fields{
		"pass": name,
		"run":  uuid.NewString(),
	})

	start := clock.Now(ctx)
	err := pass(ctx)
	if err != nil {
		isTransient := transient.Tag.In(err)
		if r == nil {
			r = LogReporter{}
		}
		r.Report(ctx, err, map[string]string{
			"pass":      name,
			"transient": strconv.FormatBool(isTransient),
		})
		return err
	}
	logging.Debugf(ctx, "Pass done in %s.", clock.Since(ctx, start))
	return nil
}
