// SPDX-License-Identifier: Apache-2.0
/*
 * dirpatch: directory-level binary patch tool
 * Copyright (C) 2016-2025 SUSE LLC
 * Copyright (C) 2026 Aleksa Sarai <cyphar@cyphar.com>
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package runner is the bounded thread pool the diff and apply engines
// submit independent per-file tasks to (spec §4.3). There is no inter-task
// ordering; Join blocks until every submitted task has settled and
// re-raises the first failure observed, after draining the rest.
package runner

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner is a fixed-width worker pool. The zero value is not usable; call
// New.
type Runner struct {
	group   *errgroup.Group
	ctx     context.Context
	started time.Time

	mu     sync.Mutex
	closed bool
}

// Width returns the pool width this package uses by default:
// max(GOMAXPROCS-1, 1), per spec §4.3/§5.
func Width() int {
	if n := runtime.GOMAXPROCS(0) - 1; n > 1 {
		return n
	}
	return 1
}

// New creates a Runner bounded to Width() concurrent tasks.
func New(ctx context.Context) *Runner {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(Width())
	return &Runner{group: group, ctx: gctx, started: time.Now()}
}

// Submit schedules fn to run on the pool. It may block if the pool is
// already at its width limit. Submit must not be called after Join.
func (r *Runner) Submit(fn func() error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		panic("runner: Submit called after Join")
	}
	r.group.Go(fn)
}

// Context returns the runner-scoped context, which is cancelled as soon as
// any submitted task returns a non-nil error. Tasks that want to bail out
// early on a sibling's failure (there is no requirement to) may select on
// this.
func (r *Runner) Context() context.Context {
	return r.ctx
}

// Join closes the submission gate and blocks until every submitted task
// has completed. If any task failed, the first failure observed is
// returned after all tasks have settled. The wall-clock elapsed duration
// since New is always returned, even on failure.
func (r *Runner) Join() (time.Duration, error) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	err := r.group.Wait()
	return time.Since(r.started), err
}
