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

package upload

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/filesystem"
)

// Ledger remembers which archived files are known to be uploaded, so they
// don't have to be looked up in the remote store again.
//
// A Ledger is only a cache: forgetting an entry costs a remote listing, never
// correctness.
type Ledger interface {
	// Uploaded returns the file names recorded as uploaded.
	Uploaded(ctx context.Context) (stringset.Set, error)
	// Record marks filenames as uploaded.
	Record(ctx context.Context, filenames []string) error
	// Prune forgets every file name not in present.
	Prune(ctx context.Context, present stringset.Set) error
}

// LedgerDirName is the name of the DirLedger directory inside an archive
// directory.
const LedgerDirName = ".uploaded"

// DirLedger keeps one empty marker file per uploaded file name in Dir.
//
// It survives restarts. Prune removes markers of archives that are gone, so
// the ledger never outgrows the archive directory.
type DirLedger struct {
	Dir string
}

var _ Ledger = (*DirLedger)(nil)

// NewDirLedger returns a DirLedger inside archiveDir.
func NewDirLedger(archiveDir string) *DirLedger {
	return &DirLedger{Dir: filepath.Join(archiveDir, LedgerDirName)}
}

// Uploaded implements Ledger.
func (l *DirLedger) Uploaded(ctx context.Context) (stringset.Set, error) {
	entries, err := os.ReadDir(l.Dir)
	switch {
	case os.IsNotExist(err):
		return stringset.New(0), nil
	case err != nil:
		return nil, errors.Annotate(err, "reading ledger %q", l.Dir).Err()
	}
	out := stringset.New(len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			out.Add(e.Name())
		}
	}
	return out, nil
}

// Record implements Ledger.
func (l *DirLedger) Record(ctx context.Context, filenames []string) error {
	if len(filenames) == 0 {
		return nil
	}
	if err := filesystem.MakeDirs(l.Dir); err != nil {
		return errors.Annotate(err, "creating ledger %q", l.Dir).Err()
	}
	var merr errors.MultiError
	for _, fn := range filenames {
		if err := filesystem.Touch(filepath.Join(l.Dir, fn), time.Time{}, 0644); err != nil {
			merr = append(merr, errors.Annotate(err, "marking %q", fn).Err())
		}
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

// Prune implements Ledger.
func (l *DirLedger) Prune(ctx context.Context, present stringset.Set) error {
	recorded, err := l.Uploaded(ctx)
	if err != nil {
		return err
	}
	var merr errors.MultiError
	for _, fn := range recorded.Difference(present).ToSortedSlice() {
		if err := os.Remove(filepath.Join(l.Dir, fn)); err != nil && !os.IsNotExist(err) {
			merr = append(merr, errors.Annotate(err, "unmarking %q", fn).Err())
			continue
		}
		logging.Debugf(ctx, "Forgot %s, it is no longer archived.", fn)
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}

// DefaultMaxUploaded bounds a MemoryLedger.
//
// About 18MB of names: 20 hourly streams kept for over two years.
const DefaultMaxUploaded = 400000

// MemoryLedger keeps uploaded file names in memory.
//
// It holds at most Max names. Once that is exceeded it forgets everything,
// which forces the next pass to list the remote store again.
type MemoryLedger struct {
	// Max defaults to DefaultMaxUploaded.
	Max int

	mu    sync.Mutex
	names stringset.Set
	reset time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

func (l *MemoryLedger) max() int {
	if l.Max > 0 {
		return l.Max
	}
	return DefaultMaxUploaded
}

// Uploaded implements Ledger.
func (l *MemoryLedger) Uploaded(ctx context.Context) (stringset.Set, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.names == nil {
		return stringset.New(0), nil
	}
	return l.names.Dup(), nil
}

// Record implements Ledger.
func (l *MemoryLedger) Record(ctx context.Context, filenames []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.names == nil {
		l.names = stringset.New(len(filenames))
	}
	for _, fn := range filenames {
		l.names.Add(fn)
	}
	if n := l.names.Len(); n > l.max() {
		l.reset = clock.Now(ctx)
		l.names = stringset.New(0)
		logging.Warningf(ctx, "Forgot %d uploaded file names, more than the limit of %d.", n, l.max())
	}
	return nil
}

// Prune implements Ledger.
func (l *MemoryLedger) Prune(ctx context.Context, present stringset.Set) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.names != nil {
		l.names = l.names.Intersect(present)
	}
	return nil
}

// LastReset returns when the ledger last overflowed, or zero time if never.
func (l *MemoryLedger) LastReset() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reset
}
