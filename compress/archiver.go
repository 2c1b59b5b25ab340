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

// Package compress finds superseded log files and moves them, compressed,
// into an archive directory.
package compress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/system/filesystem"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"

	"go.chromium.org/logjam/logfile"
)

const (
	// ArchiveDirName is the name of the archive directory inside a log
	// directory.
	ArchiveDirName = "archive"

	// DuplicateMarker is inserted after the prefix of an archive name that
	// collides with an existing archive.
	DuplicateMarker = "-logjam-compress-duplicate-timestamp"

	// maxDuplicates is how many duplicate names are tried before giving up.
	maxDuplicates = 25

	// tempPattern names staging files. It must not parse as a log file name, so
	// a leftover from a crash is never picked up as a log.
	tempPattern = ".logjam-compress-*.tmp"
	tempPrefix  = ".logjam-compress-"
	tempSuffix  = ".tmp"
)

var (
	tsFiles = metric.NewCounter("logjam/compress/files",
		"Log files processed by the compressor.",
		nil,
		field.Bool("successful"))

	tsBytes = metric.NewCounter("logjam/compress/bytes",
		"Compressed bytes written to the archive directory.",
		nil)
)

// RenameFunc moves oldpath to newpath atomically.
type RenameFunc func(oldpath, newpath string) error

// Archiver compresses superseded log files of a log directory into its
// archive directory.
//
// Archiver holds no state between passes, so Run may be called again after a
// crash or back to back.
type Archiver struct {
	// LogDir is the directory scanned for log files.
	LogDir string
	// ArchiveDir receives compressed files. Defaults to LogDir/archive.
	ArchiveDir string
	// Compressor compresses individual files. Defaults to DefaultCommand.
	Compressor Compressor
	// Margin is the age past which a file is old even if nothing superseded
	// it. Defaults to DefaultMargin.
	Margin time.Duration
	// Rename moves staged archives into place. Defaults to os.Rename. The
	// staging file is always in the same directory as the log, so the archive
	// directory must be on the same filesystem.
	Rename RenameFunc
}

func (a *Archiver) archiveDir() string {
	if a.ArchiveDir != "" {
		return a.ArchiveDir
	}
	return filepath.Join(a.LogDir, ArchiveDirName)
}

func (a *Archiver) compressor() Compressor {
	if a.Compressor != nil {
		return a.Compressor
	}
	return DefaultCommand
}

func (a *Archiver) margin() time.Duration {
	if a.Margin > 0 {
		return a.Margin
	}
	return DefaultMargin
}

func (a *Archiver) rename(oldpath, newpath string) error {
	if a.Rename != nil {
		return a.Rename(oldpath, newpath)
	}
	return os.Rename(oldpath, newpath)
}

// Run performs one scan-and-compress pass over LogDir.
//
// Failures to compress individual files are logged and skipped; the file is
// retried on the next pass. Run returns an error only if the directories
// themselves are unusable.
func (a *Archiver) Run(ctx context.Context) error {
	archiveDir := a.archiveDir()
	ctx = logging.SetFields(ctx, logging.Fields{
		"logDir":     a.LogDir,
		"archiveDir": archiveDir,
	})

	if err := filesystem.MakeDirs(archiveDir); err != nil {
		return errors.Annotate(err, "creating archive directory %q", archiveDir).Err()
	}

	entries, err := os.ReadDir(a.LogDir)
	if err != nil {
		return transient.Tag.Apply(errors.Annotate(err, "listing %q", a.LogDir).Err())
	}
	now := clock.Now(ctx).UTC()
	a.sweepStaleTemps(ctx, entries, now)

	filenames := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			filenames = append(filenames, e.Name())
		}
	}

	old := OldLogFiles(filenames, now, a.margin())
	logging.Debugf(ctx, "%d of %d files are old.", len(old), len(filenames))

	compressed := 0
	for _, lf := range old {
		fctx := logging.SetField(ctx, "file", lf.Filename)
		dst, err := a.CompressPath(fctx, filepath.Join(a.LogDir, lf.Filename))
		tsFiles.Add(ctx, 1, err == nil)
		if err != nil {
			logging.Fields{
				logging.ErrorKey: err,
				"transient":      transient.Tag.In(err),
			}.Errorf(fctx, "Failed to compress log file.")
			continue
		}
		compressed++
		logging.Infof(fctx, "Compressed to %s.", dst)
	}

	logging.Fields{
		"compressed": compressed,
		"failed":     len(old) - compressed,
	}.Infof(ctx, "Compress pass done.")
	return nil
}

// CompressPath compresses the log file at path into the archive directory and
// deletes the original.
//
// The compressed data is staged next to the log and renamed into the archive
// directory, so the log is deleted only once its archive is in place. If the
// archive name is taken, a DuplicateTimestampPath name is used instead; the
// existing archive is never overwritten.
//
// Returns the path of the archive. On compressor failure the log is left
// untouched and the returned error is tagged transient.
func (a *Archiver) CompressPath(ctx context.Context, path string) (dst string, err error) {
	logDir, logName := filepath.Split(path)
	if logDir == "" {
		logDir = "."
	}
	comp := a.compressor()

	tmp, err := os.CreateTemp(logDir, tempPattern)
	if err != nil {
		return "", errors.Annotate(err, "creating staging file in %q", logDir).Err()
	}
	tmpName := tmp.Name()
	defer func() {
		// Covers every failure below. After a successful rename there is
		// nothing left at tmpName.
		if _, statErr := os.Lstat(tmpName); statErr == nil {
			if rmErr := os.Remove(tmpName); rmErr != nil {
				logging.WithError(rmErr).Warningf(ctx, "Failed to remove staging file %q.", tmpName)
			}
		}
	}()

	if err := comp.Compress(ctx, path, tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", errors.Annotate(err, "syncing staging file").Err()
	}
	size := int64(-1)
	if fi, err := tmp.Stat(); err == nil {
		size = fi.Size()
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Annotate(err, "closing staging file").Err()
	}

	dst = filepath.Join(a.archiveDir(), logName+comp.Extension())
	if exists(dst) {
		// The archive already exists but we hold new data under the same name.
		// Keep both: the new data goes under a marked name, to be reconciled by
		// an operator.
		logging.Errorf(ctx, "Archive %s already exists.", dst)
		if dst, err = DuplicateTimestampPath(dst); err != nil {
			return "", err
		}
	}

	if err := a.rename(tmpName, dst); err != nil {
		return "", errors.Annotate(err, "moving staging file to %q", dst).Err()
	}
	if size >= 0 {
		tsBytes.Add(ctx, size)
		logging.Debugf(ctx, "Archived %s.", humanize.Bytes(uint64(size)))
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		// The archive is in place; the log will be compressed again next pass
		// and land under a duplicate name.
		return dst, errors.Annotate(err, "removing %q", path).Err()
	}
	return dst, nil
}

// DuplicateTimestampPath returns an unused alternative to path, an archive
// whose name is already taken.
//
// The alternative inserts DuplicateMarker after the prefix, followed by
// "-01" ... "-24" if the plain marker is taken too.
func DuplicateTimestampPath(path string) (string, error) {
	dir, name := filepath.Split(path)
	lf, ok := logfile.Parse(name)
	if !ok {
		return "", errors.Reason("%q is not a log file name", name).Err()
	}

	for i := 0; i < maxDuplicates; i++ {
		marker := DuplicateMarker
		if i > 0 {
			marker += fmt.Sprintf("-%02d", i)
		}
		candidate := dir + logfile.Unparse(lf.Prefix+marker, lf.Timestamp, lf.Suffix, lf.Extension)
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", errors.Reason("%d duplicate timestamp paths detected", maxDuplicates).Err()
}

// sweepStaleTemps removes staging files left behind by a crashed pass.
func (a *Archiver) sweepStaleTemps(ctx context.Context, entries []os.DirEntry, now time.Time) {
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil || now.Sub(fi.ModTime()) <= a.margin() {
			continue
		}
		path := filepath.Join(a.LogDir, name)
		if err := os.Remove(path); err != nil {
			logging.WithError(err).Warningf(ctx, "Failed to remove stale staging file %q.", path)
			continue
		}
		logging.Warningf(ctx, "Removed stale staging file %q.", path)
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
