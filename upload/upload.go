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

// Package upload reconciles an archive directory with a remote store,
// uploading archived log files that are not there yet.
package upload

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"

	"go.chromium.org/logjam/compress"
	"go.chromium.org/logjam/logfile"
)

var (
	tsUploads = metric.NewCounter("logjam/upload/files",
		"Archived files upload attempts.",
		nil,
		field.Bool("successful"))

	tsRemoteScans = metric.NewCounter("logjam/upload/remote_scans",
		"Upload passes that had to list the remote store.",
		nil)
)

// Uploader is a remote store, as seen by ScanAndUpload.
//
// *remote.Uploader implements it.
type Uploader interface {
	// ScanRemote partitions files into those present remotely and the rest.
	ScanRemote(ctx context.Context, files []logfile.LogFile) (uploaded, notUploaded logfile.Set, err error)
	// Upload uploads the archived file lf from archiveDir and returns its
	// remote URI.
	Upload(ctx context.Context, archiveDir string, lf logfile.LogFile) (string, error)
}

// CheckingUploader is an Uploader that can verify the remote store is
// reachable.
type CheckingUploader interface {
	Uploader
	Check(ctx context.Context) error
}

// ScanAndUpload uploads the files among filenames that are not in the remote
// store yet.
//
// Names that aren't log file names are ignored. Files are uploaded oldest
// first; a failed upload is logged and the file stays in notUploaded. Returns
// an error only if the remote store could not be scanned.
func ScanAndUpload(ctx context.Context, archiveDir string, filenames []string, u Uploader) (uploaded, notUploaded logfile.Set, err error) {
	files := logfile.ParseAll(filenames)
	if len(files) == 0 {
		return logfile.NewSet(), logfile.NewSet(), nil
	}

	tsRemoteScans.Add(ctx, 1)
	if uploaded, notUploaded, err = u.ScanRemote(ctx, files); err != nil {
		return nil, nil, err
	}
	logging.Debugf(ctx, "%d files already uploaded, %d to go.", uploaded.Len(), notUploaded.Len())

	for _, lf := range notUploaded.Sorted() {
		fctx := logging.SetField(ctx, "file", lf.Filename)
		uri, err := u.Upload(fctx, archiveDir, lf)
		tsUploads.Add(ctx, 1, err == nil)
		if err != nil {
			logging.Fields{
				logging.ErrorKey: err,
				"transient":      transient.Tag.In(err),
			}.Warningf(fctx, "Failed to upload.")
			continue
		}
		logging.Infof(fctx, "Uploaded to %s.", uri)
		notUploaded.Del(lf)
		uploaded.Add(lf)
	}
	return uploaded, notUploaded, nil
}

// ValidateArchiveDir checks that dir looks like an archive directory.
func ValidateArchiveDir(dir string) error {
	if filepath.Base(filepath.Clean(dir)) != compress.ArchiveDirName {
		return errors.Reason("archive directory %q does not end in /%s", dir, compress.ArchiveDirName).Err()
	}
	return nil
}

// Service uploads the contents of an archive directory, one pass per Run.
type Service struct {
	ArchiveDir string
	Uploader   CheckingUploader
	// Ledger defaults to a DirLedger inside ArchiveDir.
	Ledger Ledger
}

func (s *Service) ledger() Ledger {
	if s.Ledger == nil {
		s.Ledger = NewDirLedger(s.ArchiveDir)
	}
	return s.Ledger
}

// Run performs one upload pass.
//
// Files the ledger knows about are skipped without consulting the remote
// store; if nothing is left, the remote store is not contacted at all.
func (s *Service) Run(ctx context.Context) error {
	ctx = logging.SetField(ctx, "archiveDir", s.ArchiveDir)
	ledger := s.ledger()

	present, err := listArchives(s.ArchiveDir)
	if err != nil {
		return transient.Tag.Apply(err)
	}

	// Ledger failures only cost extra remote listings.
	if err := ledger.Prune(ctx, present); err != nil {
		logging.WithError(err).Warningf(ctx, "Failed to prune the upload ledger.")
	}
	known, err := ledger.Uploaded(ctx)
	if err != nil {
		logging.WithError(err).Warningf(ctx, "Failed to read the upload ledger.")
		known = stringset.New(0)
	}

	candidates := present.Difference(known).ToSortedSlice()
	if len(logfile.ParseAll(candidates)) == 0 {
		logging.Debugf(ctx, "Nothing new to upload (%d files archived).", present.Len())
		return nil
	}

	if err := s.Uploader.Check(ctx); err != nil {
		return err
	}
	uploaded, notUploaded, err := ScanAndUpload(ctx, s.ArchiveDir, candidates, s.Uploader)
	if err != nil {
		return err
	}

	if err := ledger.Record(ctx, uploaded.Filenames()); err != nil {
		logging.WithError(err).Warningf(ctx, "Failed to update the upload ledger.")
	}
	logging.Fields{
		"uploaded":    uploaded.Len(),
		"notUploaded": notUploaded.Len(),
	}.Infof(ctx, "Upload pass done.")
	return nil
}

// listArchives returns the names of regular, non-hidden files in dir.
func listArchives(dir string) (stringset.Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotate(err, "listing %q", dir).Err()
	}
	out := stringset.New(len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			out.Add(e.Name())
		}
	}
	return out, nil
}
