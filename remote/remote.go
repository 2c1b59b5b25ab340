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

// Package remote maps archived log files to objects in a remote store and
// uploads them there.
//
// Stores are reached through a Backend, registered per URI scheme in a
// Registry. Backends live in subpackages.
package remote

import (
	"context"
	"path/filepath"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"

	"go.chromium.org/logjam/logfile"
)

// Backend talks to one kind of remote store.
//
// All URIs are full object URIs such as "s3://bucket/dir/file.log.gz".
type Backend interface {
	// CheckBucket verifies that the bucket uri lives in exists and is
	// reachable.
	CheckBucket(ctx context.Context, uri string) error

	// List returns the URIs of all objects whose URI starts with dirURI.
	List(ctx context.Context, dirURI string) ([]string, error)

	// Exists reports whether an object exists at uri.
	Exists(ctx context.Context, uri string) (bool, error)

	// Put uploads the local file at localPath to uri.
	Put(ctx context.Context, uri, localPath string) error

	// Close releases resources held by the backend.
	Close() error
}

// Uploader uploads archived log files to the locations given by a Template.
type Uploader struct {
	Template *Template
	Backend  Backend
}

// Check verifies the remote store is usable by probing the bucket of a sample
// log file.
func (u *Uploader) Check(ctx context.Context) error {
	uri := u.Template.Expand(logfile.Sample)
	if err := u.Backend.CheckBucket(ctx, uri); err != nil {
		return transient.Tag.Apply(errors.Annotate(err, "failed to find bucket for %s", u.Template).Err())
	}
	return nil
}

// ScanRemote splits files into those already present in the remote store and
// those that are not.
//
// Each distinct parent directory is listed once, no matter how many files map
// to it.
func (u *Uploader) ScanRemote(ctx context.Context, files []logfile.LogFile) (uploaded, notUploaded logfile.Set, err error) {
	byURI := make(map[string]logfile.LogFile, len(files))
	uris := make([]string, 0, len(files))
	for _, lf := range files {
		uri := u.Template.Expand(lf)
		byURI[uri] = lf
		uris = append(uris, uri)
	}

	uploaded = logfile.NewSet()
	for _, dir := range ParentDirs(uris) {
		logging.Debugf(ctx, "Listing %s", dir)
		listed, err := u.Backend.List(ctx, dir)
		if err != nil {
			return nil, nil, transient.Tag.Apply(errors.Annotate(err, "listing %s", dir).Err())
		}
		for _, uri := range listed {
			if lf, ok := byURI[uri]; ok {
				uploaded.Add(lf)
			}
		}
	}

	notUploaded = logfile.NewSet()
	for _, lf := range files {
		if !uploaded.Has(lf) {
			notUploaded.Add(lf)
		}
	}
	return uploaded, notUploaded, nil
}

// Upload uploads the archived file lf from archiveDir and returns its URI.
//
// An object already present at the destination is never overwritten; the
// file counts as uploaded.
func (u *Uploader) Upload(ctx context.Context, archiveDir string, lf logfile.LogFile) (string, error) {
	uri := u.Template.Expand(lf)
	switch exists, err := u.Backend.Exists(ctx, uri); {
	case err != nil:
		return "", transient.Tag.Apply(errors.Annotate(err, "checking %s", uri).Err())
	case exists:
		logging.Warningf(ctx, "%s has already been uploaded.", uri)
		return uri, nil
	}

	if err := u.Backend.Put(ctx, uri, filepath.Join(archiveDir, lf.Filename)); err != nil {
		return "", transient.Tag.Apply(errors.Annotate(err, "uploading %s", lf.Filename).Err())
	}
	return uri, nil
}

// Close closes the backend.
func (u *Uploader) Close() error {
	return u.Backend.Close()
}

// Opener creates a Backend able to serve URIs like uri.
type Opener func(ctx context.Context, uri string) (Backend, error)

// Registry maps URI schemes to Openers.
//
// A nil Opener marks a scheme that is known but disabled.
type Registry map[string]Opener

// Open returns a Backend for the scheme of uri.
func (r Registry) Open(ctx context.Context, uri string) (Backend, error) {
	scheme := SchemeOf(uri)
	if open := r[scheme]; open != nil {
		return open(ctx, uri)
	}
	return nil, errors.Reason("no uploader found for URI scheme %q", scheme).Err()
}

// NewUploader parses template and opens a Backend for it.
func (r Registry) NewUploader(ctx context.Context, template string) (*Uploader, error) {
	t, err := ParseTemplate(template)
	if err != nil {
		return nil, err
	}
	b, err := r.Open(ctx, t.Expand(logfile.Sample))
	if err != nil {
		return nil, err
	}
	return &Uploader{Template: t, Backend: b}, nil
}
