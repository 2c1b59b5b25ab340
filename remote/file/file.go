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

// Package file implements a remote.Backend that stores objects in a local
// directory tree, such as an NFS mount.
//
// URIs look like "file:///mnt/logs/haproxy/2013/07/27/x.log.gz". The first
// path component ("/mnt" above) plays the role of the bucket and must exist.
package file

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/filesystem"

	"go.chromium.org/logjam/remote"
)

// Scheme is the URI scheme served by this backend.
const Scheme = "file"

const prefix = Scheme + "://"

// Open implements remote.Opener.
func Open(ctx context.Context, uri string) (remote.Backend, error) {
	return Backend{}, nil
}

// Backend is a remote.Backend on top of the local filesystem.
type Backend struct{}

var _ remote.Backend = Backend{}

// Path converts a file:// URI to a local path.
func Path(uri string) (string, error) {
	if remote.SchemeOf(uri) != Scheme {
		return "", errors.Reason("%q is not a %s URI", uri, prefix).Err()
	}
	p := uri[len(prefix):]
	if !filepath.IsAbs(p) {
		return "", errors.Reason("%q is not an absolute path", uri).Err()
	}
	return p, nil
}

// URI converts an absolute local path to a file:// URI.
func URI(path string) string {
	return prefix + filepath.ToSlash(path)
}

// CheckBucket implements remote.Backend.
func (Backend) CheckBucket(ctx context.Context, uri string) error {
	p, err := Path(uri)
	if err != nil {
		return err
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(filepath.ToSlash(p), "/"), "/")
	root := filepath.Join(string(filepath.Separator), first)
	fi, err := os.Stat(root)
	switch {
	case err != nil:
		return errors.Annotate(err, "checking %q", root).Err()
	case !fi.IsDir():
		return errors.Reason("%q is not a directory", root).Err()
	}
	return nil
}

// List implements remote.Backend.
//
// A missing directory lists as empty.
func (Backend) List(ctx context.Context, dirURI string) ([]string, error) {
	dir, err := Path(dirURI)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil && path == dir && os.IsNotExist(err):
			return filepath.SkipDir
		case err != nil:
			return err
		case d.Type().IsRegular() && !strings.HasPrefix(d.Name(), "."):
			out = append(out, URI(path))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Annotate(err, "listing %q", dir).Err()
	}
	return out, nil
}

// Exists implements remote.Backend.
func (Backend) Exists(ctx context.Context, uri string) (bool, error) {
	p, err := Path(uri)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(p); {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Annotate(err, "stat %q", p).Err()
	}
}

// Put implements remote.Backend.
//
// The file is copied under a temporary name next to its destination, then
// renamed into place, so readers never see a partial object.
func (Backend) Put(ctx context.Context, uri, localPath string) (err error) {
	dst, err := Path(uri)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := filesystem.MakeDirs(dir); err != nil {
		return errors.Annotate(err, "creating %q", dir).Err()
	}

	src, err := os.Open(localPath)
	if err != nil {
		return errors.Annotate(err, "opening %q", localPath).Err()
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".logjam-upload-*.tmp")
	if err != nil {
		return errors.Annotate(err, "creating temporary file in %q", dir).Err()
	}
	defer func() {
		if err != nil {
			tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.WithError(rmErr).Warningf(ctx, "Failed to remove %q.", tmp.Name())
			}
		}
	}()

	if _, err = io.Copy(tmp, src); err != nil {
		return errors.Annotate(err, "copying %q", localPath).Err()
	}
	if err = tmp.Close(); err != nil {
		return errors.Annotate(err, "closing %q", tmp.Name()).Err()
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return errors.Annotate(err, "renaming to %q", dst).Err()
	}
	return nil
}

// Close implements remote.Backend.
func (Backend) Close() error { return nil }
