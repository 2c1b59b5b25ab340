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

// Package gs implements a remote.Backend for Google Cloud Storage.
package gs

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	lucigs "go.chromium.org/luci/common/gcloud/gs"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/logjam/remote"
)

// Scheme is the URI scheme served by this backend.
const Scheme = "gs"

// Opener returns a remote.Opener using application default credentials,
// plus opts.
func Opener(opts ...option.ClientOption) remote.Opener {
	return func(ctx context.Context, uri string) (remote.Backend, error) {
		return New(ctx, opts...)
	}
}

// New connects to Cloud Storage.
func New(ctx context.Context, opts ...option.ClientOption) (*Backend, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "creating storage client").Err()
	}
	return &Backend{api: &gcsAPI{client}}, nil
}

// objectAPI is what Backend needs from Cloud Storage.
type objectAPI interface {
	bucketExists(ctx context.Context, bucket string) (bool, error)
	list(ctx context.Context, bucket, prefix string) ([]string, error)
	exists(ctx context.Context, bucket, object string) (bool, error)
	// create fails if the object already exists.
	create(ctx context.Context, bucket, object string, r io.Reader) error
	close() error
}

// Backend is a remote.Backend on top of Cloud Storage.
type Backend struct {
	api objectAPI
}

var _ remote.Backend = (*Backend)(nil)

func split(uri string) (bucket, object string, err error) {
	scheme, _, _, err := remote.SplitURI(uri)
	if err != nil {
		return "", "", err
	}
	if scheme != Scheme {
		return "", "", errors.Reason("%q is not a %s:// URI", uri, Scheme).Err()
	}
	bucket, object = lucigs.Path(uri).Split()
	return bucket, object, nil
}

// CheckBucket implements remote.Backend.
func (b *Backend) CheckBucket(ctx context.Context, uri string) error {
	bucket, _, err := split(uri)
	if err != nil {
		return err
	}
	switch exists, err := b.api.bucketExists(ctx, bucket); {
	case err != nil:
		return errors.Annotate(err, "checking bucket %q", bucket).Err()
	case !exists:
		return errors.Reason("bucket %q does not exist", bucket).Err()
	}
	return nil
}

// List implements remote.Backend.
func (b *Backend) List(ctx context.Context, dirURI string) ([]string, error) {
	bucket, prefix, err := split(dirURI)
	if err != nil {
		return nil, err
	}
	names, err := b.api.list(ctx, bucket, prefix)
	if err != nil {
		return nil, errors.Annotate(err, "listing %s", dirURI).Err()
	}
	uris := make([]string, len(names))
	for i, name := range names {
		uris[i] = string(lucigs.MakePath(bucket, name))
	}
	return uris, nil
}

// Exists implements remote.Backend.
func (b *Backend) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, object, err := split(uri)
	if err != nil {
		return false, err
	}
	ok, err := b.api.exists(ctx, bucket, object)
	if err != nil {
		return false, errors.Annotate(err, "stat %s", uri).Err()
	}
	return ok, nil
}

// Put implements remote.Backend.
func (b *Backend) Put(ctx context.Context, uri, localPath string) error {
	bucket, object, err := split(uri)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Annotate(err, "opening %q", localPath).Err()
	}
	defer f.Close()

	if err := b.api.create(ctx, bucket, object, f); err != nil {
		return errors.Annotate(err, "uploading to %s", uri).Err()
	}
	logging.Debugf(ctx, "Uploaded %s.", uri)
	return nil
}

// Close implements remote.Backend.
func (b *Backend) Close() error {
	return b.api.close()
}

// gcsAPI implements objectAPI with a real client.
type gcsAPI struct {
	client *storage.Client
}

func (g *gcsAPI) bucketExists(ctx context.Context, bucket string) (bool, error) {
	switch _, err := g.client.Bucket(bucket).Attrs(ctx); {
	case err == storage.ErrBucketNotExist:
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (g *gcsAPI) list(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
}

func (g *gcsAPI) exists(ctx context.Context, bucket, object string) (bool, error) {
	switch _, err := g.client.Bucket(bucket).Object(object).Attrs(ctx); {
	case err == storage.ErrObjectNotExist:
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (g *gcsAPI) create(ctx context.Context, bucket, object string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		// Cancelling the context aborts the upload.
		cancel()
		w.Close()
		return err
	}
	return w.Close()
}

func (g *gcsAPI) close() error {
	return g.client.Close()
}
