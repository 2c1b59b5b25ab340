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

// Package s3 implements a remote.Backend for Amazon S3 and S3-compatible
// stores.
package s3

import (
	"context"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/logjam/remote"
)

// Scheme is the URI scheme served by this backend.
const Scheme = "s3"

// DefaultEndpoint is used when no region is known.
const DefaultEndpoint = "s3.amazonaws.com"

// Options configure the S3 connection.
type Options struct {
	// Endpoint overrides the endpoint derived from Region.
	Endpoint string
	// Region defaults to $AWS_DEFAULT_REGION. If neither is set, the region
	// of each bucket is discovered.
	Region string
	// Insecure uses plain HTTP, for local S3-compatible stores.
	Insecure bool
	// Creds defaults to DefaultCredentials.
	Creds *credentials.Credentials
}

// EndpointForRegion returns the regional S3 endpoint.
func EndpointForRegion(region string) string {
	if region == "" {
		return DefaultEndpoint
	}
	return "s3." + region + ".amazonaws.com"
}

// DefaultCredentials looks for credentials in the environment, then in
// ~/.aws/credentials, then in the EC2 instance metadata.
func DefaultCredentials() *credentials.Credentials {
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{},
	})
}

// resolve fills in defaults using getenv.
func (o Options) resolve(getenv func(string) string) Options {
	if o.Region == "" {
		o.Region = getenv("AWS_DEFAULT_REGION")
	}
	if o.Endpoint == "" {
		o.Endpoint = EndpointForRegion(o.Region)
	}
	if o.Creds == nil {
		o.Creds = DefaultCredentials()
	}
	return o
}

// Opener returns a remote.Opener connecting with opts.
func Opener(opts Options) remote.Opener {
	return func(ctx context.Context, uri string) (remote.Backend, error) {
		return New(ctx, opts)
	}
}

// New connects to S3.
func New(ctx context.Context, opts Options) (*Backend, error) {
	opts = opts.resolve(os.Getenv)
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  opts.Creds,
		Secure: !opts.Insecure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, errors.Annotate(err, "connecting to %s", opts.Endpoint).Err()
	}
	logging.Debugf(ctx, "Using S3 endpoint %s (region %q).", opts.Endpoint, opts.Region)
	return &Backend{client: mc}, nil
}

// objectAPI is the subset of *minio.Client used by Backend.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Backend is a remote.Backend on top of S3.
type Backend struct {
	client objectAPI
}

var _ remote.Backend = (*Backend)(nil)

func split(uri string) (bucket, key string, err error) {
	scheme, bucket, key, err := remote.SplitURI(uri)
	if err != nil {
		return "", "", err
	}
	if scheme != Scheme {
		return "", "", errors.Reason("%q is not an %s:// URI", uri, Scheme).Err()
	}
	return bucket, key, nil
}

// CheckBucket implements remote.Backend.
func (b *Backend) CheckBucket(ctx context.Context, uri string) error {
	bucket, _, err := split(uri)
	if err != nil {
		return err
	}
	exists, err := b.client.BucketExists(ctx, bucket)
	switch {
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
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []string
	for obj := range b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Annotate(obj.Err, "listing %s", dirURI).Err()
		}
		out = append(out, "s3://"+bucket+"/"+obj.Key)
	}
	return out, nil
}

// Exists implements remote.Backend.
func (b *Backend) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, key, err := split(uri)
	if err != nil {
		return false, err
	}
	_, err = b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return true, nil
	case minio.ToErrorResponse(err).Code == "NoSuchKey":
		return false, nil
	default:
		return false, errors.Annotate(err, "stat %s", uri).Err()
	}
}

// Put implements remote.Backend.
func (b *Backend) Put(ctx context.Context, uri, localPath string) error {
	bucket, key, err := split(uri)
	if err != nil {
		return err
	}
	info, err := b.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{})
	if err != nil {
		return errors.Annotate(err, "uploading to %s", uri).Err()
	}
	logging.Debugf(ctx, "Uploaded %d bytes to %s (etag %s).", info.Size, uri, info.ETag)
	return nil
}

// Close implements remote.Backend.
func (b *Backend) Close() error { return nil }
