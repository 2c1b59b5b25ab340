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

package s3

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

type fakeS3 struct {
	buckets map[string]map[string]string // bucket => key => local path
	putErr  error
}

func (f *fakeS3) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, ok := f.buckets[bucket]
	return ok, nil
}

func (f *fakeS3) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.buckets[bucket])+1)
	if _, ok := f.buckets[bucket]; !ok {
		ch <- minio.ObjectInfo{Err: minio.ErrorResponse{Code: "NoSuchBucket", Message: "no such bucket"}}
	}
	for key := range f.buckets[bucket] {
		if strings.HasPrefix(key, opts.Prefix) {
			ch <- minio.ObjectInfo{Key: key}
		}
	}
	close(ch)
	return ch
}

func (f *fakeS3) StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if _, ok := f.buckets[bucket][object]; ok {
		return minio.ObjectInfo{Key: object}, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", Message: "not found"}
}

func (f *fakeS3) FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	f.buckets[bucket][object] = filePath
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func TestEndpoint(t *testing.T) {
	t.Parallel()

	ftt.Run(`Endpoint resolution`, t, func(t *ftt.Test) {
		env := map[string]string{}
		getenv := func(k string) string { return env[k] }

		t.Run(`default`, func(t *ftt.Test) {
			o := Options{}.resolve(getenv)
			assert.Loosely(t, o.Endpoint, should.Equal("s3.amazonaws.com"))
			assert.Loosely(t, o.Region, should.BeEmpty)
			assert.Loosely(t, o.Creds, should.NotBeNil)
		})

		t.Run(`from AWS_DEFAULT_REGION`, func(t *ftt.Test) {
			env["AWS_DEFAULT_REGION"] = "us-west-1"
			o := Options{}.resolve(getenv)
			assert.Loosely(t, o.Endpoint, should.Equal("s3.us-west-1.amazonaws.com"))
			assert.Loosely(t, o.Region, should.Equal("us-west-1"))
		})

		t.Run(`explicit options win`, func(t *ftt.Test) {
			env["AWS_DEFAULT_REGION"] = "us-west-1"
			o := Options{Endpoint: "localhost:9000", Region: "eu-west-1"}.resolve(getenv)
			assert.Loosely(t, o.Endpoint, should.Equal("localhost:9000"))
			assert.Loosely(t, o.Region, should.Equal("eu-west-1"))
		})
	})
}

func TestBackend(t *testing.T) {
	t.Parallel()

	ftt.Run(`Backend`, t, func(t *ftt.Test) {
		ctx := context.Background()
		fake := &fakeS3{buckets: map[string]map[string]string{
			"logs": {
				"haproxy/2013/07/27/haproxy-20130727T0000Z.log.gz": "x",
				"haproxy/2013/07/27/haproxy-20130727T0100Z.log.gz": "x",
				"haproxy/2013/07/28/haproxy-20130728T0000Z.log.gz": "x",
			},
		}}
		b := &Backend{client: fake}

		t.Run(`CheckBucket`, func(t *ftt.Test) {
			assert.NoErr(t, b.CheckBucket(ctx, "s3://logs/whatever"))
			assert.Loosely(t, b.CheckBucket(ctx, "s3://nope/whatever"), should.ErrLike(`bucket "nope" does not exist`))
			assert.Loosely(t, b.CheckBucket(ctx, "gs://logs/whatever"), should.ErrLike("not an s3:// URI"))
		})

		t.Run(`List`, func(t *ftt.Test) {
			uris, err := b.List(ctx, "s3://logs/haproxy/2013/07/27/")
			assert.NoErr(t, err)
			sort.Strings(uris)
			assert.Loosely(t, uris, should.Match([]string{
				"s3://logs/haproxy/2013/07/27/haproxy-20130727T0000Z.log.gz",
				"s3://logs/haproxy/2013/07/27/haproxy-20130727T0100Z.log.gz",
			}))

			_, err = b.List(ctx, "s3://nope/haproxy/")
			assert.Loosely(t, err, should.ErrLike("no such bucket"))
		})

		t.Run(`Exists`, func(t *ftt.Test) {
			ok, err := b.Exists(ctx, "s3://logs/haproxy/2013/07/27/haproxy-20130727T0000Z.log.gz")
			assert.NoErr(t, err)
			assert.Loosely(t, ok, should.BeTrue)

			ok, err = b.Exists(ctx, "s3://logs/haproxy/2013/07/27/haproxy-20130727T0200Z.log.gz")
			assert.NoErr(t, err)
			assert.Loosely(t, ok, should.BeFalse)
		})

		t.Run(`Put`, func(t *ftt.Test) {
			assert.NoErr(t, b.Put(ctx, "s3://logs/flask/f.log.gz", "/var/log/archive/f.log.gz"))
			assert.Loosely(t, fake.buckets["logs"]["flask/f.log.gz"], should.Equal("/var/log/archive/f.log.gz"))

			fake.putErr = errors.New("500 unknown reason")
			assert.Loosely(t, b.Put(ctx, "s3://logs/flask/g.log.gz", "/g"), should.ErrLike("unknown reason"))
		})
	})
}
