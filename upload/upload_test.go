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
	"sort"
	"testing"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
	"go.chromium.org/luci/common/tsmon"

	"go.chromium.org/logjam/logfile"
)

// mockUploader pretends to be a remote store holding uploaded.
type mockUploader struct {
	uploaded    logfile.Set
	notUploaded logfile.Set

	checkErr  error
	scanErr   error
	uploadErr error

	checks, scans int
	attempts      []string
}

func newMockUploader() *mockUploader {
	return &mockUploader{uploaded: logfile.NewSet(), notUploaded: logfile.NewSet()}
}

func (m *mockUploader) Check(ctx context.Context) error {
	m.checks++
	return m.checkErr
}

func (m *mockUploader) ScanRemote(ctx context.Context, files []logfile.LogFile) (uploaded, notUploaded logfile.Set, err error) {
	m.scans++
	if m.scanErr != nil {
		return nil, nil, m.scanErr
	}
	uploaded, notUploaded = logfile.NewSet(), logfile.NewSet()
	for _, lf := range m.uploaded {
		uploaded.Add(lf)
	}
	for _, lf := range m.notUploaded {
		notUploaded.Add(lf)
	}
	return uploaded, notUploaded, nil
}

func (m *mockUploader) Upload(ctx context.Context, archiveDir string, lf logfile.LogFile) (string, error) {
	m.attempts = append(m.attempts, lf.Filename)
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.uploaded.Add(lf)
	m.notUploaded.Del(lf)
	return "mock://" + lf.Filename, nil
}

func (m *mockUploader) expect(t testing.TB, filenames ...string) {
	t.Helper()
	for _, fn := range filenames {
		lf, ok := logfile.Parse(fn)
		if !ok {
			t.Fatalf("failed to parse %q", fn)
		}
		m.notUploaded.Add(lf)
	}
}

func createLogs(t testing.TB, dir string, filenames ...string) {
	t.Helper()
	for _, fn := range filenames {
		if err := os.WriteFile(filepath.Join(dir, fn), []byte("foo"), 0644); err != nil {
			t.Fatalf("writing %s: %s", fn, err)
		}
	}
}

func markers(t testing.TB, archiveDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(archiveDir, LedgerDirName))
	if err != nil {
		t.Fatalf("reading ledger: %s", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

var flaskFiles = []string{
	"flask-20130727T0000Z-i-34aea3fe.log.gz",
	"flask-20130727T0100Z-i-34aea3fe.log.gz",
	"flask-20130727T0200Z-i-34aea3fe.log.gz",
}

func TestScanAndUpload(t *testing.T) {
	t.Parallel()

	ftt.Run(`ScanAndUpload`, t, func(t *ftt.Test) {
		ctx := context.Background()
		const archiveDir = "/does/not/exist/log/archive"
		u := newMockUploader()

		t.Run(`no filenames`, func(t *ftt.Test) {
			uploaded, notUploaded, err := ScanAndUpload(ctx, archiveDir, nil, u)
			assert.NoErr(t, err)
			assert.Loosely(t, uploaded.Len(), should.BeZero)
			assert.Loosely(t, notUploaded.Len(), should.BeZero)
			assert.Loosely(t, u.attempts, should.BeEmpty)
			assert.Loosely(t, u.scans, should.BeZero)
		})

		t.Run(`unparseable names are ignored`, func(t *ftt.Test) {
			_, _, err := ScanAndUpload(ctx, archiveDir, []string{"messages.gz", "README"}, u)
			assert.NoErr(t, err)
			assert.Loosely(t, u.scans, should.BeZero)
		})

		t.Run(`three filenames`, func(t *ftt.Test) {
			u.expect(t, flaskFiles...)
			uploaded, notUploaded, err := ScanAndUpload(ctx, archiveDir, flaskFiles, u)
			assert.NoErr(t, err)
			assert.Loosely(t, uploaded.Filenames(), should.Match(flaskFiles))
			assert.Loosely(t, notUploaded.Len(), should.BeZero)
			assert.Loosely(t, u.attempts, should.Match(flaskFiles))
			assert.Loosely(t, u.notUploaded.Len(), should.BeZero)
		})

		t.Run(`uploads oldest first`, func(t *ftt.Test) {
			reversed := []string{flaskFiles[2], flaskFiles[0], flaskFiles[1]}
			u.expect(t, reversed...)
			_, _, err := ScanAndUpload(ctx, archiveDir, reversed, u)
			assert.NoErr(t, err)
			assert.Loosely(t, u.attempts, should.Match(flaskFiles))
		})

		t.Run(`one failure`, func(t *ftt.Test) {
			u.uploadErr = transient.Tag.Apply(errors.New("500 unknown reason"))
			for _, fn := range flaskFiles[:2] {
				lf, _ := logfile.Parse(fn)
				u.uploaded.Add(lf)
			}
			u.expect(t, flaskFiles[2])

			uploaded, notUploaded, err := ScanAndUpload(ctx, archiveDir, flaskFiles, u)
			assert.NoErr(t, err)
			assert.Loosely(t, uploaded.Filenames(), should.Match(flaskFiles[:2]))
			assert.Loosely(t, notUploaded.Filenames(), should.Match(flaskFiles[2:]))
		})

		t.Run(`scan failure`, func(t *ftt.Test) {
			u.scanErr = errors.New("bucket is gone")
			_, _, err := ScanAndUpload(ctx, archiveDir, flaskFiles, u)
			assert.Loosely(t, err, should.ErrLike("bucket is gone"))
			assert.Loosely(t, u.attempts, should.BeEmpty)
		})
	})
}

func TestValidateArchiveDir(t *testing.T) {
	t.Parallel()

	ftt.Run(`ValidateArchiveDir`, t, func(t *ftt.Test) {
		assert.NoErr(t, ValidateArchiveDir("/var/log/hourly/archive"))
		assert.NoErr(t, ValidateArchiveDir("/var/log/hourly/archive/"))
		assert.NoErr(t, ValidateArchiveDir("archive"))
		assert.Loosely(t, ValidateArchiveDir("/var/log/hourly"), should.ErrLike(`does not end in /archive`))
		assert.Loosely(t, ValidateArchiveDir("/var/log/archived"), should.ErrLike(`does not end in /archive`))
	})
}

func TestService(t *testing.T) {
	t.Parallel()

	ftt.Run(`Service`, t, func(t *ftt.Test) {
		ctx := context.Background()
		archiveDir := filepath.Join(t.TempDir(), "archive")
		assert.NoErr(t, os.Mkdir(archiveDir, 0755))
		createLogs(t, archiveDir, flaskFiles...)

		u := newMockUploader()
		u.expect(t, flaskFiles...)
		s := &Service{ArchiveDir: archiveDir, Uploader: u}

		t.Run(`run`, func(t *ftt.Test) {
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, markers(t, archiveDir), should.Match(flaskFiles))
			assert.Loosely(t, u.uploaded.Filenames(), should.Match(flaskFiles))
			assert.Loosely(t, u.notUploaded.Len(), should.BeZero)
			assert.Loosely(t, u.checks, should.Equal(1))
		})

		t.Run(`counts uploads and remote scans`, func(t *ftt.Test) {
			ctx, _ := tsmon.WithDummyInMemory(ctx)
			u.uploadErr = transient.Tag.Apply(errors.New("500 unknown reason"))
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, tsUploads.Get(ctx, false), should.Equal(int64(3)))

			u.uploadErr = nil
			assert.NoErr(t, s.Run(ctx))
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, tsUploads.Get(ctx, true), should.Equal(int64(3)))
			assert.Loosely(t, tsRemoteScans.Get(ctx), should.Equal(int64(2)))
		})

		t.Run(`scans remote once`, func(t *ftt.Test) {
			assert.Loosely(t, u.scans, should.BeZero)
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, u.scans, should.Equal(1))
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, u.scans, should.Equal(1))
			assert.Loosely(t, u.checks, should.Equal(1))
		})

		t.Run(`run twice`, func(t *ftt.Test) {
			assert.NoErr(t, s.Run(ctx))
			more := []string{
				"flask-20130727T0300Z-i-34aea3fe.log.gz",
				"flask-20130727T0400Z-i-34aea3fe.log.gz",
			}
			createLogs(t, archiveDir, more...)
			u.expect(t, more...)
			u.attempts = nil

			assert.NoErr(t, s.Run(ctx))
			all := append(append([]string(nil), flaskFiles...), more...)
			assert.Loosely(t, markers(t, archiveDir), should.Match(all))
			assert.Loosely(t, u.uploaded.Filenames(), should.Match(all))
			assert.Loosely(t, u.attempts, should.Match(more))
		})

		t.Run(`markers of removed archives are pruned`, func(t *ftt.Test) {
			assert.NoErr(t, s.Run(ctx))
			assert.NoErr(t, os.Remove(filepath.Join(archiveDir, flaskFiles[0])))
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, markers(t, archiveDir), should.Match(flaskFiles[1:]))
			assert.Loosely(t, u.scans, should.Equal(1))
		})

		t.Run(`failed uploads are retried next pass`, func(t *ftt.Test) {
			u.uploadErr = transient.Tag.Apply(errors.New("500 unknown reason"))
			assert.NoErr(t, s.Run(ctx))
			_, err := os.Stat(filepath.Join(archiveDir, LedgerDirName))
			assert.Loosely(t, os.IsNotExist(err), should.BeTrue)

			u.uploadErr = nil
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, u.scans, should.Equal(2))
			assert.Loosely(t, markers(t, archiveDir), should.Match(flaskFiles))
		})

		t.Run(`check failure aborts the pass`, func(t *ftt.Test) {
			u.checkErr = transient.Tag.Apply(errors.New("failed to find bucket"))
			err := s.Run(ctx)
			assert.Loosely(t, err, should.ErrLike("failed to find bucket"))
			assert.Loosely(t, u.scans, should.BeZero)
		})

		t.Run(`scan failure aborts the pass`, func(t *ftt.Test) {
			u.scanErr = transient.Tag.Apply(errors.New("connection reset"))
			err := s.Run(ctx)
			assert.Loosely(t, err, should.ErrLike("connection reset"))
			assert.Loosely(t, u.attempts, should.BeEmpty)
		})

		t.Run(`with a memory ledger`, func(t *ftt.Test) {
			s.Ledger = &MemoryLedger{}
			assert.NoErr(t, s.Run(ctx))
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, u.scans, should.Equal(1))
			_, err := os.Stat(filepath.Join(archiveDir, LedgerDirName))
			assert.Loosely(t, os.IsNotExist(err), should.BeTrue)
		})

		t.Run(`ignores hidden and unparseable files`, func(t *ftt.Test) {
			assert.NoErr(t, s.Run(ctx))
			createLogs(t, archiveDir, "README", ".logjam-compress-1.tmp")
			assert.NoErr(t, s.Run(ctx))
			assert.Loosely(t, u.scans, should.Equal(1))
		})

		t.Run(`missing archive directory`, func(t *ftt.Test) {
			s.ArchiveDir = filepath.Join(archiveDir, "nope", "archive")
			s.Ledger = nil
			err := s.Run(ctx)
			assert.Loosely(t, err, should.ErrLike("listing"))
			assert.Loosely(t, transient.Tag.In(err), should.BeTrue)
		})
	})
}
