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

package cli

import (
	"context"
	"os"
	"strings"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/logjam/remote"
	"go.chromium.org/logjam/remote/file"
	"go.chromium.org/logjam/remote/gs"
	"go.chromium.org/logjam/remote/s3"
	"go.chromium.org/logjam/upload"
)

func cmdUpload() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "upload [options] ARCHIVE_DIR UPLOAD_URI",
		ShortDesc: "uploads archived log files to a remote store",
		LongDesc: `Uploads the log files in ARCHIVE_DIR that are not in the remote store yet.

ARCHIVE_DIR must end in /archive. UPLOAD_URI is a template such as

  s3://my-log-bucket/{prefix}/{year}/{month}/{day}/{filename}

It must use {prefix}, {year}, {month}, {day} and {filename}, and may use
{hour} and {minute}. Write {{ and }} for literal braces. Supported schemes
are s3://, gs:// and file://.`,
		CommandRun: func() subcommands.CommandRun {
			c := &uploadRun{}
			c.registerCommonFlags("upload")
			c.Flags.StringVar(&c.ledger, "ledger", "dir",
				`Where to remember uploaded files: "dir" keeps markers in ARCHIVE_DIR/.uploaded, "memory" forgets them on exit.`)
			c.Flags.StringVar(&c.s3.Endpoint, "s3-endpoint", "",
				"S3 endpoint, for S3-compatible stores. Defaults to the endpoint of -s3-region.")
			c.Flags.StringVar(&c.s3.Region, "s3-region", "",
				"S3 region. Defaults to $AWS_DEFAULT_REGION.")
			c.Flags.BoolVar(&c.s3.Insecure, "s3-insecure", false,
				"Talk plain HTTP to -s3-endpoint.")
			c.Flags.BoolVar(&c.disableS3, "disable-s3", false, "Reject s3:// upload URIs.")
			c.Flags.BoolVar(&c.disableGS, "disable-gs", false, "Reject gs:// upload URIs.")
			return c
		},
	}
}

type uploadRun struct {
	commonFlags

	ledger    string
	s3        s3.Options
	disableS3 bool
	disableGS bool
}

// registry returns the remote stores enabled by the flags.
func (c *uploadRun) registry() remote.Registry {
	r := remote.Registry{
		s3.Scheme:   s3.Opener(c.s3),
		gs.Scheme:   gs.Opener(),
		file.Scheme: file.Open,
	}
	if c.disableS3 {
		r[s3.Scheme] = nil
	}
	if c.disableGS {
		r[gs.Scheme] = nil
	}
	return r
}

func (c *uploadRun) newLedger(archiveDir string) (upload.Ledger, error) {
	switch c.ledger {
	case "dir":
		return upload.NewDirLedger(archiveDir), nil
	case "memory":
		return &upload.MemoryLedger{}, nil
	default:
		return nil, badUsage(`unknown -ledger %q, expecting "dir" or "memory"`, c.ledger)
	}
}

// parse validates the command line. It does not contact the remote store.
func (c *uploadRun) parse(args []string) (archiveDir string, t *remote.Template, ledger upload.Ledger, err error) {
	if err = c.validateCommonFlags(); err != nil {
		return
	}
	if len(args) != 2 {
		err = badUsage("expecting ARCHIVE_DIR and UPLOAD_URI arguments, got %d arguments", len(args))
		return
	}
	archiveDir = strings.TrimSuffix(args[0], string(os.PathSeparator))
	if err = upload.ValidateArchiveDir(archiveDir); err != nil {
		err = usageError{err}
		return
	}
	if t, err = remote.ParseTemplate(args[1]); err != nil {
		err = usageError{err}
		return
	}
	if c.registry()[t.Scheme()] == nil {
		err = badUsage("no uploader found for URI scheme %q", t.Scheme())
		return
	}
	ledger, err = c.newLedger(archiveDir)
	return
}

func (c *uploadRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	ctx = c.logConfig.Set(ctx)

	archiveDir, t, ledger, err := c.parse(args)
	if err != nil {
		return exitCode(ctx, a, err)
	}
	return exitCode(ctx, a, c.run(ctx, archiveDir, t, ledger))
}

func (c *uploadRun) run(ctx context.Context, archiveDir string, t *remote.Template, ledger upload.Ledger) error {
	u, err := c.registry().NewUploader(ctx, t.String())
	if err != nil {
		return err
	}
	defer func() {
		if err := u.Close(); err != nil {
			logging.WithError(err).Warningf(ctx, "Failed to close the %s client.", t.Scheme())
		}
	}()

	s := &upload.Service{
		ArchiveDir: archiveDir,
		Uploader:   u,
		Ledger:     ledger,
	}
	return c.runService(ctx, "upload", s.Run)
}
