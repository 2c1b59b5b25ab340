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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/logjam/compress"
)

func cmdCompress() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "compress [options] LOG_DIR",
		ShortDesc: "compresses superseded log files into LOG_DIR/archive",
		LongDesc: `Compresses log files in LOG_DIR that are no longer written to.

Log files are named like PREFIX-YYYYMMDDTHHMMZ[-SUFFIX].EXT. A file is
superseded once a newer file of the same stream exists, or once its timestamp,
the start of the period it covers, is more than -margin in the past.
Superseded files are compressed into LOG_DIR/archive, then removed.`,
		CommandRun: func() subcommands.CommandRun {
			c := &compressRun{}
			c.registerCommonFlags("compress")
			c.Flags.StringVar(&c.compressor, "compressor", "gzip-command",
				fmt.Sprintf("Compressor to use, one of %s.", strings.Join(compress.CompressorNames, ", ")))
			c.Flags.DurationVar(&c.margin, "margin", compress.DefaultMargin,
				"How long after its timestamp a log file with no newer sibling is left alone.")
			return c
		},
	}
}

type compressRun struct {
	commonFlags

	compressor string
	margin     time.Duration
}

// parse validates the command line and builds the Archiver.
func (c *compressRun) parse(args []string) (*compress.Archiver, error) {
	if err := c.validateCommonFlags(); err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, badUsage("expecting exactly one LOG_DIR argument, got %d", len(args))
	}
	if c.margin <= 0 {
		return nil, badUsage("-margin must be positive, got %s", c.margin)
	}
	comp, err := compress.CompressorByName(c.compressor)
	if err != nil {
		return nil, usageError{err}
	}
	switch fi, err := os.Stat(args[0]); {
	case err != nil:
		return nil, badUsage("log directory: %s", err)
	case !fi.IsDir():
		return nil, badUsage("%q is not a directory", args[0])
	}
	return &compress.Archiver{
		LogDir:     args[0],
		Compressor: comp,
		Margin:     c.margin,
	}, nil
}

func (c *compressRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	ctx = c.logConfig.Set(ctx)

	archiver, err := c.parse(args)
	if err != nil {
		return exitCode(ctx, a, err)
	}
	return exitCode(ctx, a, c.runService(ctx, "compress", archiver.Run))
}
