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

// Package cli implements the logjam command line tool.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/flag/fixflagpos"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"
	"go.chromium.org/luci/common/system/signals"
	"go.chromium.org/luci/common/tsmon"
	"go.chromium.org/luci/common/tsmon/target"

	"go.chromium.org/logjam/service"
)

// Version is reported along with errors sent to Cloud Error Reporting.
const Version = "1.0.0"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitBadUsage = 2
)

var logCfg = gologger.LoggerConfig{
	Out: os.Stderr,
}

// application creates the application and configures its subcommands.
func application() *cli.Application {
	return &cli.Application{
		Name:  "logjam",
		Title: "Compresses rotated log files and uploads them to a remote store.",
		Context: func(ctx context.Context) context.Context {
			return logCfg.Use(ctx)
		},
		Commands: []*subcommands.Command{
			cmdCompress(),
			cmdUpload(),

			{}, // a separator
			subcommands.CmdHelp,
		},
	}
}

// Main is the main function of the logjam application.
func Main(args []string) int {
	return subcommands.Run(application(), fixflagpos.FixSubcommands(args))
}

// usageError marks errors in the command line or configuration.
type usageError struct{ error }

func badUsage(format string, args ...any) error {
	return usageError{errors.Reason(format, args...).Err()}
}

// commonFlags are shared by all subcommands.
type commonFlags struct {
	subcommands.CommandRunBase

	logConfig             logging.Config
	tsmonFlags            tsmon.Flags
	once                  bool
	interval              time.Duration
	errorReportingProject string
}

func (c *commonFlags) registerCommonFlags(name string) {
	c.logConfig.Level = logging.Info
	c.logConfig.AddFlags(&c.Flags)

	c.tsmonFlags = tsmon.NewFlags()
	c.tsmonFlags.Flush = tsmon.FlushAuto
	c.tsmonFlags.Target.TargetType = target.TaskType
	c.tsmonFlags.Target.TaskServiceName = "logjam"
	c.tsmonFlags.Target.TaskJobName = name
	c.tsmonFlags.Register(&c.Flags)

	c.Flags.BoolVar(&c.once, "once", false, "Run a single pass and exit.")
	c.Flags.DurationVar(&c.interval, "interval", service.DefaultInterval,
		"Time between the starts of two passes.")
	c.Flags.StringVar(&c.errorReportingProject, "error-reporting-project", "",
		"If set, also send errors to Cloud Error Reporting in this project.")
}

func (c *commonFlags) validateCommonFlags() error {
	if c.interval <= 0 {
		return badUsage("-interval must be positive, got %s", c.interval)
	}
	return nil
}

// reporter returns the Reporter for this run and a function releasing it.
func (c *commonFlags) reporter(ctx context.Context, name string) (service.Reporter, func(), error) {
	if c.errorReportingProject == "" {
		return service.LogReporter{}, func() {}, nil
	}
	cloud, err := service.NewCloudReporter(ctx, c.errorReportingProject, "logjam-"+name, Version)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := cloud.Close(); err != nil {
			logging.WithError(err).Warningf(ctx, "Failed to close the error reporting client.")
		}
	}
	return service.MultiReporter{service.LogReporter{}, cloud}, release, nil
}

// runService runs pass once or forever, depending on the flags, until
// interrupted.
func (c *commonFlags) runService(ctx context.Context, name string, pass service.Pass) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer signals.HandleInterrupt(func() {
		logging.Infof(ctx, "Interrupted, stopping after the current pass.")
		cancel()
	})()

	ctx = tsmon.WithState(ctx, tsmon.NewState())
	if err := tsmon.InitializeFromFlags(ctx, &c.tsmonFlags); err != nil {
		return errors.Annotate(err, "failed to initialize monitoring").Err()
	}
	defer tsmon.Shutdown(ctx)

	r, release, err := c.reporter(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	if c.once {
		return service.DoOnce(ctx, name, pass, r)
	}
	logging.Infof(ctx, "Running a %s pass every %s.", name, c.interval)
	return service.DoForever(ctx, name, c.interval, pass, r)
}

// exitCode prints err to the application's stderr and maps it to an exit
// code.
func exitCode(ctx context.Context, a subcommands.Application, err error) int {
	if err == nil {
		return exitOK
	}
	if _, ok := err.(usageError); ok {
		fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
		return exitBadUsage
	}
	errors.Log(ctx, err)
	fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
	return exitFailure
}
