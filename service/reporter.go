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

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/errorreporting"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// Reporter receives errors returned by passes.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// LogReporter logs errors along with their annotation stacks.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(ctx context.Context, err error, tags map[string]string) {
	fields := make(logging.Fields, len(tags)+1)
	for k, v := range tags {
		fields[k] = v
	}
	fields[logging.ErrorKey] = err
	fields.Errorf(ctx, "Pass failed.")
	errors.Log(ctx, err)
}

// MultiReporter sends every error to each of its Reporters in order.
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(ctx context.Context, err error, tags map[string]string) {
	for _, r := range m {
		r.Report(ctx, err, tags)
	}
}

// errorSink is the part of *errorreporting.Client used by CloudReporter.
type errorSink interface {
	Report(e errorreporting.Entry)
	Flush()
	Close() error
}

// CloudReporter sends errors to Cloud Error Reporting.
type CloudReporter struct {
	sink errorSink
}

// NewCloudReporter creates a CloudReporter for project, reporting as service.
func NewCloudReporter(ctx context.Context, project, service, version string, opts ...option.ClientOption) (*CloudReporter, error) {
	client, err := errorreporting.NewClient(ctx, project, errorreporting.Config{
		ServiceName:    service,
		ServiceVersion: version,
		OnError: func(err error) {
			logging.WithError(err).Warningf(ctx, "Failed to send an error report.")
		},
	}, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "creating error reporting client for %q", project).Err()
	}
	return &CloudReporter{sink: client}, nil
}

// Report implements Reporter.
//
// Tags are folded into the message, sorted by key, since Error Reporting has
// no free-form labels.
func (c *CloudReporter) Report(ctx context.Context, err error, tags map[string]string) {
	c.sink.Report(errorreporting.Entry{Error: tagged(err, tags)})
}

// Close flushes pending reports and releases the client.
func (c *CloudReporter) Close() error {
	c.sink.Flush()
	return c.sink.Close()
}

func tagged(err error, tags map[string]string) error {
	if len(tags) == 0 {
		return err
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, tags[k])
	}
	return errors.Annotate(err, "[%s]", strings.Join(parts, " ")).Err()
}
