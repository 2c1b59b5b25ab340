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

package compress

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/exec"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
)

// Compressor compresses a single file.
type Compressor interface {
	// Compress writes the compressed contents of the file at path to w.
	//
	// Failures that may go away by themselves (e.g. the file being rotated
	// underneath us) are tagged transient.
	Compress(ctx context.Context, path string, w io.Writer) error

	// Extension is appended to the file name of compressed files, e.g. ".gz".
	Extension() string

	String() string
}

// Command runs an external compressor.
//
// The path of the file is appended to Args as the sole positional argument
// and the compressed data is read from the process's stdout.
type Command struct {
	Args []string
	Ext  string
}

// DefaultCommand is `gzip -c`.
var DefaultCommand = &Command{Args: []string{"gzip", "-c"}, Ext: ".gz"}

var _ Compressor = (*Command)(nil)

// Compress implements Compressor.
//
// TODO: bound the runtime of the subprocess once a sensible limit for very
// large logs is known.
func (c *Command) Compress(ctx context.Context, path string, w io.Writer) error {
	if len(c.Args) == 0 {
		return errors.New("compressor command is empty")
	}
	args := append(append([]string(nil), c.Args[1:]...), path)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Args[0], args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	logging.Debugf(ctx, "Running %s %s", c.Args[0], strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		logging.Fields{
			logging.ErrorKey: err,
			"stderr":         strings.TrimSpace(stderr.String()),
		}.Errorf(ctx, "%s failed.", c)
		return transient.Tag.Apply(errors.Annotate(err, "running %s", c).Err())
	}
	return nil
}

// Extension implements Compressor.
func (c *Command) Extension() string { return c.Ext }

func (c *Command) String() string { return strings.Join(c.Args, " ") }

// Gzip compresses in-process with gzip.
type Gzip struct {
	// Level is a gzip compression level. Zero means gzip.DefaultCompression.
	Level int
}

var _ Compressor = (*Gzip)(nil)

// Compress implements Compressor.
func (g *Gzip) Compress(ctx context.Context, path string, w io.Writer) error {
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return copyCompressed(path, func() (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, level)
	})
}

// Extension implements Compressor.
func (g *Gzip) Extension() string { return ".gz" }

func (g *Gzip) String() string { return "gzip (builtin)" }

// Zstd compresses in-process with zstandard.
type Zstd struct{}

var _ Compressor = (*Zstd)(nil)

// Compress implements Compressor.
func (*Zstd) Compress(ctx context.Context, path string, w io.Writer) error {
	return copyCompressed(path, func() (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})
}

// Extension implements Compressor.
func (*Zstd) Extension() string { return ".zst" }

func (*Zstd) String() string { return "zstd (builtin)" }

// copyCompressed streams the file at path through the writer returned by
// newWriter.
func copyCompressed(path string, newWriter func() (io.WriteCloser, error)) error {
	src, err := os.Open(path)
	if err != nil {
		return transient.Tag.Apply(errors.Annotate(err, "opening %q", path).Err())
	}
	defer src.Close()

	zw, err := newWriter()
	if err != nil {
		return errors.Annotate(err, "creating compressor").Err()
	}
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return transient.Tag.Apply(errors.Annotate(err, "compressing %q", path).Err())
	}
	if err := zw.Close(); err != nil {
		return transient.Tag.Apply(errors.Annotate(err, "flushing compressed %q", path).Err())
	}
	return nil
}

// CompressorNames lists the names accepted by CompressorByName.
var CompressorNames = []string{"gzip-command", "gzip", "zstd"}

// CompressorByName returns a Compressor given its command line name.
func CompressorByName(name string) (Compressor, error) {
	switch name {
	case "gzip-command":
		return DefaultCommand, nil
	case "gzip":
		return &Gzip{}, nil
	case "zstd":
		return &Zstd{}, nil
	default:
		return nil, errors.Reason("unknown compressor %q, expecting one of %s",
			name, strings.Join(CompressorNames, ", ")).Err()
	}
}
