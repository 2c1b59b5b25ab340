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
	"fmt"
	"os"
	"testing"

	"go.chromium.org/luci/common/exec/execmock"
)

func TestMain(m *testing.M) {
	execmock.Intercept(false)
	os.Exit(m.Run())
}

// fakeCompressorInput tells fakeCompressor how to behave.
type fakeCompressorInput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type fakeCompressorOutput struct{}

// fakeCompressor stands in for an external compressor.
var fakeCompressor = execmock.Register(func(in *fakeCompressorInput) (fakeCompressorOutput, int, error) {
	fmt.Fprint(os.Stdout, in.Stdout)
	fmt.Fprint(os.Stderr, in.Stderr)
	return fakeCompressorOutput{}, in.ExitCode, nil
})

// fakeCommand is a Command whose runs are served by fakeCompressor.
var fakeCommand = &Command{Args: []string{"fake-gzip", "-c"}, Ext: ".gz"}
