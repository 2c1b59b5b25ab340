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
	"time"

	"go.chromium.org/logjam/logfile"
)

// DefaultMargin is how old a log file must be before it is compressed even if
// nothing newer superseded it.
//
// It is one rotation interval of hourly logs plus slack for clock skew and
// rotation jitter.
const DefaultMargin = time.Hour + 5*time.Minute

// SupersededByNewFile returns every file of a single stream except the newest
// one, oldest first.
//
// A lone file is never superseded.
func SupersededByNewFile(group []logfile.LogFile) []logfile.LogFile {
	if len(group) <= 1 {
		return nil
	}
	sorted := append([]logfile.LogFile(nil), group...)
	logfile.Sort(sorted)
	return sorted[:len(sorted)-1]
}

// SupersededByTimestamp returns the files of a single stream that are more
// than margin older than now, in their original order.
func SupersededByTimestamp(group []logfile.LogFile, now time.Time, margin time.Duration) []logfile.LogFile {
	var old []logfile.LogFile
	for _, lf := range group {
		if now.Sub(lf.Timestamp) > margin {
			old = append(old, lf)
		}
	}
	return old
}

// OldLogFiles returns the files among filenames that should be compressed.
//
// A file is old if a newer file of the same stream exists or if it is more
// than margin older than now. Files are returned stream by stream, oldest
// first within each stream. Unparseable names are ignored.
func OldLogFiles(filenames []string, now time.Time, margin time.Duration) []logfile.LogFile {
	groups := logfile.Group(filenames)

	var out []logfile.LogFile
	for _, k := range logfile.SortedGroupKeys(groups) {
		group := groups[k]
		old := logfile.NewSet(SupersededByNewFile(group)...)
		for _, lf := range SupersededByTimestamp(group, now, margin) {
			old.Add(lf)
		}
		out = append(out, old.Sorted()...)
	}
	return out
}
