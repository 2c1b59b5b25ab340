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

// Package logfile parses and renders ISO8601-stamped log file names.
//
// A log file name has the form:
//
//	PREFIX-YYYYMMDDThhmmZ[-SUFFIX].EXTENSION
//
// for example "haproxy-20130727T1300Z-i-3949aea.log". Hyphens between the
// date components are accepted when parsing, but never emitted.
package logfile

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/luci/common/data/sortby"
)

var filenameRe = regexp.MustCompile(
	`^(.+?)-` + // prefix
		`(\d{4})-?(\d\d)-?(\d\d)T(\d\d):?(\d\d)Z` + // year, month, day, hour, minute
		`(-[^.]+)?` + // suffix, with its leading hyphen
		`(\..+)$`) // extension

// LogFile is a parsed log file name.
//
// LogFile values are compared by Key, never by Filename.
type LogFile struct {
	Prefix    string
	Timestamp time.Time // UTC, minute precision
	Suffix    string    // empty if the name has no suffix
	Extension string    // includes the leading dot

	// Filename is the name this LogFile was parsed from.
	Filename string
}

// Key identifies a LogFile for sorting and set membership.
type Key struct {
	Prefix    string
	Timestamp time.Time
	Suffix    string
	Extension string
}

// GroupKey identifies one logical log stream, e.g. one service on one host.
type GroupKey struct {
	Prefix    string
	Suffix    string
	Extension string
}

// Sample is a well-formed LogFile, handy for validating things derived from
// log file names.
var Sample = LogFile{
	Prefix:    "haproxy",
	Timestamp: time.Date(2013, time.July, 27, 13, 0, 0, 0, time.UTC),
	Suffix:    "i-3949aea",
	Extension: ".log",
	Filename:  "haproxy-20130727T1300Z-i-3949aea.log",
}

// Key returns the ordering key of l.
//
// The timestamp is normalized to UTC, so the same instant in another location
// yields the same Key.
func (l LogFile) Key() Key {
	return Key{l.Prefix, l.Timestamp.UTC(), l.Suffix, l.Extension}
}

// GroupKey returns the key of the log stream l belongs to.
func (l LogFile) GroupKey() GroupKey {
	return GroupKey{l.Prefix, l.Suffix, l.Extension}
}

func (l LogFile) String() string {
	return l.Filename
}

// Parse parses a log file name.
//
// It returns false if filename doesn't follow the naming convention or if its
// timestamp is not a valid calendar date and time.
func Parse(filename string) (LogFile, bool) {
	m := filenameRe.FindStringSubmatch(filename)
	if m == nil {
		return LogFile{}, false
	}

	var n [5]int
	for i := range n {
		// The regexp guarantees digits.
		n[i], _ = strconv.Atoi(m[2+i])
	}
	year, month, day, hour, minute := n[0], n[1], n[2], n[3], n[4]
	ts := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)

	// time.Date normalizes out-of-range values (e.g. month 13); reject those.
	if ts.Year() != year || int(ts.Month()) != month || ts.Day() != day ||
		ts.Hour() != hour || ts.Minute() != minute {
		return LogFile{}, false
	}

	return LogFile{
		Prefix:    m[1],
		Timestamp: ts,
		Suffix:    strings.TrimPrefix(m[7], "-"),
		Extension: m[8],
		Filename:  filename,
	}, true
}

// Unparse renders a log file name.
//
// Seconds and below of ts are dropped.
func Unparse(prefix string, ts time.Time, suffix, extension string) string {
	ts = ts.UTC()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s-%04d%02d%02dT%02d%02dZ",
		prefix, ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute())
	if suffix != "" {
		sb.WriteString("-")
		sb.WriteString(suffix)
	}
	sb.WriteString(extension)
	return sb.String()
}

// Compare orders a and b by (Prefix, Timestamp, Suffix, Extension).
func Compare(a, b LogFile) int {
	if c := strings.Compare(a.Prefix, b.Prefix); c != 0 {
		return c
	}
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := strings.Compare(a.Suffix, b.Suffix); c != 0 {
		return c
	}
	return strings.Compare(a.Extension, b.Extension)
}

// Less reports whether l sorts before other.
func (l LogFile) Less(other LogFile) bool {
	return Compare(l, other) < 0
}

// Sort sorts files in ascending key order, oldest first within a stream.
func Sort(files []LogFile) {
	sort.SliceStable(files, sortby.Chain{
		func(i, j int) bool { return files[i].Prefix < files[j].Prefix },
		func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) },
		func(i, j int) bool { return files[i].Suffix < files[j].Suffix },
		func(i, j int) bool { return files[i].Extension < files[j].Extension },
	}.Use)
}

// ParseAll parses every filename, silently dropping the ones that don't parse.
func ParseAll(filenames []string) []LogFile {
	files := make([]LogFile, 0, len(filenames))
	for _, fn := range filenames {
		if lf, ok := Parse(fn); ok {
			files = append(files, lf)
		}
	}
	return files
}

// Group parses filenames and groups them by stream.
//
// Every group is sorted in ascending key order. Filenames that don't parse are
// excluded.
func Group(filenames []string) map[GroupKey][]LogFile {
	groups := map[GroupKey][]LogFile{}
	for _, lf := range ParseAll(filenames) {
		k := lf.GroupKey()
		groups[k] = append(groups[k], lf)
	}
	for _, g := range groups {
		Sort(g)
	}
	return groups
}

// SortedGroupKeys returns the keys of groups in ascending order.
func SortedGroupKeys(groups map[GroupKey][]LogFile) []GroupKey {
	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, sortby.Chain{
		func(i, j int) bool { return keys[i].Prefix < keys[j].Prefix },
		func(i, j int) bool { return keys[i].Suffix < keys[j].Suffix },
		func(i, j int) bool { return keys[i].Extension < keys[j].Extension },
	}.Use)
	return keys
}
