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

package remote

import (
	"fmt"
	"sort"
	"strings"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"

	"go.chromium.org/logjam/logfile"
)

// MandatoryFields must all appear in an upload URI template.
//
// Listing a remote directory is the expensive part of an upload pass, so
// objects are always partitioned by stream and day.
var MandatoryFields = stringset.NewFromSlice("prefix", "year", "month", "day", "filename")

// OptionalFields may appear in an upload URI template.
var OptionalFields = stringset.NewFromSlice("hour", "minute")

// Template is a parsed upload URI template, such as
//
//	s3://my-log-bucket/{prefix}/{year}/{month}/{day}/{filename}
//
// "{{" and "}}" stand for literal braces.
type Template struct {
	raw string
	// parts alternates literal text (even indices) and field names (odd).
	parts []string
}

// ParseTemplate parses and validates an upload URI template.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{raw: s}
	used := stringset.New(len(MandatoryFields))

	var lit strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, errors.Reason("unbalanced '{' at offset %d in upload URI %q", i, s).Err()
			}
			name := s[i+1 : i+1+end]
			if !MandatoryFields.Has(name) && !OptionalFields.Has(name) {
				return nil, errors.Reason("unknown field {%s} in upload URI %q", name, s).Err()
			}
			used.Add(name)
			t.parts = append(t.parts, lit.String(), name)
			lit.Reset()
			i += end + 1
		case c == '}':
			return nil, errors.Reason("unbalanced '}' at offset %d in upload URI %q", i, s).Err()
		default:
			lit.WriteByte(c)
		}
	}
	t.parts = append(t.parts, lit.String())

	if missing := MandatoryFields.Difference(used); missing.Len() > 0 {
		return nil, errors.Reason("upload URI lacks mandatory fields: %s",
			strings.Join(missing.ToSortedSlice(), ", ")).Err()
	}
	if t.Scheme() == "" {
		return nil, errors.Reason("upload URI %q has no scheme", s).Err()
	}
	return t, nil
}

// Expand returns the URI of the remote object for lf.
func (t *Template) Expand(lf logfile.LogFile) string {
	ts := lf.Timestamp.UTC()
	var sb strings.Builder
	for i, p := range t.parts {
		if i%2 == 0 {
			sb.WriteString(p)
			continue
		}
		switch p {
		case "prefix":
			sb.WriteString(lf.Prefix)
		case "year":
			fmt.Fprintf(&sb, "%04d", ts.Year())
		case "month":
			fmt.Fprintf(&sb, "%02d", ts.Month())
		case "day":
			fmt.Fprintf(&sb, "%02d", ts.Day())
		case "hour":
			fmt.Fprintf(&sb, "%02d", ts.Hour())
		case "minute":
			fmt.Fprintf(&sb, "%02d", ts.Minute())
		case "filename":
			sb.WriteString(lf.Filename)
		}
	}
	return sb.String()
}

// Scheme returns the URI scheme of the template, e.g. "s3".
func (t *Template) Scheme() string {
	return SchemeOf(t.raw)
}

// SchemeOf returns the lowercased scheme of uri, or "" if it has none.
func SchemeOf(uri string) string {
	scheme, _, found := strings.Cut(uri, "://")
	if !found || strings.ContainsAny(scheme, "{}/") {
		return ""
	}
	return strings.ToLower(scheme)
}

func (t *Template) String() string {
	return t.raw
}

// ParentDir returns uri up to and including its last slash.
func ParentDir(uri string) string {
	return uri[:strings.LastIndexByte(uri, '/')+1]
}

// ParentDirs returns the distinct parent directories of uris, sorted.
func ParentDirs(uris []string) []string {
	dirs := stringset.New(0)
	for _, uri := range uris {
		dirs.Add(ParentDir(uri))
	}
	out := dirs.ToSlice()
	sort.Strings(out)
	return out
}

// SplitURI splits "scheme://bucket/object/path" into its components.
//
// The object is empty for bucket URIs such as "s3://bucket" or "s3://bucket/".
func SplitURI(uri string) (scheme, bucket, object string, err error) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found || scheme == "" {
		return "", "", "", errors.Reason("%q is not a URI", uri).Err()
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", "", errors.Reason("URI %q has no bucket", uri).Err()
	}
	return strings.ToLower(scheme), bucket, object, nil
}
