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

package logfile

// Set is a set of LogFiles keyed by LogFile.Key.
//
// The zero value is not usable; use NewSet.
type Set map[Key]LogFile

// NewSet returns a Set holding files.
func NewSet(files ...LogFile) Set {
	s := make(Set, len(files))
	for _, lf := range files {
		s.Add(lf)
	}
	return s
}

// Add adds lf to the set, returning true if it was not there before.
func (s Set) Add(lf LogFile) bool {
	k := lf.Key()
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = lf
	return true
}

// Has reports whether lf is in the set.
func (s Set) Has(lf LogFile) bool {
	_, ok := s[lf.Key()]
	return ok
}

// Del removes lf from the set, returning true if it was there.
func (s Set) Del(lf LogFile) bool {
	k := lf.Key()
	if _, ok := s[k]; !ok {
		return false
	}
	delete(s, k)
	return true
}

// Len returns the number of files in the set.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the members of the set in ascending key order.
func (s Set) Sorted() []LogFile {
	files := make([]LogFile, 0, len(s))
	for _, lf := range s {
		files = append(files, lf)
	}
	Sort(files)
	return files
}

// Filenames returns the file names of the members, in ascending key order.
func (s Set) Filenames() []string {
	sorted := s.Sorted()
	names := make([]string, len(sorted))
	for i, lf := range sorted {
		names[i] = lf.Filename
	}
	return names
}
