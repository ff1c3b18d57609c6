// Copyright © 2021 Rak Laptudirm <raklaptudirm@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bencode

import (
	"reflect"
	"sort"
	"strings"
)

// field is what marshal/unmarshal need to know about one struct field:
// its position, its bencode dictionary key, and any tag options.
type field struct {
	index []int

	name      string
	options   string
	omitempty bool
}

// hasOption reports whether target is one of f's comma-separated tag
// options.
func (f *field) hasOption(target string) bool {
	rest := f.options
	for rest != "" {
		var opt string
		opt, rest, _ = strings.Cut(rest, ",")
		if opt == target {
			return true
		}
	}
	return false
}

// parseField reads sf's `bencode:"..."` tag and builds a field from it.
// ok is false if sf is tagged `bencode:"-"` and should be skipped
// entirely.
func parseField(sf reflect.StructField) (f field, ok bool) {
	tag := sf.Tag.Get("bencode")
	if tag == "-" {
		return field{}, false
	}

	name, options, _ := strings.Cut(tag, ",")
	if name == "" {
		name = sf.Name
	}

	f = field{index: sf.Index, name: name, options: options}
	f.omitempty = f.hasOption("omitempty")
	return f, true
}

// structFields is the parsed field set of one struct type, indexed both
// by declaration order (for marshaling) and by name (for unmarshaling's
// exact-match lookup).
type structFields struct {
	fields []field
	names  map[string]int
}

// sortByName reorders fields lexicographically by dictionary key, which
// is what makes marshalStruct's output canonical.
func (s *structFields) sortByName() {
	sort.Slice(s.fields, func(i, j int) bool {
		return s.fields[i].name < s.fields[j].name
	})
}

// structFieldsOf parses every taggable field of the struct value v.
func structFieldsOf(v reflect.Value) *structFields {
	if v.Kind() != reflect.Struct {
		panic("bencode: structFieldsOf called on non-struct value")
	}

	s := &structFields{names: make(map[string]int)}

	t := v.Type()
	for i, n := 0, t.NumField(); i < n; i++ {
		f, ok := parseField(t.Field(i))
		if !ok {
			continue
		}
		s.fields = append(s.fields, f)
		s.names[f.name] = i // struct field index, for v.Field(i)
	}

	return s
}
