/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package deref resolves NOODL references against root data.
//
// Reference forms:
//
//    .Page.a.b    path from the root
//    ..a.b        path from the current page (the RootKey)
//    =.Page.a     evaluate: same as the path without the '='
//    .Page.a@     assignment target: same path, marks a place to write
//
// A reference that doesn't lead anywhere resolves to nil.
package deref

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Comcast/noodl/core"
)

// IsReference reports whether the string is a reference.
func IsReference(s string) bool {
	s = strings.TrimPrefix(s, "=")
	return strings.HasPrefix(s, ".") && 1 < len(s)
}

// IsAssignment reports whether the reference is an assignment target.
func IsAssignment(s string) bool {
	return IsReference(s) && strings.HasSuffix(s, "@")
}

// Path turns a reference into a dotted path from the root.
func Path(ref, rootKey string) (string, bool) {
	if !IsReference(ref) {
		return "", false
	}
	s := strings.TrimPrefix(ref, "=")
	s = strings.TrimSuffix(s, "@")
	if strings.HasPrefix(s, "..") {
		if rootKey == "" {
			return "", false
		}
		return rootKey + "." + s[2:], true
	}
	return s[1:], true
}

// Resolve is a core.DerefFunc.
func Resolve(args core.DerefArgs) interface{} {
	path, ok := Path(args.Ref, args.RootKey)
	if !ok || args.Root == nil {
		return nil
	}
	return core.Lookup(args.Root, path)
}

var _ core.DerefFunc = Resolve

var ErrBadPath = errors.New("bad path")

// Set puts the value at the dotted path, making maps along the way.
//
// Slices are indexed by number but are never extended.
func Set(root map[string]interface{}, path string, v interface{}) error {
	if root == nil || path == "" {
		return ErrBadPath
	}
	ps := strings.Split(path, ".")
	var x interface{} = root
	for i, p := range ps {
		last := i == len(ps)-1
		switch vv := x.(type) {
		case map[string]interface{}:
			if last {
				vv[p] = v
				return nil
			}
			next, have := vv[p]
			if !have || next == nil {
				next = make(map[string]interface{})
				vv[p] = next
			}
			x = next
		case []interface{}:
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || len(vv) <= n {
				return ErrBadPath
			}
			if last {
				vv[n] = v
				return nil
			}
			x = vv[n]
		default:
			return ErrBadPath
		}
	}
	return nil
}
