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

// Package testutil has a few helpers for tests (and for tools that
// print action objects).
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/Comcast/noodl/util"

	"go.uber.org/zap"
)

// JS renders x as JSON.  If that fails, the result is Go syntax
// (and a warning is logged).
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		util.Logger().Warn("can't render JSON", zap.Error(err), zap.String("x", fmt.Sprintf("%#v", x)))
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Dwimjs parses a string or bytes as JSON and panics if it can't.
// Anything else is returned as is.
func Dwimjs(x interface{}) interface{} {
	var src []byte
	switch vv := x.(type) {
	case []byte:
		src = vv
	case string:
		src = []byte(vv)
	default:
		return x
	}
	var v interface{}
	if err := json.Unmarshal(src, &v); err != nil {
		panic(fmt.Errorf("Dwimjs %q: %w", src, err))
	}
	return v
}

// Actions parses a JSON array of action objects.
func Actions(js string) []interface{} {
	xs, is := Dwimjs(js).([]interface{})
	if !is {
		panic(fmt.Errorf("Actions %q: not an array", js))
	}
	return xs
}
