/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Canonicalize turns x into what encoding/json would give back for
// it: plain maps, slices, strings, float64s, bools, and nils.  Handler
// results from interpreters go through here before anyone sniffs
// them.
func Canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var canonical interface{}
	err = json.Unmarshal(js, &canonical)
	return canonical, err
}

// Timestamp is the UTC time in RFC3339Nano for trace messages.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Lookup follows a dotted path ("a.b.0.c") through maps and slices.
//
// Returns nil if the path doesn't lead anywhere.
func Lookup(x interface{}, path string) interface{} {
	if path == "" {
		return x
	}
	for _, p := range strings.Split(path, ".") {
		switch vv := x.(type) {
		case map[string]interface{}:
			x = vv[p]
		case ActionObject:
			x = vv[p]
		case []interface{}:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || len(vv) <= i {
				return nil
			}
			x = vv[i]
		default:
			return nil
		}
	}
	return x
}

// millis interprets a number of milliseconds (as JSON or YAML might
// give it) as a Duration.
func millis(x interface{}) (time.Duration, bool) {
	switch vv := x.(type) {
	case int:
		return time.Duration(vv) * time.Millisecond, true
	case int64:
		return time.Duration(vv) * time.Millisecond, true
	case float64:
		return time.Duration(vv * float64(time.Millisecond)), true
	case string:
		if d, err := time.ParseDuration(vv); err == nil {
			return d, true
		}
	}
	return 0, false
}
