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

// Package match implements a small pattern matcher for action
// objects.
//
// A pattern is a JSON-like value.  A string starting with '?' is a
// variable: it matches anything, and the match binds the variable to
// what it matched.  A variable that's already bound only matches its
// binding.  The variable "?" matches anything and binds nothing.
//
// A map pattern matches a map that has (at least) the pattern's
// properties with matching values.  An array pattern matches an array
// that contains, for each pattern element, a distinct matching
// element.  Since an array pattern can match in more than one way,
// Match returns a set of Bindings.
package match

import (
	"fmt"
	"reflect"
	"strings"
)

// Bindings is a map from variables (strings starting with a '?') to
// their values.
type Bindings map[string]interface{}

func NewBindings() Bindings {
	return make(Bindings, 8)
}

// Extend adds the property; modifies and returns the Bindings.
func (bs Bindings) Extend(p string, v interface{}) Bindings {
	bs[p] = v
	return bs
}

// Remove removes the given keys.
func (bs Bindings) Remove(ps ...string) Bindings {
	for _, p := range ps {
		delete(bs, p)
	}
	return bs
}

// Copy makes a shallow copy of the Bindings.
func (bs Bindings) Copy() Bindings {
	acc := make(Bindings, len(bs))
	for k, v := range bs {
		acc[k] = v
	}
	return acc
}

// IsVariable reports if the string represents a pattern variable.
func IsVariable(s string) bool {
	return strings.HasPrefix(s, "?")
}

// IsAnonymousVariable detects the variable '?', which never gets a
// binding.
func IsAnonymousVariable(s string) bool {
	return s == "?"
}

// UnknownPatternType occurs when a pattern contains something that
// isn't JSON-like.
type UnknownPatternType struct {
	Pattern interface{}
}

func (e *UnknownPatternType) Error() string {
	return fmt.Sprintf("unknown pattern type %T", e.Pattern)
}

// Match attempts to match the pattern against the fact given the
// initial bindings (which aren't modified).
//
// Returns zero or more extended Bindings.  Zero Bindings means no
// match.
func Match(pattern interface{}, fact interface{}, bs Bindings) ([]Bindings, error) {
	if bs == nil {
		bs = NewBindings()
	}
	return match(pattern, fact, bs.Copy())
}

// Matches is Match with empty initial bindings.
func Matches(pattern interface{}, fact interface{}) ([]Bindings, error) {
	return Match(pattern, fact, nil)
}

func match(pattern interface{}, fact interface{}, bs Bindings) ([]Bindings, error) {
	switch p := pattern.(type) {
	case string:
		if !IsVariable(p) {
			if s, is := fact.(string); is && s == p {
				return []Bindings{bs}, nil
			}
			return nil, nil
		}
		if IsAnonymousVariable(p) {
			return []Bindings{bs}, nil
		}
		if bound, have := bs[p]; have {
			if equal(bound, fact) {
				return []Bindings{bs}, nil
			}
			return nil, nil
		}
		return []Bindings{bs.Copy().Extend(p, fact)}, nil

	case map[string]interface{}:
		return matchMap(p, fact, bs)

	case []interface{}:
		xs, is := fact.([]interface{})
		if !is {
			return nil, nil
		}
		return matchArray(p, xs, make([]bool, len(xs)), bs)

	case nil, bool, float64, float32, int, int64:
		if equal(p, fact) {
			return []Bindings{bs}, nil
		}
		return nil, nil
	}

	// Things like map[string]string or ActionObjects.
	v := reflect.ValueOf(pattern)
	if v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String {
		m := make(map[string]interface{}, v.Len())
		for _, k := range v.MapKeys() {
			m[k.String()] = v.MapIndex(k).Interface()
		}
		return matchMap(m, fact, bs)
	}

	return nil, &UnknownPatternType{pattern}
}

func asMap(x interface{}) (map[string]interface{}, bool) {
	if m, is := x.(map[string]interface{}); is {
		return m, true
	}
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]interface{}, v.Len())
	for _, k := range v.MapKeys() {
		m[k.String()] = v.MapIndex(k).Interface()
	}
	return m, true
}

func matchMap(pattern map[string]interface{}, fact interface{}, bs Bindings) ([]Bindings, error) {
	m, is := asMap(fact)
	if !is {
		return nil, nil
	}
	bss := []Bindings{bs}
	for k, pv := range pattern {
		fv, have := m[k]
		if !have {
			return nil, nil
		}
		var acc []Bindings
		for _, bs := range bss {
			more, err := match(pv, fv, bs)
			if err != nil {
				return nil, err
			}
			acc = append(acc, more...)
		}
		if len(acc) == 0 {
			return nil, nil
		}
		bss = acc
	}
	return bss, nil
}

// matchArray matches each pattern element against a distinct unused
// fact element.
func matchArray(pattern []interface{}, facts []interface{}, used []bool, bs Bindings) ([]Bindings, error) {
	if len(pattern) == 0 {
		return []Bindings{bs}, nil
	}
	var acc []Bindings
	for i, fact := range facts {
		if used[i] {
			continue
		}
		bss, err := match(pattern[0], fact, bs)
		if err != nil {
			return nil, err
		}
		if len(bss) == 0 {
			continue
		}
		used[i] = true
		for _, b := range bss {
			more, err := matchArray(pattern[1:], facts, used, b)
			if err != nil {
				return nil, err
			}
			acc = append(acc, more...)
		}
		used[i] = false
	}
	return acc, nil
}

// number converts Go numbers to float64.
func number(x interface{}) (float64, bool) {
	switch vv := x.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case int32:
		return float64(vv), true
	}
	return 0, false
}

func equal(x, y interface{}) bool {
	if a, is := number(x); is {
		if b, is := number(y); is {
			return a == b
		}
		return false
	}
	return reflect.DeepEqual(x, y)
}
