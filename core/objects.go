/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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
	"context"
)

// Action types that the engine knows by name.
//
// Any other actionType is fine as long as somebody registered a
// handler for it.
const (
	Anonymous    = "anonymous"
	BuiltIn      = "builtIn"
	Emit         = "emit"
	EvalObject   = "evalObject"
	Goto         = "goto"
	PageJump     = "pageJump"
	PopUp        = "popUp"
	PopUpDismiss = "popUpDismiss"
	Refresh      = "refresh"
	SaveObject   = "saveObject"
	UpdateObject = "updateObject"
	Toast        = "toast"
)

// ActionTypes lists the actionTypes above.
var ActionTypes = []string{
	Anonymous,
	BuiltIn,
	Emit,
	EvalObject,
	Goto,
	PageJump,
	PopUp,
	PopUpDismiss,
	Refresh,
	SaveObject,
	UpdateObject,
	Toast,
}

// discriminators are keys that imply an actionType when an object
// doesn't have one.  Order matters: first match wins.
var discriminators = []string{Emit, Goto, Toast}

// ActionObject is the raw, serializable instruction
// (e.g. {"actionType":"goto","destination":"SignIn"}).
type ActionObject map[string]interface{}

// Type returns the actionType (if any).
func (o ActionObject) Type() string {
	s, _ := o["actionType"].(string)
	return s
}

// FuncName returns the funcName (for builtIn actions).
func (o ActionObject) FuncName() string {
	s, _ := o["funcName"].(string)
	return s
}

// Copy makes a shallow copy.
func (o ActionObject) Copy() ActionObject {
	if o == nil {
		return nil
	}
	acc := make(ActionObject, len(o))
	for k, v := range o {
		acc[k] = v
	}
	return acc
}

// Draft is something from an immutable-update layer that has a plain
// current form.  Drafts are unwrapped when a chain is made.
type Draft interface {
	Current() map[string]interface{}
}

// IsActionLike reports whether the given thing looks like an action
// object: a map with an actionType property or a goto property.
func IsActionLike(x interface{}) bool {
	var m map[string]interface{}
	switch vv := x.(type) {
	case ActionObject:
		m = vv
	case map[string]interface{}:
		m = vv
	default:
		return false
	}
	if _, have := m["actionType"]; have {
		return true
	}
	_, have := m[Goto]
	return have
}

// Normalize turns a thing from an action list into an ActionObject
// with a non-empty actionType.
//
// Functions become anonymous actions, strings become goto actions,
// Drafts are unwrapped, and maps without an actionType get one based
// on their discriminator key (if any).
func Normalize(x interface{}) (ActionObject, bool) {
	switch vv := x.(type) {
	case nil:
		return nil, false
	case HandlerFunc:
		return ActionObject{"actionType": Anonymous, "fn": vv}, true
	case func(context.Context, *Action, *ConsumerOptions) (interface{}, error):
		return ActionObject{"actionType": Anonymous, "fn": HandlerFunc(vv)}, true
	case string:
		if vv == "" {
			return nil, false
		}
		return ActionObject{"actionType": Goto, Goto: vv}, true
	case Draft:
		return Normalize(vv.Current())
	case Inject:
		return Normalize(vv.Object)
	case ActionObject:
		return normalizeMap(vv)
	case map[string]interface{}:
		return normalizeMap(ActionObject(vv))
	case map[interface{}]interface{}:
		// Some YAML parsers make these.
		m := make(ActionObject, len(vv))
		for k, v := range vv {
			s, is := k.(string)
			if !is {
				return nil, false
			}
			m[s] = v
		}
		return normalizeMap(m)
	}
	return nil, false
}

func normalizeMap(o ActionObject) (ActionObject, bool) {
	if o == nil {
		return nil, false
	}
	o = o.Copy()
	if o.Type() != "" {
		return o, true
	}
	for _, d := range discriminators {
		if _, have := o[d]; have {
			o["actionType"] = d
			return o, true
		}
	}
	return nil, false
}
