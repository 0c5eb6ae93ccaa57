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

package core

// A handler can return an Outcome instead of a plain value in order
// to say what the chain should do next.
//
// Plain values still work.  A map with an "actionType" property is
// treated like Inject (unless Options.NoActionSniffing), a map with a
// "wait" property is treated like Wait, and the string "abort" is
// treated like Abort.

// Outcome is one of Continue, Inject, Abort, or Wait.
type Outcome interface {
	outcome()
}

// Continue just carries a value.
type Continue struct {
	Value interface{}
}

// Inject asks the chain to run the given action object next.
type Inject struct {
	Object interface{}
}

// Abort asks the chain to abort.
type Abort struct {
	Reason string
}

// Wait asks the chain to stop here, without error, until something
// external (a popUp confirmation, for example) starts things again.
type Wait struct {
	Value interface{}
}

func (Continue) outcome() {}
func (Inject) outcome()   {}
func (Abort) outcome()    {}
func (Wait) outcome()     {}

// LegacyAbort is the string a handler can return to abort the chain.
const LegacyAbort = "abort"

// classify turns a handler's return value into an Outcome.
func classify(x interface{}, sniff bool) Outcome {
	switch vv := x.(type) {
	case Outcome:
		return vv
	case *Continue:
		return *vv
	case *Inject:
		return *vv
	case *Abort:
		return *vv
	case *Wait:
		return *vv
	case string:
		if vv == LegacyAbort {
			return Abort{Reason: LegacyAbort}
		}
	case ActionObject:
		if sniff && IsActionLike(vv) {
			return Inject{Object: vv}
		}
	case map[string]interface{}:
		if sniff && IsActionLike(vv) {
			return Inject{Object: vv}
		}
	}
	return Continue{Value: x}
}

// hasWait reports whether the given result is a map with a "wait"
// property.
func hasWait(x interface{}) bool {
	switch vv := x.(type) {
	case Wait, *Wait:
		return true
	case ActionObject:
		_, have := vv["wait"]
		return have
	case map[string]interface{}:
		_, have := vv["wait"]
		return have
	case []interface{}:
		for _, y := range vv {
			if hasWait(y) {
				return true
			}
		}
	}
	return false
}

// value unwraps an Outcome into the value that should be recorded as
// the result.
func value(o Outcome) interface{} {
	switch vv := o.(type) {
	case Continue:
		return vv.Value
	case Inject:
		return vv.Object
	case Abort:
		return LegacyAbort
	case Wait:
		if vv.Value == nil {
			return map[string]interface{}{"wait": true}
		}
		return vv.Value
	}
	return nil
}
