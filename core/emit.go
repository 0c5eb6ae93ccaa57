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

// EmitAction is an Action for an "emit" action object:
//
//    {"emit": {"dataKey": {"var1": "itemObject"}, "actions": [...]}}
//
// The dataKey is resolved (against the list item in scope or the
// root) when the EmitAction is made.
type EmitAction struct {
	*Action

	// Actions is the nested emit.actions list.
	Actions []interface{}

	// IteratorVar is the name of the loop variable in list
	// contexts.
	IteratorVar string

	// Trigger is the originating event (e.g. "onClick").
	Trigger string

	dataKey interface{}
}

// NewEmitAction makes an EmitAction for the given (normalized) emit
// action object.
func NewEmitAction(obj ActionObject, callback HandlerFunc, trigger string) *EmitAction {
	e := &EmitAction{
		Action:  NewAction(obj, callback),
		Trigger: trigger,
	}
	e.Action.emit = e

	if s, is := obj["iteratorVar"].(string); is {
		e.IteratorVar = s
	}

	if m, is := asMap(obj[Emit]); is {
		if xs, is := m["actions"].([]interface{}); is {
			e.Actions = xs
		}
		e.dataKey = copyIfMap(m["dataKey"])
	}

	return e
}

// RawDataKey returns emit.dataKey from the original action object.
func (e *EmitAction) RawDataKey() interface{} {
	if m, is := asMap(e.original[Emit]); is {
		return m["dataKey"]
	}
	return nil
}

// DataKey returns the current dataKey: nil, a scalar, or a
// map[string]interface{}.
func (e *EmitAction) DataKey() interface{} {
	e.Lock()
	defer e.Unlock()
	return e.dataKey
}

// SetDataKey has three forms:
//
//    SetDataKey(nil) clears the dataKey.
//
//    SetDataKey(map) merges the map into the current dataKey (or
//    replaces the current dataKey if it isn't a map).
//
//    SetDataKey(key, value) sets one property, making the dataKey a
//    map first if necessary.
func (e *EmitAction) SetDataKey(key interface{}, value ...interface{}) {
	e.Lock()
	defer e.Unlock()

	if key == nil {
		e.dataKey = nil
		return
	}

	if m, is := asMap(key); is {
		current, is := e.dataKey.(map[string]interface{})
		if !is {
			e.dataKey = copyIfMap(m)
			return
		}
		for k, v := range m {
			current[k] = v
		}
		return
	}

	if k, is := key.(string); is {
		current, is := e.dataKey.(map[string]interface{})
		if !is {
			current = make(map[string]interface{}, 4)
			e.dataKey = current
		}
		var v interface{}
		if 0 < len(value) {
			v = value[0]
		}
		current[k] = v
		return
	}

	e.dataKey = key
}

// ClearDataKey with no arguments sets the dataKey to nil.  Otherwise
// it deletes the given properties from the dataKey (if it's a map).
func (e *EmitAction) ClearDataKey(keys ...string) {
	e.Lock()
	defer e.Unlock()

	if len(keys) == 0 {
		e.dataKey = nil
		return
	}
	if current, is := e.dataKey.(map[string]interface{}); is {
		for _, k := range keys {
			delete(current, k)
		}
	}
}

func asMap(x interface{}) (map[string]interface{}, bool) {
	switch vv := x.(type) {
	case map[string]interface{}:
		return vv, true
	case ActionObject:
		return map[string]interface{}(vv), true
	}
	return nil, false
}

func copyIfMap(x interface{}) interface{} {
	m, is := asMap(x)
	if !is {
		return x
	}
	acc := make(map[string]interface{}, len(m))
	for k, v := range m {
		acc[k] = v
	}
	return acc
}
