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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newEmit() *EmitAction {
	return NewEmitAction(ActionObject{
		"actionType": Emit,
		Emit: map[string]interface{}{
			"dataKey": "var1",
			"actions": []interface{}{"Dashboard"},
		},
	}, nil, "onClick")
}

func TestEmitFields(t *testing.T) {
	e := newEmit()
	assert.Equal(t, "var1", e.DataKey())
	assert.Equal(t, "var1", e.RawDataKey())
	assert.Equal(t, "onClick", e.Trigger)
	assert.Len(t, e.Actions, 1)
	assert.Equal(t, e, e.Action.EmitAction())
}

func TestSetDataKeyMergeThenNull(t *testing.T) {
	e := newEmit()
	e.SetDataKey(map[string]interface{}{"a": 1})
	e.SetDataKey(map[string]interface{}{"b": 2})
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, e.DataKey())
	e.SetDataKey(nil)
	assert.Nil(t, e.DataKey())
}

func TestSetDataKeyKeepsIdentity(t *testing.T) {
	e := newEmit()
	e.SetDataKey("a", 1)
	m := e.DataKey().(map[string]interface{})
	e.SetDataKey("b", 2)
	e.SetDataKey(map[string]interface{}{"c": 3})
	assert.Equal(t, 3, len(m))
	assert.Equal(t, 2, m["b"])
}

func TestSetDataKeyReplacesScalar(t *testing.T) {
	e := newEmit()
	e.SetDataKey(map[string]interface{}{"a": 1})
	assert.Equal(t, map[string]interface{}{"a": 1}, e.DataKey())
}

func TestClearDataKey(t *testing.T) {
	e := newEmit()
	e.SetDataKey(map[string]interface{}{"a": 1, "b": 2})
	e.ClearDataKey("a")
	assert.Equal(t, map[string]interface{}{"b": 2}, e.DataKey())
	e.ClearDataKey()
	assert.Nil(t, e.DataKey())

	// Not a map: no-op.
	e.SetDataKey("x", 1)
	e.SetDataKey(nil)
	e.ClearDataKey("x")
	assert.Nil(t, e.DataKey())
}
