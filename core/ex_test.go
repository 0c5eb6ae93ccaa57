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
	"context"
	"sync"
)

// SignInActions returns an example action list that's useful to have
// around: evaluate the form, save it, and then go to the dashboard.
func SignInActions() []interface{} {
	return []interface{}{
		map[string]interface{}{
			"actionType": EvalObject,
			"object": map[string]interface{}{
				"SignIn.formData.submitted": true,
			},
		},
		map[string]interface{}{
			"actionType": SaveObject,
			"object":     ".SignIn.formData",
		},
		map[string]interface{}{
			"goto": "Dashboard",
		},
	}
}

// Recorder collects the actions that its handlers see.
type Recorder struct {
	sync.Mutex
	Seen []ActionObject
}

// Handler returns a HandlerFunc that records the action and returns
// the given value.
func (r *Recorder) Handler(x interface{}) HandlerFunc {
	return func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		r.Lock()
		r.Seen = append(r.Seen, a.Original())
		r.Unlock()
		return x, nil
	}
}

// Types returns the actionTypes seen so far.
func (r *Recorder) Types() []string {
	r.Lock()
	defer r.Unlock()
	acc := make([]string, 0, len(r.Seen))
	for _, obj := range r.Seen {
		acc = append(acc, obj.Type())
	}
	return acc
}

// RecordingRegistry makes a Registry with a recording handler
// (returning nil) for each of the given action types.
func RecordingRegistry(r *Recorder, actionTypes ...string) *Registry {
	reg := NewRegistry()
	for _, t := range actionTypes {
		reg.Handle(t, r.Handler(nil))
	}
	return reg
}
