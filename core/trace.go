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
	"sync"
)

var (
	// TracesInitialCap is the initial capacity for Traces buffers.
	TracesInitialCap = 16

	// TracesLimit caps the number of trace messages kept for one
	// run.  Zero means no limit.
	TracesLimit = 1024
)

// Traces holds trace messages for a chain run.
type Traces struct {
	sync.Mutex `json:"-" yaml:"-"`

	Messages []interface{} `json:"messages,omitempty" yaml:",omitempty"`

	// Dropped counts messages that didn't fit under TracesLimit.
	Dropped int `json:"dropped,omitempty" yaml:",omitempty"`
}

// NewTraces creates an initialized Traces.
func NewTraces() *Traces {
	return &Traces{
		Messages: make([]interface{}, 0, TracesInitialCap),
	}
}

func (ts *Traces) Add(xs ...interface{}) {
	if ts == nil {
		return
	}
	ts.Lock()
	defer ts.Unlock()
	for _, x := range xs {
		if 0 < TracesLimit && TracesLimit <= len(ts.Messages) {
			ts.Dropped++
			continue
		}
		ts.Messages = append(ts.Messages, x)
	}
}

// Copy makes a shallow copy.
func (ts *Traces) Copy() *Traces {
	if ts == nil {
		return nil
	}
	ts.Lock()
	defer ts.Unlock()
	return &Traces{
		Messages: append([]interface{}(nil), ts.Messages...),
		Dropped:  ts.Dropped,
	}
}
