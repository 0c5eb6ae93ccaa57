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

// Final is what a scheduler reports when it's done.
type Final struct {
	Done  bool        `json:"done"`
	Value interface{} `json:"value,omitempty"`
}

// scheduler is the working queue of a chain.
//
// The chain takes the head (next), runs it, and reports the result
// (resume) before taking the next one.  Intermediary actions go on
// the front (unshift).  Once finished, a scheduler stays finished.
//
// A scheduler has no lock of its own.  The chain's lock protects it.
type scheduler struct {
	queue   []*Action
	results []interface{}
	done    bool
	final   interface{}
}

func newScheduler(actions []*Action) *scheduler {
	return &scheduler{
		queue:   append([]*Action(nil), actions...),
		results: make([]interface{}, 0, len(actions)),
	}
}

// next shifts the head of the queue.  Returns false when there's
// nothing left, in which case the scheduler is finished.
func (s *scheduler) next() (*Action, bool) {
	if s.done {
		return nil, false
	}
	if len(s.queue) == 0 {
		s.finish(nil)
		return nil, false
	}
	a := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return a, true
}

// resume records the result of the action most recently returned by
// next.
func (s *scheduler) resume(x interface{}) {
	s.results = append(s.results, x)
}

func (s *scheduler) unshift(a *Action) {
	s.queue = append([]*Action{a}, s.queue...)
}

// drain empties the queue and returns what was in it.
func (s *scheduler) drain() []*Action {
	acc := s.queue
	s.queue = nil
	return acc
}

// finish forces the scheduler into its done state.  The first value
// given sticks.
func (s *scheduler) finish(v interface{}) *Final {
	if !s.done {
		s.done = true
		s.final = v
	}
	return &Final{
		Done:  true,
		Value: s.final,
	}
}

func (s *scheduler) pending() []*Action {
	return append([]*Action(nil), s.queue...)
}

func (s *scheduler) recorded() []interface{} {
	return append([]interface{}(nil), s.results...)
}
