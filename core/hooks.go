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

// Hooks are optional chain lifecycle callbacks.
//
// Hooks are called without the chain's lock held, so a hook can call
// the chain's methods.  A hook should not block.
type Hooks struct {
	OnStart        func(c *ActionChain, event interface{})
	OnActionStart  func(c *ActionChain, a *Action)
	OnActionEnd    func(c *ActionChain, a *Action, result interface{}, err error)
	OnIntermediary func(c *ActionChain, a *Action)
	OnDrop         func(c *ActionChain, obj ActionObject, err error)
	OnAbort        func(c *ActionChain, reasons []string)
	OnDone         func(c *ActionChain, r *Result)
}

func (h *Hooks) start(c *ActionChain, event interface{}) {
	if h != nil && h.OnStart != nil {
		h.OnStart(c, event)
	}
}

func (h *Hooks) actionStart(c *ActionChain, a *Action) {
	if h != nil && h.OnActionStart != nil {
		h.OnActionStart(c, a)
	}
}

func (h *Hooks) actionEnd(c *ActionChain, a *Action, x interface{}, err error) {
	if h != nil && h.OnActionEnd != nil {
		h.OnActionEnd(c, a, x, err)
	}
}

func (h *Hooks) intermediary(c *ActionChain, a *Action) {
	if h != nil && h.OnIntermediary != nil {
		h.OnIntermediary(c, a)
	}
}

func (h *Hooks) drop(c *ActionChain, obj ActionObject, err error) {
	if h != nil && h.OnDrop != nil {
		h.OnDrop(c, obj, err)
	}
}

func (h *Hooks) abort(c *ActionChain, reasons []string) {
	if h != nil && h.OnAbort != nil {
		h.OnAbort(c, reasons)
	}
}

func (h *Hooks) done(c *ActionChain, r *Result) {
	if h != nil && h.OnDone != nil {
		h.OnDone(c, r)
	}
}
