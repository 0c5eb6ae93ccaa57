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

package tools

import (
	"fmt"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/page"
)

// PageAnalysis is a summary of a page's chains along with problems
// that would cause actions to be dropped at runtime.
type PageAnalysis struct {
	page *page.Page

	Errors []string

	Chains  int
	Actions int
	Emits   int

	// ActionTypes are all the action types used.
	ActionTypes []string

	// Unhandled are action types with no registered handler.
	// Only computed when a Registry is given.
	Unhandled []string

	// FuncNames are the builtIn function names used.
	FuncNames []string

	// Destinations are the pages that goto and pageJump actions
	// target.
	Destinations []string

	// Triggers are the declared chain triggers.
	Triggers []string

	// EmptyChains have no actions.
	EmptyChains []string
}

// Analyze inspects a page.  The Registry can be nil.
func Analyze(p *page.Page, reg *core.Registry) (*PageAnalysis, error) {
	a := PageAnalysis{
		page:   p,
		Chains: len(p.Chains),
		Errors: make([]string, 0, 8),
	}

	types, funcs := make(map[string]bool), make(map[string]bool)
	dests, triggers, empty := make(map[string]bool), make(map[string]bool), make(map[string]bool)

	var walk func(chain string, actions []interface{})
	walk = func(chain string, actions []interface{}) {
		for i, x := range actions {
			obj, ok := core.Normalize(x)
			if !ok {
				a.Errors = append(a.Errors, fmt.Sprintf("%s: action %d isn't an action", chain, i))
				continue
			}
			a.Actions++
			t := obj.Type()
			types[t] = true
			switch t {
			case core.Emit:
				a.Emits++
				if m, is := obj[core.Emit].(map[string]interface{}); is {
					if xs, is := m["actions"].([]interface{}); is {
						walk(chain, xs)
					}
				}
			case core.BuiltIn:
				fn := obj.FuncName()
				if fn == "" {
					a.Errors = append(a.Errors, fmt.Sprintf("%s: action %d is a builtIn without a funcName", chain, i))
				} else {
					funcs[fn] = true
				}
			}
			if dest := destination(obj); dest != "" {
				dests[dest] = true
			}
		}
	}

	for _, name := range p.ChainNames() {
		c := p.Chains[name]
		if c == nil || len(c.Actions) == 0 {
			empty[name] = true
			continue
		}
		for _, t := range c.Trigger {
			triggers[t] = true
		}
		walk(name, c.Actions)
	}

	a.ActionTypes = sortedKeys(types)
	a.FuncNames = sortedKeys(funcs)
	a.Destinations = sortedKeys(dests)
	a.Triggers = sortedKeys(triggers)
	a.EmptyChains = sortedKeys(empty)

	if reg != nil {
		unhandled := make(map[string]bool)
		for _, t := range a.ActionTypes {
			switch t {
			case core.Anonymous:
				// Anonymous actions usually carry their own fn.
				continue
			case core.BuiltIn:
				continue
			case core.Emit:
				if len(reg.Emits(a.Triggers...)) == 0 {
					unhandled[t] = true
				}
				continue
			}
			if len(reg.Actions(t)) == 0 {
				unhandled[t] = true
			}
		}
		for _, fn := range a.FuncNames {
			if len(reg.BuiltIns(fn)) == 0 {
				unhandled[core.BuiltIn+" "+fn] = true
			}
		}
		a.Unhandled = sortedKeys(unhandled)
	}

	return &a, nil
}
