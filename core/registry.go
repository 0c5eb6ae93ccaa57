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
	"errors"
	"sort"
	"sync"

	"github.com/Comcast/noodl/match"
)

// HandlerFunc is a registered callback for an action type, a builtIn
// function, or an emit trigger.
//
// The returned value can be a plain value or an Outcome.
type HandlerFunc func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error)

// Registration says when a HandlerFunc applies.
//
// Exactly one of ActionType and FuncName should be given.  A
// Registration with a FuncName is for "builtIn" actions.  A
// Registration with ActionType "emit" applies to emit actions whose
// chain has the given Trigger (or to all emit actions if Trigger is
// empty).
type Registration struct {
	ActionType string `json:"actionType,omitempty" yaml:",omitempty"`
	FuncName   string `json:"funcName,omitempty" yaml:",omitempty"`
	Trigger    string `json:"trigger,omitempty" yaml:",omitempty"`

	// Pattern is an optional pattern that the action object must
	// match (see package match) for the handler to apply.  The
	// resulting bindings are given to the handler in
	// ConsumerOptions.Bindings.
	Pattern interface{} `json:"pattern,omitempty" yaml:",omitempty"`

	// Name is just for diagnostics.
	Name string `json:"name,omitempty" yaml:",omitempty"`

	Fn HandlerFunc `json:"-" yaml:"-"`
}

// ErrNoHandlerFunc occurs when a Registration has no Fn.
var ErrNoHandlerFunc = errors.New("registration has no handler function")

// matches checks the Registration's Pattern (if any) against the
// action object.
//
// A nil pattern matches everything (with nil bindings).
func (r *Registration) matches(obj ActionObject) (map[string]interface{}, bool) {
	if r.Pattern == nil {
		return nil, true
	}
	fact := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if k == "fn" {
			continue
		}
		fact[k] = v
	}
	bss, err := match.Match(r.Pattern, fact, match.NewBindings())
	if err != nil || len(bss) == 0 {
		return nil, false
	}
	return map[string]interface{}(bss[0]), true
}

// handlerTables holds registrations by discriminator.
type handlerTables struct {
	action  map[string][]*Registration
	builtIn map[string][]*Registration
	emit    map[string][]*Registration
}

func newHandlerTables() *handlerTables {
	return &handlerTables{
		action:  make(map[string][]*Registration),
		builtIn: make(map[string][]*Registration),
		emit:    make(map[string][]*Registration),
	}
}

func (t *handlerTables) add(r *Registration) {
	switch {
	case r.FuncName != "":
		t.builtIn[r.FuncName] = append(t.builtIn[r.FuncName], r)
	case r.ActionType == Emit:
		t.emit[r.Trigger] = append(t.emit[r.Trigger], r)
	default:
		t.action[r.ActionType] = append(t.action[r.ActionType], r)
	}
}

func copyRegs(m map[string][]*Registration) map[string][]*Registration {
	acc := make(map[string][]*Registration, len(m))
	for k, rs := range m {
		acc[k] = append([]*Registration(nil), rs...)
	}
	return acc
}

func (t *handlerTables) copy() *handlerTables {
	return &handlerTables{
		action:  copyRegs(t.action),
		builtIn: copyRegs(t.builtIn),
		emit:    copyRegs(t.emit),
	}
}

// emitFor returns the emit registrations that apply to any of the
// given triggers, in trigger order, followed by the ones registered
// without a trigger.
func (t *handlerTables) emitFor(triggers []string) []*Registration {
	var acc []*Registration
	seen := make(map[string]bool, len(triggers))
	for _, tr := range triggers {
		if tr == "" || seen[tr] {
			continue
		}
		seen[tr] = true
		acc = append(acc, t.emit[tr]...)
	}
	return append(acc, t.emit[""]...)
}

// Registry is the table of handlers that chains consult when they
// are made.
//
// An application fills a Registry at startup and then gives it to
// every ActionChain via Options.Registry.  Many chains can read a
// Registry at the same time.  Registration is append-only:
// registering the same function twice means it runs twice.
type Registry struct {
	sync.RWMutex
	tables *handlerTables
}

// NewRegistry makes an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tables: newHandlerTables(),
	}
}

// Register adds the given registrations.
func (r *Registry) Register(regs ...*Registration) error {
	r.Lock()
	defer r.Unlock()
	for _, reg := range regs {
		if reg == nil {
			continue
		}
		if reg.Fn == nil {
			return ErrNoHandlerFunc
		}
		r.tables.add(reg)
	}
	return nil
}

// Handle registers a handler for an action type.
func (r *Registry) Handle(actionType string, fn HandlerFunc) *Registry {
	r.Register(&Registration{ActionType: actionType, Fn: fn})
	return r
}

// HandleBuiltIn registers a handler for a builtIn function name.
func (r *Registry) HandleBuiltIn(funcName string, fn HandlerFunc) *Registry {
	r.Register(&Registration{ActionType: BuiltIn, FuncName: funcName, Fn: fn})
	return r
}

// HandleEmit registers a handler for emit actions with the given
// trigger.  An empty trigger means any trigger.
func (r *Registry) HandleEmit(trigger string, fn HandlerFunc) *Registry {
	r.Register(&Registration{ActionType: Emit, Trigger: trigger, Fn: fn})
	return r
}

// Actions returns the registrations for the given action type.
func (r *Registry) Actions(actionType string) []*Registration {
	r.RLock()
	defer r.RUnlock()
	return append([]*Registration(nil), r.tables.action[actionType]...)
}

// BuiltIns returns the registrations for the given function name.
func (r *Registry) BuiltIns(funcName string) []*Registration {
	r.RLock()
	defer r.RUnlock()
	return append([]*Registration(nil), r.tables.builtIn[funcName]...)
}

// Emits returns the emit registrations that apply to the given
// triggers.
func (r *Registry) Emits(triggers ...string) []*Registration {
	r.RLock()
	defer r.RUnlock()
	return r.tables.emitFor(triggers)
}

// ActionTypes returns the sorted action types that have handlers.
func (r *Registry) ActionTypes() []string {
	r.RLock()
	defer r.RUnlock()
	acc := make([]string, 0, len(r.tables.action)+1)
	for t := range r.tables.action {
		acc = append(acc, t)
	}
	if 0 < len(r.tables.emit) {
		acc = append(acc, Emit)
	}
	sort.Strings(acc)
	return acc
}

// FuncNames returns the sorted builtIn function names.
func (r *Registry) FuncNames() []string {
	r.RLock()
	defer r.RUnlock()
	acc := make([]string, 0, len(r.tables.builtIn))
	for name := range r.tables.builtIn {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}

// snapshot copies the tables for a new chain.
func (r *Registry) snapshot() *handlerTables {
	if r == nil {
		return newHandlerTables()
	}
	r.RLock()
	defer r.RUnlock()
	return r.tables.copy()
}
