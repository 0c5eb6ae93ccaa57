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
	"strings"
)

// Factory makes Actions for a chain.
//
// Each Action's callback is a fan-out over the handlers that apply to
// it: the handlers for its actionType, for its funcName (builtIn
// actions), or for the chain's triggers (emit actions).
type Factory struct {
	chain *ActionChain
}

// boundHandler is a registration that applies to a specific action
// object, with the bindings from its pattern.
type boundHandler struct {
	reg      *Registration
	bindings map[string]interface{}
}

// Create makes an Action for the given normalized action object.
//
// Returns an UnknownActionType or MissingHandler error when nothing
// can handle the object.
//
// Requires the chain's lock.
func (f *Factory) Create(obj ActionObject) (*Action, error) {
	c := f.chain
	t := obj.Type()

	var regs []*Registration
	switch t {
	case "":
		return nil, &UnknownActionType{ActionType: t}
	case Anonymous:
		if fn := anonymousFn(obj["fn"]); fn != nil {
			regs = []*Registration{{ActionType: Anonymous, Name: "fn", Fn: fn}}
		} else {
			regs = c.fns.action[Anonymous]
		}
	case Emit:
		regs = c.fns.emitFor(c.triggers)
	case BuiltIn:
		regs = c.fns.builtIn[obj.FuncName()]
		if len(regs) == 0 {
			return nil, &MissingHandler{ActionType: t, FuncName: obj.FuncName()}
		}
	default:
		regs = c.fns.action[t]
		if len(regs) == 0 && !knownActionType(t) {
			return nil, &UnknownActionType{ActionType: t}
		}
	}

	hs := applicable(regs, obj)
	if len(hs) == 0 {
		return nil, &MissingHandler{ActionType: t, FuncName: obj.FuncName()}
	}

	var a *Action
	if t == Emit {
		var trigger string
		if 0 < len(c.triggers) {
			trigger = c.triggers[0]
		}
		e := NewEmitAction(obj, nil, trigger)
		if e.IteratorVar == "" {
			e.IteratorVar = c.opts.IteratorVar
		}
		e.dataKey = f.resolveDataKey(e.RawDataKey(), e.IteratorVar)
		a = e.Action
	} else {
		a = NewAction(obj, nil)
	}

	a.Callback = f.fanOut(hs)
	if d, ok := millis(obj["timeout"]); ok && 0 < d {
		a.TimeoutDelay = d
	} else if 0 < c.opts.TimeoutDelay {
		a.TimeoutDelay = c.opts.TimeoutDelay
	}

	return a, nil
}

func knownActionType(t string) bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

func anonymousFn(x interface{}) HandlerFunc {
	switch vv := x.(type) {
	case HandlerFunc:
		return vv
	case func(context.Context, *Action, *ConsumerOptions) (interface{}, error):
		return vv
	}
	return nil
}

// applicable filters registrations by their patterns.
func applicable(regs []*Registration, obj ActionObject) []boundHandler {
	acc := make([]boundHandler, 0, len(regs))
	for _, reg := range regs {
		if bs, ok := reg.matches(obj); ok {
			acc = append(acc, boundHandler{reg, bs})
		}
	}
	return acc
}

// fanOut makes the callback that calls each handler in turn.
//
// Every handler gets fresh ConsumerOptions.  After each handler, an
// Inject outcome puts an intermediary action on the front of the
// chain's queue, and an Abort outcome aborts the chain.  Both apply
// only to the run that called the callback.  The loop stops early if
// the chain is aborted or if ctx is done (the Action timed out or
// was given up on).
//
// With exactly one handler, the callback returns that handler's
// value.  Otherwise it returns a slice of all the values.
func (f *Factory) fanOut(hs []boundHandler) HandlerFunc {
	return func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		c := f.chain
		var (
			event interface{}
			run   uint64
		)
		if opts != nil {
			event = opts.Event
			run = opts.Run
		}
		sniff := !c.opts.NoActionSniffing

		results := make([]interface{}, 0, len(hs))
		for _, h := range hs {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if c.IsAborted() {
				break
			}
			hopts := c.consumerOptions(event, h.bindings)
			hopts.Run = run
			x, err := h.reg.Fn(ctx, a, hopts)
			if err != nil {
				return nil, err
			}
			if ctx.Err() != nil {
				c.logger.Debug("discarding late handler result", fieldAction(a))
				return nil, ctx.Err()
			}
			o := classify(x, sniff)
			switch vv := o.(type) {
			case Inject:
				if _, err := c.insert(run, vv.Object); err != nil {
					c.logger.Warn("dropping intermediary action",
						fieldAction(a), errField(err))
				}
			case Abort:
				c.abortRun(run, vv.Reason)
			case Wait:
				c.abortRun(run, waitReason(a))
			}
			if _, is := o.(Continue); is {
				results = append(results, x)
			} else {
				results = append(results, value(o))
			}
		}

		if len(hs) == 1 {
			if len(results) == 0 {
				return nil, nil
			}
			return results[0], nil
		}
		return results, nil
	}
}

// resolveDataKey resolves a raw emit.dataKey.
//
// A string equal to the iterator variable is the list item in scope,
// and "iteratorVar.path" is a path into that list item.  Other
// strings go through the chain's Deref function (if any).  A map
// gets the same treatment for each of its string values.
//
// Requires the chain's lock.
func (f *Factory) resolveDataKey(raw interface{}, iteratorVar string) interface{} {
	switch vv := raw.(type) {
	case string:
		return f.resolveKey(vv, iteratorVar)
	case map[string]interface{}:
		acc := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			if s, is := v.(string); is {
				acc[k] = f.resolveKey(s, iteratorVar)
			} else {
				acc[k] = v
			}
		}
		return acc
	}
	return raw
}

func (f *Factory) resolveKey(key string, iteratorVar string) interface{} {
	opts := f.chain.opts
	if iteratorVar != "" {
		if key == iteratorVar {
			return opts.ListItem
		}
		if strings.HasPrefix(key, iteratorVar+".") {
			return Lookup(opts.ListItem, key[len(iteratorVar)+1:])
		}
	}
	if opts.Deref == nil {
		return key
	}
	args := DerefArgs{
		Ref:         key,
		IteratorVar: iteratorVar,
	}
	if opts.Root != nil {
		args.Root = opts.Root()
	}
	if opts.PageName != nil {
		args.RootKey = opts.PageName()
	}
	if v := opts.Deref(args); v != nil {
		return v
	}
	return key
}
