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

// Package tools renders and analyzes pages: Mermaid and Graphviz
// diagrams of action chains, an HTML report, and some static checks.
package tools

import (
	"fmt"
	"sort"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/page"
)

// step is a normalized action in a chain with the steps for its
// nested emit actions (if any).
type step struct {
	ID       string
	Chain    string
	Index    int
	Object   core.ActionObject
	Children []*step
}

// steps normalizes an action list.  Things that don't normalize are
// skipped.
func steps(chain, prefix string, actions []interface{}) []*step {
	acc := make([]*step, 0, len(actions))
	for i, x := range actions {
		obj, ok := core.Normalize(x)
		if !ok {
			continue
		}
		s := &step{
			ID:     fmt.Sprintf("%s_%d", prefix, i),
			Chain:  chain,
			Index:  i,
			Object: printable(obj),
		}
		if m, is := obj[core.Emit].(map[string]interface{}); is {
			if xs, is := m["actions"].([]interface{}); is {
				s.Children = steps(chain, s.ID, xs)
			}
		}
		acc = append(acc, s)
	}
	return acc
}

// pageSteps returns the steps for each chain in order.
func pageSteps(p *page.Page) ([]string, map[string][]*step) {
	names := p.ChainNames()
	acc := make(map[string][]*step, len(names))
	for i, name := range names {
		acc[name] = steps(name, fmt.Sprintf("c%d", i), p.Chains[name].Actions)
	}
	return names, acc
}

// printable removes things (like anonymous functions) that can't be
// serialized.
func printable(obj core.ActionObject) core.ActionObject {
	acc := obj.Copy()
	if _, have := acc["fn"]; have {
		acc["fn"] = "<function>"
	}
	return acc
}

// destination returns the target page (if any) of goto and pageJump
// actions.
func destination(obj core.ActionObject) string {
	switch obj.Type() {
	case core.Goto:
		switch vv := obj[core.Goto].(type) {
		case string:
			return vv
		case map[string]interface{}:
			s, _ := vv["destination"].(string)
			return s
		}
	case core.PageJump:
		s, _ := obj["destination"].(string)
		return s
	}
	return ""
}

// summary is a short label for an action.
func summary(obj core.ActionObject) string {
	t := obj.Type()
	switch t {
	case core.BuiltIn:
		return t + " " + obj.FuncName()
	case core.Goto, core.PageJump:
		return t + " " + destination(obj)
	case core.PopUp, core.PopUpDismiss:
		if s, is := obj["popUpView"].(string); is {
			return t + " " + s
		}
	}
	return t
}

func sortedKeys(m map[string]bool) []string {
	acc := make([]string, 0, len(m))
	for k := range m {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}
