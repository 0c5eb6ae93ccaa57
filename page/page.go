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

// Package page reads page documents.
//
// A page document names a page, gives its initial root data, and
// declares named action chains:
//
//	name: SignIn
//	doc: The sign-in page.
//	root:
//	  formData:
//	    password: ""
//	chains:
//	  submit:
//	    doc: Check the password and go home.
//	    trigger: [onClick]
//	    actions:
//	      - actionType: evalObject
//	        object:
//	          code: "return {goto: 'Home'}"
//	      - Home
//
// A chain's actions are whatever core.NewActionChain accepts.
package page

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/deref"
	"github.com/Comcast/noodl/store"

	"github.com/jsccast/yaml"
)

// ErrNoName occurs when a page document doesn't have a name.
var ErrNoName = errors.New("page has no name")

// UnknownChain occurs when a Page doesn't have the requested chain.
type UnknownChain struct {
	Page  string
	Chain string
}

func (e *UnknownChain) Error() string {
	return fmt.Sprintf("page %s has no chain %s", e.Page, e.Chain)
}

// BadAction reports an action in a page document that can't be
// normalized.
type BadAction struct {
	Page  string
	Chain string
	Index int
	Thing interface{}
}

func (e *BadAction) Error() string {
	return fmt.Sprintf("page %s chain %s action %d: not an action: %#v",
		e.Page, e.Chain, e.Index, e.Thing)
}

// Chain is the declaration of an action chain.
type Chain struct {
	// Doc is Markdown.
	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Trigger is the list of triggers for the chain's emit
	// actions.
	Trigger []string `json:"trigger,omitempty" yaml:",omitempty"`

	// Actions is the raw action list.
	Actions []interface{} `json:"actions" yaml:"actions"`
}

// Page is a parsed page document.
type Page struct {
	Name string `json:"name" yaml:"name"`

	// Doc is Markdown.
	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Root is the page's initial root data.
	Root map[string]interface{} `json:"root,omitempty" yaml:",omitempty"`

	Chains map[string]*Chain `json:"chains,omitempty" yaml:",omitempty"`
}

// Parse reads a YAML (or JSON) page document.
func Parse(src []byte) (*Page, error) {
	var p Page
	if err := yaml.Unmarshal(src, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, ErrNoName
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseFile reads a page document from a file.
//
// '%inline("NAME")' in the file is replaced by the contents of the
// file NAME in the same directory.
func ParseFile(filename string) (*Page, error) {
	src, err := ReadFileWithInlines(filename)
	if err != nil {
		return nil, err
	}
	p, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p, nil
}

// Validate checks that every action in every chain can be
// normalized.  Nil chains are an error, too.
func (p *Page) Validate() error {
	for _, name := range p.ChainNames() {
		c := p.Chains[name]
		if c == nil {
			return &UnknownChain{Page: p.Name, Chain: name}
		}
		for i, x := range c.Actions {
			if _, ok := core.Normalize(x); !ok {
				return &BadAction{
					Page:  p.Name,
					Chain: name,
					Index: i,
					Thing: x,
				}
			}
		}
	}
	return nil
}

// ChainNames returns the names of the chains in order.
func (p *Page) ChainNames() []string {
	acc := make([]string, 0, len(p.Chains))
	for name := range p.Chains {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}

// Init puts the page's initial root data in the given Root (unless
// the Root already has data for this page).
func (p *Page) Init(root *store.Root) {
	if p.Root == nil {
		return
	}
	root.Init(p.Name, p.Root)
}

// Options returns core.Options for chains on this page.
//
// The given Options (which can be nil) are copied.  PageName always
// returns this page's name.  When root isn't nil, Root and
// PageObject read from it.  Deref defaults to deref.Resolve.
func (p *Page) Options(root *store.Root, opts *core.Options) *core.Options {
	var o core.Options
	if opts != nil {
		o = *opts
	}
	name := p.Name
	o.PageName = func() string {
		return name
	}
	if root != nil {
		o.Root = root.Data
		o.PageObject = func(page string) map[string]interface{} {
			m, _ := root.Get(page).(map[string]interface{})
			return m
		}
	}
	if o.Deref == nil {
		o.Deref = deref.Resolve
	}
	return &o
}

// Chain makes an ActionChain for the named chain.
//
// The chain's declared Trigger is used unless the Options already
// have one.  See Options.
func (p *Page) Chain(name string, root *store.Root, opts *core.Options) (*core.ActionChain, error) {
	c, have := p.Chains[name]
	if !have || c == nil {
		return nil, &UnknownChain{Page: p.Name, Chain: name}
	}
	o := p.Options(root, opts)
	if len(o.Trigger) == 0 {
		o.Trigger = append([]string(nil), c.Trigger...)
	}
	if o.Logger != nil {
		o.Logger = o.Logger.Named(p.Name + "." + name)
	}
	return core.NewActionChain(c.Actions, o), nil
}
