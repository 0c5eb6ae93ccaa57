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

package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/noodl/page"
	"github.com/Comcast/noodl/util"

	"go.uber.org/zap"
)

type MermaidOpts struct {
	// ShowObjects will result in a node label that includes the
	// JSON representation of the action object.
	ShowObjects bool `json:"showObjects"`

	// ActionFill is the fill color of for action nodes.  Does not
	// apply if ActionClass is set.
	ActionFill string `json:"actionFill,omitempty"`

	// EmitFill is the fill color for emit actions.
	EmitFill string `json:"emitFill,omitempty"`

	// ActionClass will be the CSS class for action nodes.
	ActionClass string `json:"actionClass,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the page's chains.
//
// Each chain is a subgraph.  Nested emit actions hang off their emit
// action with dotted edges, and goto and pageJump actions point at
// page nodes.
func Mermaid(p *page.Page, w io.WriteCloser, opts *MermaidOpts) error {
	if opts == nil {
		opts = &MermaidOpts{
			ActionFill: "#bcf2db",
			EmitFill:   "#f9e79f",
		}
	}

	logger := util.Logger().Named("mermaid")
	names, chains := pageSteps(p)
	logger.Debug("processing chains", zap.String("page", p.Name), zap.Int("chains", len(names)))

	fmt.Fprintf(w, "graph TB\n")

	pages := make(map[string]bool)

	var node func(s *step) error
	node = func(s *step) error {
		label := summary(s.Object)
		if opts.ShowObjects {
			js, err := json.Marshal(s.Object)
			if err != nil {
				return err
			}
			label += "<br/><pre>" + strings.Replace(string(js), `"`, `'`, -1) + "</pre>"
		}
		fmt.Fprintf(w, "  %s[\"%s\"]\n", s.ID, label)
		switch {
		case opts.ActionClass != "":
			fmt.Fprintf(w, "  class %s %s\n", s.ID, opts.ActionClass)
		case s.Object.Type() == "emit" && opts.EmitFill != "":
			fmt.Fprintf(w, "  style %s fill:%s\n", s.ID, opts.EmitFill)
		case opts.ActionFill != "":
			fmt.Fprintf(w, "  style %s fill:%s\n", s.ID, opts.ActionFill)
		}
		if dest := destination(s.Object); dest != "" {
			pages[dest] = true
			fmt.Fprintf(w, "  %s --> %s\n", s.ID, pageID(dest))
		}
		for i, child := range s.Children {
			if err := node(child); err != nil {
				return err
			}
			if i == 0 {
				fmt.Fprintf(w, "  %s -.-> %s\n", s.ID, child.ID)
			} else {
				fmt.Fprintf(w, "  %s --> %s\n", s.Children[i-1].ID, child.ID)
			}
		}
		return nil
	}

	for _, name := range names {
		ss := chains[name]
		fmt.Fprintf(w, "  subgraph %s\n", name)
		for i, s := range ss {
			if err := node(s); err != nil {
				logger.Warn("process error", zap.String("chain", name), zap.Error(err))
				return err
			}
			if 0 < i {
				fmt.Fprintf(w, "  %s --> %s\n", ss[i-1].ID, s.ID)
			}
		}
		fmt.Fprintf(w, "  end\n")
	}

	for _, dest := range sortedKeys(pages) {
		fmt.Fprintf(w, "  %s((\"%s\"))\n", pageID(dest), dest)
	}

	fmt.Fprintf(w, "\n")
	logger.Debug("mermaid gen done")

	return w.Close()
}

func pageID(name string) string {
	return "page_" + ident(name)
}

func ident(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			return r
		}
		return '_'
	}, name)
}
