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
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/page"
	"github.com/Comcast/noodl/util"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Dot makes a Graphviz dot file for the given page.  A really ugly
// dot file.
//
// The optional highlight is the name of a chain to draw in red.
func Dot(p *page.Page, w io.WriteCloser, highlight string) error {
	logger := util.Logger().Named("dot")
	names, chains := pageSteps(p)
	logger.Debug("processing chains", zap.String("page", p.Name), zap.Int("chains", len(names)))

	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	pages := make(map[string]bool)

	var node func(s *step, color string) error
	node = func(s *step, color string) error {
		label := summary(s.Object)

		obj := s.Object.Copy()
		delete(obj, "actionType")
		if 0 < len(obj) {
			bs, err := yaml.Marshal(map[string]interface{}(obj))
			if err != nil {
				return err
			}
			src := escapeHTML(string(bs))
			label += `<FONT POINT-SIZE="6">` +
				`<BR/>` + strings.Replace(src, "\n", `<BR ALIGN="LEFT"/>`, -1) +
				`</FONT>`
		}

		shape := "note"
		fillcolor := "#99ddc8"
		switch s.Object.Type() {
		case core.Emit:
			fillcolor = "#2d93ad"
		case core.EvalObject, core.Anonymous, core.BuiltIn:
			fillcolor = "#52aa5e"
		}
		fmt.Fprintf(w, "  %s [shape=\"%s\", color=\"%s\", fillcolor=\"%s\", label=<%s> ]\n",
			s.ID, shape, color, fillcolor, label)

		if dest := destination(s.Object); dest != "" {
			pages[dest] = true
			fmt.Fprintf(w, "  %s -> %s [ color=\"%s\" ]\n", s.ID, pageID(dest), color)
		}

		for i, child := range s.Children {
			if err := node(child, color); err != nil {
				return err
			}
			from, style := s.ID, "dashed"
			if 0 < i {
				from, style = s.Children[i-1].ID, "solid"
			}
			fmt.Fprintf(w, "  %s -> %s [ color=\"%s\" style=\"%s\" ]\n", from, child.ID, color, style)
		}
		return nil
	}

	for _, name := range names {
		color := "black"
		if name == highlight {
			color = "red"
		}
		fmt.Fprintf(w, "  subgraph cluster_%s {\n  label=\"%s\"\n", ident(name), escape(name))
		ss := chains[name]
		for i, s := range ss {
			if err := node(s, color); err != nil {
				logger.Warn("process error", zap.String("chain", name), zap.Error(err))
				return err
			}
			if 0 < i {
				fmt.Fprintf(w, "  %s -> %s [ color=\"%s\" label=\"%d\" ]\n",
					ss[i-1].ID, s.ID, color, i)
			}
		}
		fmt.Fprintf(w, "  }\n")
	}

	for _, dest := range sortedKeys(pages) {
		fmt.Fprintf(w, "  %s [shape=\"doublecircle\", label=\"%s\"]\n", pageID(dest), escape(dest))
	}

	fmt.Fprintf(w, "}\n")
	return w.Close()
}

// PNG generates a PNG image based on output from Dot.
//
// This function with write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(p *page.Page, basename string, highlight string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(p, dotfile, highlight); err != nil {
		return pngname, err
	}
	cmd := "dot -Tpng " + dotname + " > " + pngname
	if err := exec.Command("bash", "-c", cmd).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func escape(s string) string {
	return strings.Replace(s, `"`, `\"`, -1)
}

func escapeHTML(s string) string {
	s = strings.Replace(s, "&", `&amp;`, -1)
	s = strings.Replace(s, "<", `&lt;`, -1)
	s = strings.Replace(s, ">", `&gt;`, -1)
	return s
}
