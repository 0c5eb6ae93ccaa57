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

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/interpreters"
	"github.com/Comcast/noodl/page"
	"github.com/Comcast/noodl/store"
	"github.com/Comcast/noodl/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		format    string
		highlight string
		png       string
		css       []string
		graph     bool
		objects   bool
	)

	cmd := &cobra.Command{
		Use:   "render PAGEFILE",
		Short: "Render a page document as mermaid, dot, html, json, or an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := page.ParseFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a.logger.Debug("render", zap.String("page", p.Name), zap.String("format", format))

			switch format {
			case "mermaid":
				opts := &tools.MermaidOpts{
					ShowObjects: objects,
					ActionFill:  "#bcf2db",
					EmitFill:    "#f9e79f",
				}
				return tools.Mermaid(p, nopCloser{out}, opts)
			case "dot":
				if png != "" {
					filename, err := tools.PNG(p, png, highlight)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\n", filename)
					return nil
				}
				return tools.Dot(p, nopCloser{out}, highlight)
			case "html":
				return tools.RenderPage(p, out, css, graph)
			case "json":
				return writeJSON(out, p)
			case "analysis":
				reg := core.NewRegistry()
				if _, err := interpreters.Standard(reg, "", a.logger); err != nil {
					return err
				}
				if err := store.NewRoot(nil, a.logger).Register(reg); err != nil {
					return err
				}
				analysis, err := tools.Analyze(p, reg)
				if err != nil {
					return err
				}
				return writeJSON(out, analysis)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", "mermaid", "mermaid, dot, html, json, or analysis")
	fs.StringVar(&highlight, "highlight", "", "chain to highlight (dot)")
	fs.StringVar(&png, "png", "", "write BASENAME.dot and BASENAME.png (dot)")
	fs.StringSliceVar(&css, "css", nil, "CSS files to link (html)")
	fs.BoolVar(&graph, "graph", true, "include a mermaid graph (html)")
	fs.BoolVar(&objects, "objects", false, "show action objects (mermaid)")

	return cmd
}

func writeJSON(w io.Writer, x interface{}) error {
	js, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", js)
	return err
}
