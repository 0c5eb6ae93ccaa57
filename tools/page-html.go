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
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/Comcast/noodl/page"
	. "github.com/Comcast/noodl/util/testutil"

	md "github.com/russross/blackfriday/v2"
)

func RenderPageHTML(p *page.Page, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="pageDoc doc">%s</div>`, md.Run([]byte(p.Doc)))

	if p.Root != nil {
		f(`<div class="root"><pre>%s</pre></div>`, html.EscapeString(JS(p.Root)))
	}

	names, chains := pageSteps(p)

	var action func(s *step)
	action = func(s *step) {
		f(`<tr class="action"><td><div class="actionNum">%d</div></td><td>`, s.Index)
		f(`<div class="actionType">%s</div>`, html.EscapeString(summary(s.Object)))
		f(`<div class="code"><pre>%s</pre></div>`, html.EscapeString(JS(s.Object)))
		if 0 < len(s.Children) {
			f(`<table class="emitActions">`)
			for _, child := range s.Children {
				action(child)
			}
			f(`</table>`)
		}
		f(`</td></tr>`)
	}

	f(`<div class="chains"><table>`)
	for _, name := range names {
		c := p.Chains[name]
		f(`<tr class="chain"><td><span id="%s" class="chainName">%s</span></td><td>`, name, name)
		if c.Doc != "" {
			f(`<div class="chainDoc doc">%s</div>`, md.Run([]byte(c.Doc)))
		}
		for _, trigger := range c.Trigger {
			f(`<span class="trigger">%s</span>`, html.EscapeString(trigger))
		}
		f(`<table class="actions">`)
		for _, s := range chains[name] {
			action(s)
		}
		f(`</table>`)
		f(`</td></tr>`)
	}
	f(`</table></div>`)

	return nil
}

func RenderPage(p *page.Page, out io.Writer, cssFiles []string, includeGraph bool) error {

	if cssFiles == nil {
		cssFiles = []string{"/static/page-html.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, html.EscapeString(p.Name))

	if includeGraph {
		fmt.Fprintf(out, `
  <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
  <script>mermaid.initialize({startOnLoad:true});</script>
`)
	}

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, html.EscapeString(p.Name))

	if includeGraph {
		var buf closingBuffer
		if err := Mermaid(p, &buf, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "<div class=\"mermaid\">\n%s</div>\n", buf.String())
	}

	if err := RenderPageHTML(p, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

func ReadAndRenderPage(filename string, cssFiles []string, out io.Writer, includeGraph bool) error {
	p, err := page.ParseFile(filename)
	if err != nil {
		return err
	}
	return RenderPage(p, out, cssFiles, includeGraph)
}

type closingBuffer struct {
	bytes.Buffer
}

func (b *closingBuffer) Close() error {
	return nil
}
