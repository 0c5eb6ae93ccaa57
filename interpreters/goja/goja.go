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

// Package goja provides handlers that run JavaScript (via Goja, a Go
// implementation of ECMAScript 5.1+) for evalObject, anonymous, and
// builtIn actions.
//
// See https://github.com/dop251/goja.
package goja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/match"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)
)

// LibraryProvider resolves a library name into source.
type LibraryProvider func(ctx context.Context, i *Interpreter, libraryName string) (string, error)

// Interpreter compiles and runs JavaScript for action handlers.
type Interpreter struct {

	// Testing is used to expose or hide some runtime
	// capabilities.
	Testing bool

	// LibraryProvider, if not nil, is used instead of
	// DefaultLibraryProvider.
	LibraryProvider LibraryProvider

	// BuiltIns maps builtIn funcNames to sources.  See Register.
	BuiltIns map[string]interface{}

	Logger *zap.Logger

	cache sync.Map
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		BuiltIns: make(map[string]interface{}),
		Logger:   zap.NewNop(),
	}
}

// ProvideLibrary resolves the library name into a library.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, i, name)
	}
	return DefaultLibraryProvider(ctx, i, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider makes a LibraryProvider that supports
// (barely) names that are URLs with protocols of "file", "http", and
// "https".  File names are relative to the given directory.
//
// The HTTP client keeps cookies (per registrable domain) across
// fetches.
func MakeFileLibraryProvider(dir string) LibraryProvider {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		panic(err)
	}
	client := &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
	}

	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if 2 != len(parts) {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			filename := filepath.Clean(parts[1])
			if filepath.IsAbs(filename) || strings.HasPrefix(filename, "..") {
				return "", fmt.Errorf("library '%s' is outside %s", name, dir)
			}
			bs, err := os.ReadFile(filepath.Join(dir, filename))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return "", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("library fetch status %s %d",
					resp.Status, resp.StatusCode)
			}
			bs, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(bs), nil
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

func MakeMapLibraryProvider(srcs map[string]string) LibraryProvider {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// parseSource looks into the given map to try to find "requires" and
// "code" properties.
func parseSource(vv map[string]interface{}) (code string, libs []string, err error) {
	s, is := vv["code"].(string)
	if !is {
		err = errors.New("bad Goja action code")
		return
	}
	code = s

	switch vv := vv["requires"].(type) {
	case string:
		libs = []string{vv}
	case []string:
		libs = vv
	case []interface{}:
		libs = make([]string, 0, len(vv))
		for _, x := range vv {
			s, is := x.(string)
			if !is {
				err = errors.New("bad library")
				return
			}
			libs = append(libs, s)
		}
	}

	return
}

// AsSource accepts a string (just code) or a map with "code" and
// optional "requires" (library names).
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := src.(type) {
	case string:
		code = vv
		return
	case map[interface{}]interface{}:
		m := make(map[string]interface{})
		for k, v := range vv {
			str, ok := k.(string)
			if !ok {
				err = fmt.Errorf("bad src key (%T)", k)
				return
			}
			m[str] = v
		}
		return parseSource(m)
	case map[string]interface{}:
		return parseSource(vv)
	case core.ActionObject:
		return parseSource(vv)
	default:
		err = fmt.Errorf("bad Goja source (%T)", src)
		return
	}
}

// Compile compiles the source along with any required libraries.
//
// This method can block if the interpreter's library provider blocks
// in order to obtain external libraries.  Compiled programs are
// cached.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (*goja.Program, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	key := strings.Join(libs, "\n") + "\n" + code
	if p, have := i.cache.Load(key); have {
		return p.(*goja.Program), nil
	}

	var libsSrc string
	for _, lib := range libs {
		libSrc, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		libsSrc += libSrc + "\n"
	}

	full := libsSrc + wrapSrc(code)

	p, err := goja.Compile("", full, true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + full)
	}
	i.cache.Store(key, p)

	return p, nil
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func export(x interface{}) interface{} {
	if v, is := x.(goja.Value); is {
		return v.Export()
	}
	return x
}

// Env is what the JavaScript sees as "_" (plus the utilities that
// Exec adds).
type Env map[string]interface{}

// Exec runs the program with the given environment.
//
// The following properties are available from the runtime at _ (in
// addition to what's in the given Env):
//
//    gensym(): generate a unique id.
//    esc(s): URL query-escape the given string.
//    cronNext(expr): the next time for the cron expression.
//    match(pat, obj[, bindings]): Execute the pattern matcher.
//    log(x): log the given thing.
//
// For testing only (when Testing is set):
//
//    sleep(ms): sleep for the given number of milliseconds.
//
// The result is canonicalized (see core.Canonicalize).
func (i *Interpreter) Exec(ctx context.Context, env Env, p *goja.Program) (interface{}, error) {
	if env == nil {
		env = make(Env)
	}
	env["ctx"] = ctx

	o := goja.New()

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	env["gensym"] = func() interface{} {
		return uuid.NewString()
	}

	env["cronNext"] = func(x interface{}) interface{} {
		cronExpr, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}

		c, err := cronexpr.Parse(cronExpr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	env["esc"] = func(x interface{}) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	}

	env["log"] = func(x interface{}) interface{} {
		x = export(x)
		js, err := json.Marshal(&x)
		if err != nil {
			i.logger().Warn("goja.log", zap.Error(err))
		} else {
			i.logger().Info("goja.log", zap.String("js", string(js)))
		}
		return x
	}

	env["match"] = func(pat, fact, bs goja.Value) interface{} {
		bindings := match.NewBindings()
		if bs != nil && !goja.IsUndefined(bs) && !goja.IsNull(bs) {
			x, err := core.Canonicalize(bs.Export())
			if err != nil {
				panic(err)
			}
			m, is := x.(map[string]interface{})
			if !is {
				protest(o, "bad bindings")
			}
			bindings = match.Bindings(m)
		}

		p, err := core.Canonicalize(pat.Export())
		if err != nil {
			panic(err)
		}
		f, err := core.Canonicalize(fact.Export())
		if err != nil {
			panic(err)
		}

		bss, err := match.Match(p, f, bindings)
		if err != nil {
			protest(o, err.Error())
		}

		x, err := core.Canonicalize(bss)
		if err != nil {
			panic(err)
		}
		return x
	}

	o.Set("_", map[string]interface{}(env))

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If Exec calls cancel() after RunProgram returns,
		// this interrupt is harmless.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}

	return core.Canonicalize(v.Export())
}

func (i *Interpreter) logger() *zap.Logger {
	if i.Logger == nil {
		return zap.NewNop()
	}
	return i.Logger
}

// env makes the Env for an action.
//
//    action: the action object (without any "fn")
//    event: the event that started the chain
//    bindings: bindings from the handler's pattern
//    root: the root data
//    page: the current page name
//    dataKey: an emit action's resolved dataKey
//    context: Options.ActionsContext
//    inject(obj): put the action object on the front of the queue
//    abort(reason): abort the chain after this handler
//    wait(): stop the chain after this handler
func (i *Interpreter) env(a *core.Action, opts *core.ConsumerOptions, outcome *core.Outcome) Env {
	orig := a.Original()
	delete(orig, "fn")
	env := Env{
		"action": map[string]interface{}(orig),
	}
	if e := a.EmitAction(); e != nil {
		env["dataKey"] = e.DataKey()
	}

	if opts != nil {
		env["event"] = opts.Event
		env["bindings"] = opts.Bindings
		if opts.Options != nil {
			if opts.Root != nil {
				env["root"] = opts.Root()
			}
			if opts.PageName != nil {
				env["page"] = opts.PageName()
			}
			env["context"] = opts.ActionsContext
		}
		if opts.Ref != nil {
			env["inject"] = func(x goja.Value) interface{} {
				obj, err := core.Canonicalize(x.Export())
				if err != nil {
					panic(err)
				}
				if _, err := opts.Inject(obj); err != nil {
					panic(err)
				}
				return nil
			}
		}
	}

	env["abort"] = func(reason goja.Value) interface{} {
		var s string
		if reason != nil && !goja.IsUndefined(reason) {
			s = reason.String()
		}
		*outcome = core.Abort{Reason: s}
		return nil
	}
	env["wait"] = func() interface{} {
		*outcome = core.Wait{}
		return nil
	}

	return env
}

// Run compiles (if needed) and runs the given source for the action.
func (i *Interpreter) Run(ctx context.Context, src interface{}, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
	p, err := i.Compile(ctx, src)
	if err != nil {
		return nil, err
	}

	var outcome core.Outcome
	x, err := i.Exec(ctx, i.env(a, opts, &outcome), p)
	if err != nil {
		return nil, err
	}

	switch vv := outcome.(type) {
	case core.Abort:
		return vv, nil
	case core.Wait:
		vv.Value = x
		return vv, nil
	}
	return x, nil
}

// Handler returns a HandlerFunc that runs the source at the given
// property of the action object.
func (i *Interpreter) Handler(property string) core.HandlerFunc {
	return func(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
		return i.Run(ctx, a.Get(property), a, opts)
	}
}

// Source returns a HandlerFunc that runs the given source.
func (i *Interpreter) Source(src interface{}) core.HandlerFunc {
	return func(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
		return i.Run(ctx, src, a, opts)
	}
}

// Registrations returns registrations for
//
//    evalObject actions with an object that has "code",
//    anonymous actions that have "code" (and no "fn"), and
//    builtIn actions for each of the BuiltIns.
func (i *Interpreter) Registrations() []*core.Registration {
	regs := []*core.Registration{
		{
			ActionType: core.EvalObject,
			Name:       "goja.evalObject",
			Pattern:    map[string]interface{}{"object": map[string]interface{}{"code": "?"}},
			Fn:         i.Handler("object"),
		},
		{
			ActionType: core.Anonymous,
			Name:       "goja.anonymous",
			Pattern:    map[string]interface{}{"code": "?"},
			Fn:         i.Handler("code"),
		},
	}

	names := make([]string, 0, len(i.BuiltIns))
	for name := range i.BuiltIns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		regs = append(regs, &core.Registration{
			ActionType: core.BuiltIn,
			FuncName:   name,
			Name:       "goja." + name,
			Fn:         i.Source(i.BuiltIns[name]),
		})
	}
	return regs
}

// Register adds the Registrations to the Registry.
func (i *Interpreter) Register(reg *core.Registry) error {
	return reg.Register(i.Registrations()...)
}
