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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/deref"
	"github.com/Comcast/noodl/interpreters"
	"github.com/Comcast/noodl/page"
	"github.com/Comcast/noodl/store"
	"github.com/Comcast/noodl/store/bolt"
	"github.com/Comcast/noodl/store/jsonfile"

	"go.uber.org/zap"
)

// env is what a command needs to run chains.
type env struct {
	Root     *store.Root
	Registry *core.Registry
	Options  core.Options

	closers []func(context.Context) error
}

// openStorage picks the Storage based on the path's suffix.  An
// empty path means no persistence.
func (a *app) openStorage(ctx context.Context, e *env) (store.Storage, error) {
	path := a.cfg.Store.Path
	switch {
	case path == "":
		return nil, nil
	case strings.HasSuffix(path, ".json"):
		a.logger.Info("json store", zap.String("path", path))
		return jsonfile.NewStorage(path), nil
	default:
		a.logger.Info("bolt store", zap.String("path", path))
		s := bolt.NewStorage(path)
		s.Timeout = a.cfg.Store.Timeout
		if err := s.Open(ctx); err != nil {
			return nil, fmt.Errorf("opening store %s: %w", path, err)
		}
		e.closers = append(e.closers, s.Close)
		return s, nil
	}
}

// newEnv opens the store and makes a Registry with the standard
// handlers.
func (a *app) newEnv(ctx context.Context) (*env, error) {
	e := &env{}

	storage, err := a.openStorage(ctx, e)
	if err != nil {
		return nil, err
	}
	e.Root = store.NewRoot(storage, a.logger.Named("store"))
	if err := e.Root.Load(ctx); err != nil {
		e.Close(ctx)
		return nil, err
	}

	e.Registry = core.NewRegistry()
	if _, err := interpreters.Standard(e.Registry, a.cfg.Chain.Libraries, a.logger); err != nil {
		e.Close(ctx)
		return nil, err
	}
	if err := e.Root.Register(e.Registry); err != nil {
		e.Close(ctx)
		return nil, err
	}

	e.Options = core.Options{
		Registry:         e.Registry,
		Logger:           a.logger,
		TimeoutDelay:     a.cfg.Chain.TimeoutDelay,
		ExecuteTimeout:   a.cfg.Chain.ExecuteTimeout,
		NoActionSniffing: a.cfg.Chain.NoActionSniffing,
		Deref:            deref.Resolve,
	}

	return e, nil
}

// Close closes the store (if any).
func (e *env) Close(ctx context.Context) error {
	var first error
	for _, f := range e.closers {
		if err := f(ctx); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

// isPageFile reports whether the filename looks like a page
// document.
func isPageFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// pageFiles expands directories into the page files they contain.
func pageFiles(args []string) ([]string, error) {
	var acc []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			acc = append(acc, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, entry := range entries {
			if entry.IsDir() || !isPageFile(entry.Name()) {
				continue
			}
			names = append(names, filepath.Join(arg, entry.Name()))
		}
		sort.Strings(names)
		acc = append(acc, names...)
	}
	return acc, nil
}

// readPages parses the page files (or directories of page files).
func readPages(args []string) ([]*page.Page, error) {
	filenames, err := pageFiles(args)
	if err != nil {
		return nil, err
	}
	acc := make([]*page.Page, 0, len(filenames))
	for _, filename := range filenames {
		p, err := page.ParseFile(filename)
		if err != nil {
			return nil, err
		}
		acc = append(acc, p)
	}
	return acc, nil
}
