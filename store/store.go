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

// Package store holds the root data that chains read and that the
// saveObject and updateObject handlers write.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/deref"

	"go.uber.org/zap"
)

// Storage persists root data one page at a time.
type Storage interface {
	Get(ctx context.Context, page string) (map[string]interface{}, error)
	Put(ctx context.Context, page string, data map[string]interface{}) error
	Remove(ctx context.Context, page string) error
	Pages(ctx context.Context) ([]string, error)
}

// Root is the root data: a map from page names (and global names)
// to objects.
type Root struct {
	sync.RWMutex

	data    map[string]interface{}
	storage Storage
	logger  *zap.Logger
}

// NewRoot makes an empty Root.  The storage can be nil.
func NewRoot(storage Storage, logger *zap.Logger) *Root {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Root{
		data:    make(map[string]interface{}),
		storage: storage,
		logger:  logger,
	}
}

// Load reads the given pages (or all pages if none are given) from
// storage.
func (r *Root) Load(ctx context.Context, pages ...string) error {
	if r.storage == nil {
		return nil
	}
	if len(pages) == 0 {
		var err error
		if pages, err = r.storage.Pages(ctx); err != nil {
			return err
		}
	}
	for _, page := range pages {
		m, err := r.storage.Get(ctx, page)
		if err != nil {
			return fmt.Errorf("loading %s: %w", page, err)
		}
		if m == nil {
			continue
		}
		r.Lock()
		r.data[page] = m
		r.Unlock()
	}
	return nil
}

// Init sets a page's data unless the page already has data.
func (r *Root) Init(page string, data map[string]interface{}) {
	r.Lock()
	defer r.Unlock()
	if _, have := r.data[page]; !have {
		r.data[page] = copyMap(data)
	}
}

// Data returns a deep copy of everything.  It's a suitable
// core.Options.Root.
func (r *Root) Data() map[string]interface{} {
	r.RLock()
	defer r.RUnlock()
	return copyMap(r.data)
}

// Get returns (a copy of) the thing at the dotted path.
func (r *Root) Get(path string) interface{} {
	r.RLock()
	defer r.RUnlock()
	return copyAny(core.Lookup(r.data, path))
}

// Set puts the value at the dotted path and saves the page.
func (r *Root) Set(ctx context.Context, path string, v interface{}) error {
	r.Lock()
	err := deref.Set(r.data, path, copyAny(v))
	r.Unlock()
	if err != nil {
		return fmt.Errorf("setting %s: %w", path, err)
	}
	return r.Save(ctx, pageOf(path))
}

// Save writes the page to storage (if any).
func (r *Root) Save(ctx context.Context, page string) error {
	if r.storage == nil {
		return nil
	}
	r.RLock()
	m, _ := r.data[page].(map[string]interface{})
	m = copyMap(m)
	r.RUnlock()
	if m == nil {
		return r.storage.Remove(ctx, page)
	}
	r.logger.Debug("saving page", zap.String("page", page))
	return r.storage.Put(ctx, page, m)
}

// Pages returns the sorted top-level names.
func (r *Root) Pages() []string {
	r.RLock()
	defer r.RUnlock()
	acc := make([]string, 0, len(r.data))
	for k := range r.data {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}

func pageOf(path string) string {
	if i := strings.Index(path, "."); 0 <= i {
		return path[:i]
	}
	return path
}

// pathFor turns a key from an action object into a dotted path.  A
// reference is resolved relative to the chain's page; anything else
// is already a path.
func pathFor(key string, opts *core.ConsumerOptions) string {
	var page string
	if opts != nil && opts.Options != nil && opts.PageName != nil {
		page = opts.PageName()
	}
	if p, ok := deref.Path(key, page); ok {
		return p
	}
	return key
}

// valueFor resolves a value from an action object: references are
// looked up in the root.
func (r *Root) valueFor(x interface{}, opts *core.ConsumerOptions) interface{} {
	s, is := x.(string)
	if !is || !deref.IsReference(s) || deref.IsAssignment(s) {
		return x
	}
	return r.Get(pathFor(s, opts))
}

var ErrBadObject = errors.New("bad object")

// SaveObject handles saveObject actions.
//
// The action's "object" is either a reference (or path) to a page
// object, which is then written to storage, or a map from paths to
// values, which are set.
func (r *Root) SaveObject(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
	switch vv := a.Get("object").(type) {
	case string:
		path := pathFor(vv, opts)
		return nil, r.Save(ctx, pageOf(path))
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := r.Set(ctx, pathFor(k, opts), r.valueFor(vv[k], opts)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return nil, ErrBadObject
}

// UpdateObject handles updateObject actions:
//
//    {"actionType":"updateObject", "dataKey":"..formData.email", "dataObject":"x@y.z"}
//
// An emit's dataKey can also be used: each entry's value is set at its
// key.
func (r *Root) UpdateObject(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
	key, _ := a.Get("dataKey").(string)
	if key == "" {
		return nil, ErrBadObject
	}
	path := pathFor(key, opts)
	v := r.valueFor(a.Get("dataObject"), opts)
	if err := r.Set(ctx, path, v); err != nil {
		return nil, err
	}
	return r.Get(path), nil
}

// Register adds the handlers.
func (r *Root) Register(reg *core.Registry) error {
	return reg.Register(
		&core.Registration{ActionType: core.SaveObject, Name: "store.SaveObject", Fn: r.SaveObject},
		&core.Registration{ActionType: core.UpdateObject, Name: "store.UpdateObject", Fn: r.UpdateObject},
	)
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	acc := make(map[string]interface{}, len(m))
	for k, v := range m {
		acc[k] = copyAny(v)
	}
	return acc
}

func copyAny(x interface{}) interface{} {
	switch vv := x.(type) {
	case map[string]interface{}:
		return copyMap(vv)
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, y := range vv {
			acc[i] = copyAny(y)
		}
		return acc
	}
	return x
}
