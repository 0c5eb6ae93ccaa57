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

package jsonfile

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/Comcast/noodl/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ store.Storage = &Storage{}

func TestStorage(t *testing.T) {
	dir, err := ioutil.TempDir("", "jsonfile")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx := context.Background()
	filename := filepath.Join(dir, "root.json")

	s := NewStorage(filename)
	pages, err := s.Pages(ctx)
	require.NoError(t, err)
	assert.Empty(t, pages)

	require.NoError(t, s.Put(ctx, "SignIn", map[string]interface{}{"email": "a@b.c"}))
	require.NoError(t, s.Put(ctx, "Global", map[string]interface{}{"n": 1.0}))
	require.NoError(t, s.Remove(ctx, "Nope"))

	// A fresh Storage sees what was written.
	s = NewStorage(filename)
	pages, err = s.Pages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Global", "SignIn"}, pages)

	m, err := s.Get(ctx, "SignIn")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", m["email"])

	require.NoError(t, s.Remove(ctx, "SignIn"))
	m, err = NewStorage(filename).Get(ctx, "SignIn")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestStorageWithRoot(t *testing.T) {
	dir, err := ioutil.TempDir("", "jsonfile")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx := context.Background()
	filename := filepath.Join(dir, "root.json")

	r := store.NewRoot(NewStorage(filename), nil)
	require.NoError(t, r.Set(ctx, "Home.visits", 3.0))

	r = store.NewRoot(NewStorage(filename), nil)
	require.NoError(t, r.Load(ctx))
	assert.Equal(t, 3.0, r.Get("Home.visits"))
}

func TestStorageBadFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "jsonfile")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	filename := filepath.Join(dir, "root.json")
	require.NoError(t, ioutil.WriteFile(filename, []byte("{"), 0644))
	_, err = NewStorage(filename).Pages(context.Background())
	assert.Error(t, err)
}
