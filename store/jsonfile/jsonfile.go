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

// Package jsonfile is a primitive store.Storage that keeps all pages
// as JSON in one file.
//
// Not glamorous or efficient.  Every Put rewrites the whole file.
package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
)

type Storage struct {
	sync.Mutex

	// Filename is the JSON file.  A missing file is the same as
	// an empty one.
	Filename string

	state map[string]map[string]interface{}
}

func NewStorage(filename string) *Storage {
	return &Storage{
		Filename: filename,
	}
}

// load reads the file if it hasn't been read yet.
//
// Requires the lock.
func (s *Storage) load() error {
	if s.state != nil {
		return nil
	}
	s.state = make(map[string]map[string]interface{})
	js, err := os.ReadFile(s.Filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(js) == 0 {
		return nil
	}
	return json.Unmarshal(js, &s.state)
}

// write writes the entire state as JSON.
//
// Requires the lock.
func (s *Storage) write() error {
	js, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.Filename + ".tmp"
	if err = os.WriteFile(tmp, js, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Filename)
}

func (s *Storage) Get(ctx context.Context, page string) (map[string]interface{}, error) {
	s.Lock()
	defer s.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return s.state[page], nil
}

func (s *Storage) Put(ctx context.Context, page string, data map[string]interface{}) error {
	s.Lock()
	defer s.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.state[page] = data
	return s.write()
}

func (s *Storage) Remove(ctx context.Context, page string) error {
	s.Lock()
	defer s.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	if _, have := s.state[page]; !have {
		return nil
	}
	delete(s.state, page)
	return s.write()
}

func (s *Storage) Pages(ctx context.Context) ([]string, error) {
	s.Lock()
	defer s.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	acc := make([]string, 0, len(s.state))
	for page := range s.state {
		acc = append(acc, page)
	}
	sort.Strings(acc)
	return acc, nil
}
