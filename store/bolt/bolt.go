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

// Package bolt is a store.Storage backed by bbolt.
package bolt

import (
	"context"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var bucket = []byte("pages")

type Storage struct {
	Timeout time.Duration

	filename string
	db       *bbolt.DB
}

func NewStorage(filename string) *Storage {
	return &Storage{
		Timeout:  time.Second,
		filename: filename,
	}
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bbolt.Options{
		Timeout: s.Timeout,
	}

	db, err := bbolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
}

func (s *Storage) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *Storage) Get(ctx context.Context, page string) (map[string]interface{}, error) {
	var m map[string]interface{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bs := tx.Bucket(bucket).Get([]byte(page))
		if bs == nil {
			return nil
		}
		return json.Unmarshal(bs, &m)
	})
	return m, err
}

func (s *Storage) Put(ctx context.Context, page string, data map[string]interface{}) error {
	js, err := json.Marshal(&data)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(page), js)
	})
}

func (s *Storage) Remove(ctx context.Context, page string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(page))
	})
}

func (s *Storage) Pages(ctx context.Context) ([]string, error) {
	acc := make([]string, 0, 32)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			acc = append(acc, string(k))
			return nil
		})
	})
	return acc, err
}
