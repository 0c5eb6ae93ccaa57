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

// Package sio runs page chains on behalf of requests that arrive via
// stdin, MQTT, or WebSockets.
//
// A request names a page and a chain and optionally carries an event:
//
//	{"id":"r1","page":"SignIn","chain":"submit","event":{"x":1}}
//
// The response has the chain's results and status:
//
//	{"id":"r1","page":"SignIn","chain":"submit","results":[...],"status":{"state":"done"}}
package sio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/page"
	"github.com/Comcast/noodl/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoChain = errors.New("request has no chain")

// UnknownPage occurs when a request names a page the Service doesn't
// have.
type UnknownPage struct {
	Page string
}

func (e *UnknownPage) Error() string {
	return fmt.Sprintf("unknown page '%s'", e.Page)
}

// Request asks a Service to run a chain.
type Request struct {
	// ID is echoed in the Response.  The Service makes one up if
	// it's empty.
	ID string `json:"id,omitempty"`

	Page  string      `json:"page"`
	Chain string      `json:"chain"`
	Event interface{} `json:"event,omitempty"`

	// ReplyTo is an optional hint for Couplings (e.g. an MQTT
	// topic).
	ReplyTo string `json:"replyTo,omitempty"`
}

// AsRequest makes a Request from a Request, a map, or JSON.
func AsRequest(x interface{}) (*Request, error) {
	var js []byte
	switch vv := x.(type) {
	case *Request:
		return vv, nil
	case Request:
		return &vv, nil
	case []byte:
		js = vv
	case string:
		js = []byte(vv)
	default:
		var err error
		if js, err = json.Marshal(x); err != nil {
			return nil, err
		}
	}
	var r Request
	if err := json.Unmarshal(js, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Response reports what happened.
type Response struct {
	ID      string            `json:"id,omitempty"`
	Page    string            `json:"page,omitempty"`
	Chain   string            `json:"chain,omitempty"`
	ReplyTo string            `json:"replyTo,omitempty"`
	Results []interface{}     `json:"results,omitempty"`
	Status  *core.ChainStatus `json:"status,omitempty"`
	Error   string            `json:"error,omitempty"`
	Traces  *core.Traces      `json:"traces,omitempty"`
}

// Service runs chains from a set of pages.
type Service struct {
	// Root is the root data for every page.
	Root *store.Root

	// Options is the template for every chain's core.Options.
	Options core.Options

	// Concurrency limits the number of chains that Loop runs at
	// the same time.  Zero means no limit.
	Concurrency int

	// Traces includes chain traces in Responses.
	Traces bool

	Logger *zap.Logger

	sync.RWMutex
	pages map[string]*page.Page
}

// NewService makes a Service.  The Root can be nil.
func NewService(root *store.Root, opts core.Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == nil {
		root = store.NewRoot(nil, logger)
	}
	return &Service{
		Root:    root,
		Options: opts,
		Logger:  logger,
		pages:   make(map[string]*page.Page),
	}
}

// AddPage adds (or replaces) a page and initializes its root data.
func (s *Service) AddPage(p *page.Page) {
	s.Lock()
	s.pages[p.Name] = p
	s.Unlock()
	p.Init(s.Root)
	s.Logger.Info("added page", zap.String("page", p.Name), zap.Strings("chains", p.ChainNames()))
}

// Pages returns the sorted page names.
func (s *Service) Pages() []string {
	s.RLock()
	defer s.RUnlock()
	acc := make([]string, 0, len(s.pages))
	for name := range s.pages {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}

func (s *Service) page(name string) (*page.Page, error) {
	s.RLock()
	p, have := s.pages[name]
	s.RUnlock()
	if !have {
		return nil, &UnknownPage{Page: name}
	}
	return p, nil
}

// Process runs the chain that the message requests.  Problems are
// reported in the Response.
func (s *Service) Process(ctx context.Context, msg interface{}) *Response {
	req, err := AsRequest(msg)
	if err != nil {
		s.Logger.Warn("bad request", zap.Error(err))
		return &Response{Error: err.Error()}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	resp := &Response{
		ID:      req.ID,
		Page:    req.Page,
		Chain:   req.Chain,
		ReplyTo: req.ReplyTo,
	}

	logger := s.Logger.With(zap.String("req", req.ID), zap.String("page", req.Page), zap.String("chain", req.Chain))

	if req.Chain == "" {
		resp.Error = ErrNoChain.Error()
		return resp
	}

	p, err := s.page(req.Page)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	opts := s.Options
	opts.Logger = logger
	c, err := p.Chain(req.Chain, s.Root, &opts)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	res, err := c.Run(ctx, req.Event)
	if res != nil {
		resp.Results = res.Results
		status := res.Status.Copy()
		resp.Status = &status
		if s.Traces {
			resp.Traces = res.Traces
		}
	}
	if err != nil {
		logger.Warn("chain failed", zap.Error(err))
		resp.Error = err.Error()
	} else if resp.Status != nil {
		logger.Debug("chain ran", zap.String("state", string(resp.Status.State)))
	}

	return resp
}

// Loop processes requests from the Couplings until the input is
// exhausted or the context is done.  Responses for all requests
// received are sent before Loop closes the response channel.
func (s *Service) Loop(ctx context.Context, c Couplings) error {
	in, out, done, err := c.IO(ctx)
	if err != nil {
		return err
	}
	defer close(out)

	g, gctx := errgroup.WithContext(ctx)
	if 0 < s.Concurrency {
		g.SetLimit(s.Concurrency)
	}

LOOP:
	for {
		select {
		case <-ctx.Done():
			break LOOP
		case <-done:
			break LOOP
		case msg := <-in:
			g.Go(func() error {
				r := s.Process(gctx, msg)
				select {
				case <-gctx.Done():
					s.Logger.Warn("dropping response", zap.String("req", r.ID))
				case out <- r:
				}
				return nil
			})
		}
	}

	s.Logger.Debug("service loop draining")
	return g.Wait()
}
