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

package sio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/page"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const home = `
name: Home
root:
  greeting: hello
chains:
  greet:
    trigger: [onClick]
    actions:
      - actionType: emit
        emit:
          dataKey: ..greeting
      - actionType: popUp
        popUpView: hi
  fail:
    actions:
      - actionType: toast
        message: boom
`

func testService(t *testing.T) *Service {
	p, err := page.Parse([]byte(home))
	require.NoError(t, err)

	reg := core.NewRegistry().
		HandleEmit("", func(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
			return a.EmitAction().DataKey(), nil
		}).
		Handle(core.PopUp, func(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
			return "shown", nil
		}).
		Handle(core.Toast, func(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
			return nil, errors.New("boom")
		})

	s := NewService(nil, core.Options{Registry: reg}, nil)
	s.AddPage(p)
	return s
}

func TestProcess(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	assert.Equal(t, []string{"Home"}, s.Pages())

	r := s.Process(ctx, map[string]interface{}{"id": "r1", "page": "Home", "chain": "greet"})
	assert.Equal(t, "r1", r.ID)
	assert.Empty(t, r.Error)
	assert.Equal(t, []interface{}{"hello", "shown"}, r.Results)
	require.NotNil(t, r.Status)
	assert.Equal(t, core.ChainDone, r.Status.State)
	assert.Nil(t, r.Traces)

	// Twice to check that chains are fresh.
	r = s.Process(ctx, `{"page":"Home","chain":"greet"}`)
	assert.Empty(t, r.Error)
	assert.NotEmpty(t, r.ID)
	assert.Len(t, r.Results, 2)
}

func TestProcessErrors(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	r := s.Process(ctx, &Request{ID: "f", Page: "Home", Chain: "fail"})
	assert.Equal(t, "aborted: boom", r.Error)
	require.NotNil(t, r.Status)
	assert.True(t, r.Status.Aborted())

	r = s.Process(ctx, Request{Page: "Nope", Chain: "greet"})
	assert.Equal(t, (&UnknownPage{Page: "Nope"}).Error(), r.Error)

	r = s.Process(ctx, Request{Page: "Home"})
	assert.Equal(t, ErrNoChain.Error(), r.Error)

	r = s.Process(ctx, Request{Page: "Home", Chain: "nope"})
	assert.Contains(t, r.Error, "no chain nope")

	r = s.Process(ctx, "{")
	assert.NotEmpty(t, r.Error)
}

func TestProcessTraces(t *testing.T) {
	s := testService(t)
	s.Traces = true
	r := s.Process(context.Background(), Request{Page: "Home", Chain: "greet"})
	require.NotNil(t, r.Traces)
	assert.NotEmpty(t, r.Traces.Messages)
}

func TestLoopStdio(t *testing.T) {
	s := testService(t)
	s.Concurrency = 1

	std := NewStdio(false, nil)
	std.In = strings.NewReader(`# comment
{"id":"1","page":"Home","chain":"greet"}

{"id":"2","page":"Home","chain":"fail"}
{"id":"3","page":"Home","chain":"greet"}`)
	var out bytes.Buffer
	std.Out = &out
	std.Tags = true

	ctx := context.Background()
	require.NoError(t, std.Start(ctx))
	require.NoError(t, s.Loop(ctx, std))
	require.NoError(t, std.Stop(ctx))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var tags, ids []string
	for _, line := range lines {
		parts := strings.SplitN(line, " ", 2)
		require.Len(t, parts, 2)
		var r Response
		require.NoError(t, json.Unmarshal([]byte(parts[1]), &r))
		tags = append(tags, parts[0])
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, []string{"result", "error", "result"}, tags)

	select {
	case <-std.InputEOF:
	default:
		t.Fatal("InputEOF should be closed")
	}
}

func TestLoopQuit(t *testing.T) {
	s := testService(t)
	std := NewStdio(false, nil)
	std.In = strings.NewReader("quit\n{\"page\":\"Home\",\"chain\":\"greet\"}\n")
	var out bytes.Buffer
	std.Out = &out

	ctx := context.Background()
	require.NoError(t, s.Loop(ctx, std))
	require.NoError(t, std.Stop(ctx))
	assert.Empty(t, out.String())
}

func TestLoopCanceled(t *testing.T) {
	s := testService(t)
	std := NewStdio(false, nil)
	// Never sends anything.
	r, w := io.Pipe()
	defer w.Close()
	std.In = r
	std.Out = &bytes.Buffer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Loop(ctx, std))
	require.NoError(t, std.Stop(context.Background()))
}

func TestLoopBadInput(t *testing.T) {
	s := testService(t)
	std := NewStdio(false, nil)
	std.In = strings.NewReader("not json\n")
	var out bytes.Buffer
	std.Out = &out
	std.Tags = true

	ctx := context.Background()
	require.NoError(t, s.Loop(ctx, std))
	require.NoError(t, std.Stop(ctx))
	assert.True(t, strings.HasPrefix(out.String(), "error bad input"))
}
