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

package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestActionResolved(t *testing.T) {
	a := NewAction(ActionObject{"actionType": "goto", "destination": "SignIn"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			return "went", nil
		})

	assert.Equal(t, StatusNone, a.Status())
	x, err := a.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "went", x)
	assert.Equal(t, StatusResolved, a.Status())
	assert.Equal(t, "went", a.Result())
	assert.True(t, a.Executed())
	assert.True(t, a.ResultReturned())
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "goto", a.Type)
}

func TestActionNilResult(t *testing.T) {
	a := NewAction(ActionObject{"actionType": "goto", "id": "g1"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			return nil, nil
		})
	x, err := a.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, x)
	assert.Equal(t, "g1", a.ID)
	assert.True(t, a.Executed())
	assert.False(t, a.ResultReturned())
}

func TestActionError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAction(ActionObject{"actionType": "evalObject"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			return nil, boom
		})
	_, err := a.Execute(context.Background(), nil)
	assert.Equal(t, boom, err)
	assert.Equal(t, StatusError, a.Status())
	assert.Equal(t, boom, a.Err())
}

func TestActionPanic(t *testing.T) {
	a := NewAction(ActionObject{"actionType": "evalObject"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			panic("oops")
		})
	_, err := a.Execute(context.Background(), nil)
	var hp *HandlerPanic
	require.True(t, errors.As(err, &hp))
	assert.Equal(t, "oops", hp.Value)
	assert.Equal(t, StatusError, a.Status())
}

func TestActionTimeout(t *testing.T) {
	a := NewAction(ActionObject{"actionType": "popUp"}, block)
	a.TimeoutDelay = 50 * time.Millisecond

	then := time.Now()
	x, err := a.Execute(context.Background(), nil)
	elapsed := time.Since(then)

	require.NoError(t, err)
	assert.Nil(t, x)
	assert.Equal(t, StatusTimedOut, a.Status())
	assert.Less(t, elapsed, time.Second)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestActionAbortInFlight(t *testing.T) {
	started := make(chan struct{})
	a := NewAction(ActionObject{"actionType": "popUp"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})

	errs := make(chan error, 1)
	go func() {
		_, err := a.Execute(context.Background(), nil)
		errs <- err
	}()

	<-started
	err := a.Abort("navigated away")
	require.True(t, IsAbort(err))

	err = <-errs
	require.True(t, IsAbort(err))
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Contains(t, err.Error(), "navigated away")
	assert.Equal(t, StatusAborted, a.Status())
}

func TestActionCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	a := NewAction(ActionObject{"actionType": "popUp"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			defer close(finished)
			cancel()
			time.Sleep(100 * time.Millisecond)
			return "late", nil
		})
	a.TimeoutDelay = 5 * time.Second

	x, err := a.Execute(ctx, nil)
	assert.Nil(t, x)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StatusError, a.Status())
	assert.True(t, errors.Is(a.Err(), context.Canceled))
	<-finished
}

func TestActionAbortIdle(t *testing.T) {
	a := NewAction(ActionObject{"actionType": "goto"}, nil)
	err := a.Abort("")
	require.Error(t, err)
	assert.Equal(t, StatusAborted, a.Status())

	// Clearing is idempotent.
	a.ClearTimeout()
	a.ClearTimeout()
	a.ClearInterval()
	a.ClearInterval()
}

func TestActionReexecute(t *testing.T) {
	n := 0
	a := NewAction(ActionObject{"actionType": "refresh"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			n++
			return n, nil
		})
	for i := 1; i <= 3; i++ {
		x, err := a.Execute(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, i, x)
	}
}

func TestActionRemaining(t *testing.T) {
	defer func(d time.Duration) { TickInterval = d }(TickInterval)
	TickInterval = 10 * time.Millisecond

	a := NewAction(ActionObject{"actionType": "popUp"},
		func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			time.Sleep(50 * time.Millisecond)
			return a.Remaining(), nil
		})
	a.TimeoutDelay = time.Second
	x, err := a.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Less(t, x.(time.Duration), time.Second)
}

func TestActionSnapshotOmitsFn(t *testing.T) {
	fn := HandlerFunc(func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		return nil, nil
	})
	obj, ok := Normalize(fn)
	require.True(t, ok)
	a := NewAction(obj, fn)
	s := a.Snapshot()
	assert.Equal(t, Anonymous, s.ActionType)
	_, have := s.Original["fn"]
	assert.False(t, have)
	_, have = a.Original()["fn"]
	assert.True(t, have)
}
