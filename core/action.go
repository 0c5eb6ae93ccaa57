/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// ActionStatus is the state of an Action.
//
//    "" → pending → resolved | error | timed-out | aborted
type ActionStatus string

const (
	StatusNone     ActionStatus = ""
	StatusPending  ActionStatus = "pending"
	StatusResolved ActionStatus = "resolved"
	StatusError    ActionStatus = "error"
	StatusTimedOut ActionStatus = "timed-out"
	StatusAborted  ActionStatus = "aborted"
)

var (
	// DefaultTimeoutDelay is used when an Action's TimeoutDelay is
	// zero.
	DefaultTimeoutDelay = 8 * time.Second

	// TickInterval is how often a pending Action updates its
	// Remaining time.  Only for introspection.
	TickInterval = time.Second
)

// Action is one executable unit: a single action object plus its
// runtime status, timeout, and result.
type Action struct {
	// ID is an opaque unique token.
	ID string

	// Type is the actionType of the original action object.
	Type string

	// TimeoutDelay is how long Execute waits for the Callback
	// before giving up (with status "timed-out").
	TimeoutDelay time.Duration

	// Callback is what Execute calls.
	Callback HandlerFunc

	original ActionObject
	emit     *EmitAction

	sync.Mutex

	status         ActionStatus
	result         interface{}
	err            error
	executed       bool
	resultReturned bool
	remaining      time.Duration
	abortReason    string

	// gen counts Execute invocations so that timers from an
	// earlier invocation can't touch a later one.
	gen      int
	timer    *time.Timer
	ticker   *time.Ticker
	stopTick chan struct{}
	cancel   context.CancelFunc
}

// NewAction makes an Action for the given (normalized) action object.
//
// The object's "id" property is used as the ID if it's a string;
// otherwise a new id is generated.
func NewAction(obj ActionObject, callback HandlerFunc) *Action {
	id, _ := obj["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	return &Action{
		ID:           id,
		Type:         obj.Type(),
		TimeoutDelay: DefaultTimeoutDelay,
		Callback:     callback,
		original:     obj.Copy(),
	}
}

// Original returns a copy of the action object.
func (a *Action) Original() ActionObject {
	return a.original.Copy()
}

// Get returns a property of the original action object.
func (a *Action) Get(p string) interface{} {
	return a.original[p]
}

// EmitAction returns the EmitAction this Action belongs to, if any.
func (a *Action) EmitAction() *EmitAction {
	return a.emit
}

func (a *Action) Status() ActionStatus {
	a.Lock()
	defer a.Unlock()
	return a.status
}

func (a *Action) Result() interface{} {
	a.Lock()
	defer a.Unlock()
	return a.result
}

func (a *Action) Err() error {
	a.Lock()
	defer a.Unlock()
	return a.err
}

// Executed reports whether the Callback has returned at least once.
func (a *Action) Executed() bool {
	a.Lock()
	defer a.Unlock()
	return a.executed
}

// ResultReturned reports whether the last execution returned a
// non-nil result.
func (a *Action) ResultReturned() bool {
	a.Lock()
	defer a.Unlock()
	return a.resultReturned
}

// Remaining is the (approximate) time left before the current
// execution times out.
func (a *Action) Remaining() time.Duration {
	a.Lock()
	defer a.Unlock()
	return a.remaining
}

type callbackResult struct {
	x   interface{}
	err error
}

// Execute calls the Callback and waits for it.
//
// If the callback returns an error, the status becomes "error" and
// the error is returned.  If TimeoutDelay passes first, the status
// becomes "timed-out" and Execute returns (nil, nil); the callback's
// context is cancelled, but the callback isn't otherwise stopped.  If
// the Action is aborted while the callback is running, Execute
// returns an AbortExecuteError.  If the given ctx is done first,
// Execute returns ctx.Err() and the Action ends up with that error.
//
// Timers from a previous execution are cleared first, and all timers
// are cleared when Execute returns.
func (a *Action) Execute(ctx context.Context, opts *ConsumerOptions) (interface{}, error) {
	a.Lock()
	a.clearTimers()
	a.gen++
	gen := a.gen
	a.status = StatusPending
	a.result = nil
	a.err = nil
	a.resultReturned = false
	a.abortReason = ""

	delay := a.TimeoutDelay
	if delay <= 0 {
		delay = DefaultTimeoutDelay
	}
	a.remaining = delay

	cctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	timedOut := make(chan struct{})
	a.timer = time.AfterFunc(delay, func() {
		a.Lock()
		if a.gen == gen && a.status == StatusPending {
			a.status = StatusTimedOut
			a.remaining = 0
			close(timedOut)
		}
		a.Unlock()
	})
	a.startTicker(gen)
	cb := a.Callback
	a.Unlock()

	defer func() {
		a.Lock()
		if a.gen == gen {
			a.clearTimers()
			a.cancel = nil
		}
		a.Unlock()
		cancel()
	}()

	if cb == nil {
		a.Lock()
		defer a.Unlock()
		a.status = StatusResolved
		a.executed = true
		return nil, nil
	}

	done := make(chan callbackResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, is := r.(error)
				if !is {
					err = &HandlerPanic{r}
				}
				done <- callbackResult{err: err}
			}
		}()
		x, err := cb(cctx, a, opts)
		done <- callbackResult{x: x, err: err}
	}()

	select {
	case r := <-done:
		a.Lock()
		defer a.Unlock()
		switch a.status {
		case StatusAborted:
			return nil, NewAbortExecuteError(nil, a.abortReason)
		case StatusTimedOut:
			return nil, nil
		}
		a.executed = true
		if r.err != nil {
			a.status = StatusError
			a.err = r.err
			return nil, r.err
		}
		a.status = StatusResolved
		a.result = r.x
		a.resultReturned = r.x != nil
		return r.x, nil

	case <-timedOut:
		return nil, nil

	case <-cctx.Done():
		a.Lock()
		defer a.Unlock()
		if a.status == StatusAborted {
			return nil, NewAbortExecuteError(nil, a.abortReason)
		}
		a.status = StatusError
		a.err = ctx.Err()
		return nil, a.err
	}
}

// Abort marks the Action as aborted, clears its timers, cancels the
// context of any in-flight execution, and returns an
// AbortExecuteError.
//
// The returned error is the point: callers are expected to deal with
// it.
func (a *Action) Abort(reason string) error {
	a.Lock()
	a.clearTimers()
	a.status = StatusAborted
	a.abortReason = reason
	cancel := a.cancel
	a.Unlock()
	if cancel != nil {
		cancel()
	}
	return NewAbortExecuteError(nil, reason)
}

// ClearTimeout stops the timeout timer.  Idempotent.
func (a *Action) ClearTimeout() {
	a.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.Unlock()
}

// ClearInterval stops the remaining-time ticker.  Idempotent.
func (a *Action) ClearInterval() {
	a.Lock()
	a.stopTicker()
	a.Unlock()
}

// clearTimers requires the lock.
func (a *Action) clearTimers() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.stopTicker()
}

// startTicker requires the lock.
func (a *Action) startTicker(gen int) {
	t := time.NewTicker(TickInterval)
	stop := make(chan struct{})
	a.ticker = t
	a.stopTick = stop
	go func() {
		for {
			select {
			case <-t.C:
				a.Lock()
				if a.gen == gen && a.status == StatusPending {
					if a.remaining -= TickInterval; a.remaining < 0 {
						a.remaining = 0
					}
				}
				a.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// stopTicker requires the lock.
func (a *Action) stopTicker() {
	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stopTick)
		a.ticker = nil
		a.stopTick = nil
	}
}

// ActionSnapshot is a serializable view of an Action.
type ActionSnapshot struct {
	ID             string        `json:"id"`
	ActionType     string        `json:"actionType"`
	Status         ActionStatus  `json:"status,omitempty"`
	Original       ActionObject  `json:"original,omitempty"`
	Result         interface{}   `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	Executed       bool          `json:"executed,omitempty"`
	ResultReturned bool          `json:"resultReturned,omitempty"`
	TimeoutDelay   time.Duration `json:"timeoutDelay"`
	Remaining      time.Duration `json:"remaining,omitempty"`
}

// Snapshot returns the current ActionSnapshot.
//
// The "fn" of an anonymous action is left out of Original.
func (a *Action) Snapshot() *ActionSnapshot {
	a.Lock()
	defer a.Unlock()
	orig := a.original.Copy()
	delete(orig, "fn")
	s := &ActionSnapshot{
		ID:             a.ID,
		ActionType:     a.Type,
		Status:         a.status,
		Original:       orig,
		Result:         a.result,
		Executed:       a.executed,
		ResultReturned: a.resultReturned,
		TimeoutDelay:   a.TimeoutDelay,
		Remaining:      a.remaining,
	}
	if a.err != nil {
		s.Error = a.err.Error()
	}
	return s
}

// MarshalLogObject lets an Action be a zap field.
func (a *Action) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", a.ID)
	enc.AddString("actionType", a.Type)
	if d := a.TimeoutDelay; 0 < d {
		enc.AddDuration("timeoutDelay", d)
	}
	return nil
}
