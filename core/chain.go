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
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultExecuteTimeout is the chain's watchdog for a single step
// when Options.ExecuteTimeout is zero.
var DefaultExecuteTimeout = 10 * time.Second

// DerefArgs is what a DerefFunc gets.
type DerefArgs struct {
	Root        map[string]interface{}
	Ref         string
	RootKey     string
	IteratorVar string
}

// DerefFunc resolves a reference (e.g. ".SignIn.formData.email")
// against the root data.  Returns nil if the reference doesn't
// resolve.
type DerefFunc func(args DerefArgs) interface{}

// Options configure an ActionChain.
//
// Everything is optional.  The accessors (Root, PageObject, PageName)
// come from whatever layer owns the application's data.
type Options struct {
	// Component is whatever UI component the chain is attached to.
	// The chain just passes it along to handlers.
	Component interface{}

	// Trigger is the originating event name(s), e.g. "onClick".
	Trigger []string

	Root       func() map[string]interface{}
	PageObject func(page string) map[string]interface{}
	PageName   func() string
	Deref      DerefFunc

	// IteratorVar and ListItem give the list context (if any) for
	// resolving emit dataKeys.
	IteratorVar string
	ListItem    interface{}

	// ActionsContext is passed through to handlers.
	ActionsContext map[string]interface{}

	// Registry supplies the handlers.  The chain copies what it
	// needs when it's made.
	Registry *Registry

	Hooks  *Hooks
	Logger *zap.Logger

	// TimeoutDelay is the default per-action timeout.  An action
	// object's "timeout" property (milliseconds) overrides it.
	TimeoutDelay time.Duration

	// ExecuteTimeout is the chain's watchdog for each step.
	ExecuteTimeout time.Duration

	// NoActionSniffing turns off treating a handler's map result
	// that has an "actionType" as an action to inject.  Handlers
	// can still return Inject.
	NoActionSniffing bool
}

// ConsumerOptions are given to every handler call.
//
// Ref, Snapshot, Queue, and Status reflect the chain at the time of
// the call.
type ConsumerOptions struct {
	*Options

	Event    interface{}
	Ref      *ActionChain
	Snapshot *Snapshot
	Queue    []*Action
	Status   ChainStatus

	// Bindings are from the handler's Registration.Pattern (if
	// any).
	Bindings map[string]interface{}

	// Run numbers the chain run these options were made for.
	Run uint64
}

// Inject puts an intermediary action on the front of the queue of the
// run these options were made for.  Returns ErrNotInProgress once
// that run is over.
func (o *ConsumerOptions) Inject(x interface{}) (*Action, error) {
	if o.Ref == nil {
		return nil, ErrNotInProgress
	}
	return o.Ref.insert(o.Run, x)
}

// ChainState is the state of an ActionChain.
//
//    "" (idle) → in.progress → done | aborted → "" (after refresh)
type ChainState string

const (
	ChainIdle       ChainState = ""
	ChainInProgress ChainState = "in.progress"
	ChainAborted    ChainState = "aborted"
	ChainDone       ChainState = "done"
)

// ChainStatus is a ChainState plus the reasons for an abort.
type ChainStatus struct {
	State   ChainState `json:"state,omitempty"`
	Reasons []string   `json:"reasons,omitempty"`
}

func (s ChainStatus) Aborted() bool {
	return s.State == ChainAborted
}

func (s ChainStatus) Copy() ChainStatus {
	return ChainStatus{
		State:   s.State,
		Reasons: append([]string(nil), s.Reasons...),
	}
}

// Snapshot is a serializable view of a chain.
type Snapshot struct {
	CurrentAction *ActionSnapshot   `json:"currentAction,omitempty"`
	Original      []ActionObject    `json:"original"`
	Queue         []*ActionSnapshot `json:"queue"`
	Intermediary  []*ActionSnapshot `json:"intermediary,omitempty"`
	Status        ChainStatus       `json:"status"`
}

// Result is what a run of a chain returns.
type Result struct {
	// Results has one entry for each action that was executed
	// (including intermediary actions), in execution order.
	Results []interface{} `json:"results"`

	Status ChainStatus `json:"status"`

	Traces *Traces `json:"traces,omitempty"`
}

func (r *Result) Aborted() bool {
	return r != nil && r.Status.Aborted()
}

// Value is the results or, if the chain was aborted, the string
// "abort".
func (r *Result) Value() interface{} {
	if r.Aborted() {
		return LegacyAbort
	}
	return r.Results
}

// ActionChain executes a list of action objects.
//
// A chain is made once for some list of action objects and can be run
// many times (but not concurrently).
type ActionChain struct {
	sync.Mutex

	opts     *Options
	objects  []ActionObject
	triggers []string
	fns      *handlerTables
	factory  *Factory
	logger   *zap.Logger

	actions      []*Action
	sched        *scheduler
	current      *Action
	intermediary []*Action
	status       ChainStatus
	event        interface{}
	traces       *Traces

	// run counts calls to Run.
	run uint64
}

// drop records an action object that didn't make it into the queue.
type drop struct {
	obj ActionObject
	err error
}

// NewActionChain makes a chain for the given action list.
//
// The list can hold action objects (maps), HandlerFuncs (which become
// anonymous actions), strings (which become goto actions), and
// Drafts.  Things that can't be normalized are dropped with a
// diagnostic.
func NewActionChain(objects []interface{}, opts *Options) *ActionChain {
	if opts == nil {
		opts = &Options{}
	}
	return newActionChain(objects, opts, opts.Registry.snapshot())
}

func newActionChain(objects []interface{}, opts *Options, fns *handlerTables) *ActionChain {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &ActionChain{
		opts:     opts,
		triggers: append([]string(nil), opts.Trigger...),
		fns:      fns,
		logger:   logger,
		traces:   NewTraces(),
	}
	c.factory = &Factory{chain: c}

	var drops []drop
	c.objects = make([]ActionObject, 0, len(objects))
	for i, x := range objects {
		obj, ok := Normalize(x)
		if !ok {
			drops = append(drops, drop{err: &BadActionObject{Index: i, Thing: x}})
			continue
		}
		c.objects = append(c.objects, obj)
	}

	c.Lock()
	drops = append(drops, c.refresh()...)
	c.Unlock()
	c.dropped(drops)

	return c
}

// Sub makes a new chain for the given action list with this chain's
// handlers (including ones added with UseAction) and options.  The
// triggers default to this chain's triggers.
//
// Emit handlers use Sub to run an EmitAction's Actions.
func (c *ActionChain) Sub(objects []interface{}, trigger ...string) *ActionChain {
	c.Lock()
	opts := *c.opts
	if 0 < len(trigger) {
		opts.Trigger = trigger
	}
	fns := c.fns.copy()
	c.Unlock()
	return newActionChain(objects, &opts, fns)
}

// refresh rebuilds the Actions and the scheduler.  Returns what was
// dropped.
//
// Requires the lock.
func (c *ActionChain) refresh() []drop {
	if c.sched != nil {
		c.sched.drain()
	}

	var drops []drop
	c.actions = make([]*Action, 0, len(c.objects))
	for _, obj := range c.objects {
		a, err := c.factory.Create(obj)
		if err != nil {
			drops = append(drops, drop{obj, err})
			continue
		}
		c.actions = append(c.actions, a)
	}
	c.sched = newScheduler(c.actions)
	c.current = nil
	c.status = ChainStatus{}
	return drops
}

func (c *ActionChain) dropped(drops []drop) {
	for _, d := range drops {
		c.logger.Warn("dropping action", zap.Any("object", d.obj.Copy()), errField(d.err))
		c.trace("drop", d.obj.Type(), "", d.err.Error())
		c.opts.Hooks.drop(c, d.obj, d.err)
	}
}

// Refresh resets the chain: the queue is rebuilt from the original
// action objects, and the status goes back to idle.
//
// A chain refreshes itself at the end of every run.
func (c *ActionChain) Refresh() {
	c.Lock()
	drops := c.refresh()
	c.Unlock()
	c.dropped(drops)
}

// Build returns a function that runs the chain.
func (c *ActionChain) Build() func(ctx context.Context, event interface{}) (*Result, error) {
	return c.Run
}

// Run executes the chain's Actions in order.
//
// A deliberate abort (an Abort outcome, a "wait" result, a call to
// Abort) isn't an error: Run returns a Result with an aborted Status.
// If a handler returns an error, or if the watchdog fires, Run aborts
// the chain and returns the Result along with an AbortExecuteError
// (whose Cause is the original error).
//
// The chain is refreshed before Run returns.
func (c *ActionChain) Run(ctx context.Context, event interface{}) (*Result, error) {
	c.Lock()
	if c.status.State == ChainInProgress {
		c.Unlock()
		return nil, ErrNotRunnable
	}
	var drops []drop
	if c.status.State != ChainIdle || c.sched.done {
		drops = c.refresh()
	}
	c.run++
	c.status = ChainStatus{State: ChainInProgress}
	c.event = event
	c.traces = NewTraces()
	c.Unlock()
	c.dropped(drops)

	defer c.Refresh()

	c.opts.Hooks.start(c, event)
	c.trace("start", "", "", "")

	for {
		a, ok := c.next()
		if !ok {
			break
		}

		x, err := c.execute(ctx, a)
		if err != nil {
			var ae *AbortExecuteError
			if !errors.As(err, &ae) {
				ae = NewAbortExecuteError(err, err.Error())
			}
			c.Abort(ae.Reasons...)
			return c.result(), ae
		}

		c.resume(x)
	}

	c.Lock()
	if c.status.State == ChainInProgress {
		c.status.State = ChainDone
	}
	c.current = nil
	c.Unlock()

	r := c.result()
	c.trace("done", "", "", string(r.Status.State))
	c.opts.Hooks.done(c, r)
	return r, nil
}

// next takes the head of the queue (and makes it current).
func (c *ActionChain) next() (*Action, bool) {
	c.Lock()
	defer c.Unlock()
	if c.status.State != ChainInProgress {
		return nil, false
	}
	a, ok := c.sched.next()
	if !ok {
		return nil, false
	}
	c.current = a
	return a, true
}

func (c *ActionChain) resume(x interface{}) {
	c.Lock()
	c.sched.resume(x)
	c.Unlock()
}

func (c *ActionChain) result() *Result {
	c.Lock()
	defer c.Unlock()
	return &Result{
		Results: c.sched.recorded(),
		Status:  c.status.Copy(),
		Traces:  c.traces.Copy(),
	}
}

func (c *ActionChain) executeTimeout() time.Duration {
	if 0 < c.opts.ExecuteTimeout {
		return c.opts.ExecuteTimeout
	}
	return DefaultExecuteTimeout
}

// execute runs one Action under the chain's watchdog.
func (c *ActionChain) execute(ctx context.Context, a *Action) (interface{}, error) {
	limit := c.executeTimeout()
	wctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	c.opts.Hooks.actionStart(c, a)
	c.trace("exec", a.Type, a.ID, "")
	c.logger.Debug("executing action", fieldAction(a))

	x, err := a.Execute(wctx, c.consumerOptions(c.currentEvent(), nil))

	if err != nil && ctx.Err() == nil && errors.Is(wctx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("%s action %s did not finish within %v", a.Type, a.ID, limit)
		c.logger.Warn("execute watchdog", fieldAction(a), zap.Duration("limit", limit))
		a.Abort(msg)
		c.Abort(msg)
		err = NewAbortExecuteError(context.DeadlineExceeded, msg)
	}

	c.opts.Hooks.actionEnd(c, a, x, err)

	if err != nil {
		c.trace("error", a.Type, a.ID, err.Error())
		return nil, err
	}

	if a.Status() == StatusTimedOut {
		c.logger.Warn("action timed out", fieldAction(a), zap.Duration("timeout", a.TimeoutDelay))
		c.trace("timeout", a.Type, a.ID, "")
	}

	if hasWait(x) {
		c.Abort(waitReason(a))
	}

	return x, nil
}

func waitReason(a *Action) string {
	return fmt.Sprintf("%s action %s is waiting", a.Type, a.ID)
}

func (c *ActionChain) currentEvent() interface{} {
	c.Lock()
	defer c.Unlock()
	return c.event
}

// consumerOptions makes fresh ConsumerOptions.
func (c *ActionChain) consumerOptions(event interface{}, bindings map[string]interface{}) *ConsumerOptions {
	c.Lock()
	defer c.Unlock()
	return &ConsumerOptions{
		Options:  c.opts,
		Event:    event,
		Ref:      c,
		Snapshot: c.snapshot(),
		Queue:    c.sched.pending(),
		Status:   c.status.Copy(),
		Bindings: bindings,
		Run:      c.run,
	}
}

// Abort aborts the chain: every Action still in the queue is aborted
// and the queue is emptied.  The given reasons are added to the
// chain's status.
//
// Abort is fine to call on an idle chain and on an aborted chain.
// The current Action (if any) isn't touched.
func (c *ActionChain) Abort(reasons ...string) *Final {
	final, _ := c.abort(0, false, reasons)
	return final
}

// abortRun aborts the chain only if the given run is in progress.
func (c *ActionChain) abortRun(run uint64, reasons ...string) (*Final, bool) {
	return c.abort(run, true, reasons)
}

func (c *ActionChain) abort(run uint64, during bool, reasons []string) (*Final, bool) {
	c.Lock()
	if during && !c.inRun(run) {
		c.Unlock()
		c.logger.Debug("ignoring abort for a finished run", zap.Strings("reasons", reasons))
		return nil, false
	}
	if c.status.State != ChainAborted {
		c.status = ChainStatus{State: ChainAborted}
	}
	for _, r := range reasons {
		if r != "" && !contains(c.status.Reasons, r) {
			c.status.Reasons = append(c.status.Reasons, r)
		}
	}
	rs := append([]string(nil), c.status.Reasons...)
	queue := c.sched.drain()
	final := c.sched.finish(strings.Join(rs, ", "))
	c.Unlock()

	reason := strings.Join(reasons, ", ")
	for _, a := range queue {
		if a.Status() == StatusAborted {
			continue
		}
		if err := a.Abort(reason); err != nil {
			c.logger.Debug("aborted action", fieldAction(a))
		}
	}

	c.logger.Info("chain aborted", zap.Strings("reasons", rs), zap.Int("drained", len(queue)))
	c.trace("abort", "", "", reason)
	c.opts.Hooks.abort(c, rs)

	return final, true
}

// inRun reports whether the given run is in progress.  Run 0 means
// whatever run is in progress.
//
// Requires the lock.
func (c *ActionChain) inRun(run uint64) bool {
	if c.status.State != ChainInProgress {
		return false
	}
	return run == 0 || run == c.run
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// InsertIntermediaryAction makes an Action for the given thing (which
// is normalized like the things in an action list) and puts it on the
// front of the queue.  The Action is also recorded in Intermediary.
//
// The chain must be running.  Otherwise the result is
// ErrNotInProgress.  Handlers should use ConsumerOptions.Inject,
// which is tied to the run they were called for.
func (c *ActionChain) InsertIntermediaryAction(x interface{}) (*Action, error) {
	return c.insert(0, x)
}

func (c *ActionChain) insert(run uint64, x interface{}) (*Action, error) {
	obj, ok := Normalize(x)
	if !ok {
		return nil, &BadActionObject{Index: -1, Thing: x}
	}

	c.Lock()
	if !c.inRun(run) {
		c.Unlock()
		return nil, ErrNotInProgress
	}
	a, err := c.factory.Create(obj)
	if err != nil {
		c.Unlock()
		c.dropped([]drop{{obj, err}})
		return nil, err
	}
	c.sched.unshift(a)
	c.intermediary = append(c.intermediary, a)
	c.Unlock()

	c.logger.Debug("inserted intermediary action", fieldAction(a))
	c.trace("intermediary", a.Type, a.ID, "")
	c.opts.Hooks.intermediary(c, a)

	return a, nil
}

// UseAction adds handlers to this chain only.
//
// Registrations with a FuncName are builtIn handlers.  Like the
// Registry, this is append-only.  An idle chain is refreshed so that
// the handlers apply to its next run.
func (c *ActionChain) UseAction(regs ...*Registration) error {
	c.Lock()
	for _, reg := range regs {
		if reg == nil {
			continue
		}
		if reg.Fn == nil {
			c.Unlock()
			return ErrNoHandlerFunc
		}
		if reg.FuncName != "" && reg.ActionType == "" {
			reg.ActionType = BuiltIn
		}
		c.fns.add(reg)
	}
	var drops []drop
	if c.status.State == ChainIdle {
		drops = c.refresh()
	}
	c.Unlock()
	c.dropped(drops)
	return nil
}

// UseBuiltIn adds builtIn handlers to this chain only.  Every
// registration must have a FuncName.
func (c *ActionChain) UseBuiltIn(regs ...*Registration) error {
	for _, reg := range regs {
		if reg != nil && reg.FuncName == "" {
			return &MissingHandler{ActionType: BuiltIn}
		}
	}
	return c.UseAction(regs...)
}

// snapshot requires the lock.
func (c *ActionChain) snapshot() *Snapshot {
	s := &Snapshot{
		Original: make([]ActionObject, 0, len(c.objects)),
		Queue:    make([]*ActionSnapshot, 0, len(c.sched.queue)),
		Status:   c.status.Copy(),
	}
	if c.current != nil {
		s.CurrentAction = c.current.Snapshot()
	}
	for _, obj := range c.objects {
		o := obj.Copy()
		delete(o, "fn")
		s.Original = append(s.Original, o)
	}
	for _, a := range c.sched.queue {
		s.Queue = append(s.Queue, a.Snapshot())
	}
	for _, a := range c.intermediary {
		s.Intermediary = append(s.Intermediary, a.Snapshot())
	}
	return s
}

func (c *ActionChain) GetSnapshot() *Snapshot {
	c.Lock()
	defer c.Unlock()
	return c.snapshot()
}

// GetQueue returns a copy of the working queue.
func (c *ActionChain) GetQueue() []*Action {
	c.Lock()
	defer c.Unlock()
	return c.sched.pending()
}

func (c *ActionChain) IsAborted() bool {
	c.Lock()
	defer c.Unlock()
	return c.status.Aborted()
}

// Current is the Action being executed (if any).
func (c *ActionChain) Current() *Action {
	c.Lock()
	defer c.Unlock()
	return c.current
}

// Actions returns all of the chain's Actions (as of the last
// refresh).
func (c *ActionChain) Actions() []*Action {
	c.Lock()
	defer c.Unlock()
	return append([]*Action(nil), c.actions...)
}

// Intermediary returns every Action that has been inserted with
// InsertIntermediaryAction.  Refreshing doesn't clear this list.
func (c *ActionChain) Intermediary() []*Action {
	c.Lock()
	defer c.Unlock()
	return append([]*Action(nil), c.intermediary...)
}

// Objects returns copies of the normalized action objects.
func (c *ActionChain) Objects() []ActionObject {
	c.Lock()
	defer c.Unlock()
	acc := make([]ActionObject, 0, len(c.objects))
	for _, obj := range c.objects {
		acc = append(acc, obj.Copy())
	}
	return acc
}

func (c *ActionChain) Status() ChainStatus {
	c.Lock()
	defer c.Unlock()
	return c.status.Copy()
}

func (c *ActionChain) Triggers() []string {
	return append([]string(nil), c.triggers...)
}

func (c *ActionChain) trace(what, actionType, id, note string) {
	c.Lock()
	ts := c.traces
	c.Unlock()
	m := map[string]interface{}{
		"at":    Timestamp(),
		"event": what,
	}
	if actionType != "" {
		m["actionType"] = actionType
	}
	if id != "" {
		m["id"] = id
	}
	if note != "" {
		m["note"] = note
	}
	ts.Add(m)
}

func fieldAction(a *Action) zap.Field {
	return zap.Object("action", a)
}

func errField(err error) zap.Field {
	return zap.Error(err)
}
