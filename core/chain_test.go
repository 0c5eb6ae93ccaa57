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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// order records handler calls.
type order struct {
	sync.Mutex
	calls []string
}

func (o *order) add(s string) {
	o.Lock()
	o.calls = append(o.calls, s)
	o.Unlock()
}

func (o *order) get() []string {
	o.Lock()
	defer o.Unlock()
	return append([]string(nil), o.calls...)
}

// named returns a handler that records the action's "name" and then
// returns x.
func (o *order) named(x interface{}) HandlerFunc {
	return func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		name, _ := a.Get("name").(string)
		o.add(name)
		return x, nil
	}
}

func named(actionType, name string) map[string]interface{} {
	return map[string]interface{}{
		"actionType": actionType,
		"name":       name,
	}
}

func TestChainOrdering(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(Goto, o.named(nil)).
		Handle(EvalObject, o.named(nil))

	c := NewActionChain([]interface{}{
		named(EvalObject, "a1"),
		named(Goto, "a2"),
		named(EvalObject, "a3"),
	}, &Options{Registry: reg})

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, o.get())
	assert.Len(t, r.Results, 3)
	assert.Equal(t, ChainDone, r.Status.State)
}

func TestChainIntermediary(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(Goto, o.named(nil)).
		Handle(EvalObject, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			o.add("a1")
			return map[string]interface{}{"actionType": Goto, "name": "injected"}, nil
		})

	c := NewActionChain([]interface{}{
		named(EvalObject, "a1"),
		named(Goto, "a2"),
	}, &Options{Registry: reg})

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "injected", "a2"}, o.get())
	assert.Len(t, r.Results, 3)

	inter := c.Intermediary()
	require.Len(t, inter, 1)
	assert.Equal(t, "injected", inter[0].Get("name"))
	assert.Equal(t, StatusResolved, inter[0].Status())
}

func TestChainGotoSniffing(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(Goto, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			o.add(a.Get(Goto).(string))
			return nil, nil
		}).
		Handle(EvalObject, o.named(map[string]interface{}{Goto: "SignIn"}))

	c := NewActionChain([]interface{}{named(EvalObject, "eval")}, &Options{Registry: reg})
	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"eval", "SignIn"}, o.get())
}

func TestChainNoActionSniffing(t *testing.T) {
	o := &order{}
	value := map[string]interface{}{"actionType": "business value"}
	reg := NewRegistry().
		Handle(Goto, o.named(nil)).
		Handle(EvalObject, o.named(value))

	c := NewActionChain([]interface{}{
		named(EvalObject, "a1"),
		named(Goto, "a2"),
	}, &Options{Registry: reg, NoActionSniffing: true})

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, o.get())
	assert.Equal(t, value, r.Results[0])
	assert.Empty(t, c.Intermediary())
}

func TestChainInjectOutcome(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(Goto, o.named(nil)).
		Handle(EvalObject, o.named(Inject{Object: named(Goto, "injected")}))

	c := NewActionChain([]interface{}{named(EvalObject, "a1")},
		&Options{Registry: reg, NoActionSniffing: true})
	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "injected"}, o.get())
}

func TestChainAbortDrainsQueue(t *testing.T) {
	r := &Recorder{}
	c := NewActionChain([]interface{}{
		named(Goto, "a1"),
		named(Goto, "a2"),
		named(Goto, "a3"),
	}, &Options{Registry: RecordingRegistry(r, Goto)})

	require.Len(t, c.GetQueue(), 3)
	final := c.Abort("stop")
	assert.True(t, final.Done)
	assert.Equal(t, "stop", final.Value)
	assert.Empty(t, c.GetQueue())
	assert.True(t, c.IsAborted())
	for _, a := range c.Actions() {
		assert.Equal(t, StatusAborted, a.Status())
	}
	assert.Empty(t, r.Types())
}

func TestChainSignInExample(t *testing.T) {
	r := &Recorder{}
	c := NewActionChain(SignInActions(), &Options{Registry: RecordingRegistry(r, EvalObject, SaveObject, Goto)})

	res, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{EvalObject, SaveObject, Goto}, r.Types())
	assert.Len(t, res.Results, 3)
	assert.Equal(t, ChainDone, res.Status.State)

	// Refreshed and ready for another run.
	assert.Len(t, c.GetQueue(), len(c.Actions()))
}

func TestChainDoubleAbort(t *testing.T) {
	c := NewActionChain(nil, nil)
	assert.NotPanics(t, func() {
		c.Abort()
		c.Abort()
	})
	assert.Empty(t, c.GetQueue())

	c = NewActionChain([]interface{}{named(Goto, "a1")},
		&Options{Registry: NewRegistry().Handle(Goto, (&order{}).named(nil))})
	c.Abort("once")
	c.Abort("once")
	assert.Empty(t, c.GetQueue())
	assert.Equal(t, []string{"once"}, c.Status().Reasons)
}

func TestChainRefreshRestoresRunnability(t *testing.T) {
	o := &order{}
	c := NewActionChain([]interface{}{
		named(Goto, "a1"),
		named(Goto, "a2"),
	}, &Options{Registry: NewRegistry().Handle(Goto, o.named(nil))})

	for i := 0; i < 2; i++ {
		_, err := c.Run(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, len(c.Actions()), len(c.GetQueue()))
		assert.Equal(t, ChainIdle, c.Status().State)
		assert.Nil(t, c.Current())
	}
	assert.Equal(t, []string{"a1", "a2", "a1", "a2"}, o.get())

	// An aborted chain runs again.
	c.Abort("later")
	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, o.get(), 6)
}

func TestChainFanOut(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 3; i++ {
		reg.Handle(EvalObject, (&order{}).named(i))
	}
	c := NewActionChain([]interface{}{named(EvalObject, "e")}, &Options{Registry: reg})
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, r.Results, 1)
	assert.Equal(t, []interface{}{0, 1, 2}, r.Results[0])
}

func TestChainFanOutStopsWhenAborted(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(EvalObject, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			o.add("first")
			return Abort{Reason: "enough"}, nil
		}).
		Handle(EvalObject, o.named("second")).
		Handle(Goto, o.named(nil))

	c := NewActionChain([]interface{}{
		named(EvalObject, "e"),
		named(Goto, "g"),
	}, &Options{Registry: reg})
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, o.get())
	assert.True(t, r.Aborted())
	assert.Equal(t, []string{"enough"}, r.Status.Reasons)
	assert.Equal(t, LegacyAbort, r.Value())
}

func TestChainPopUpWait(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(PopUp, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			o.add("popUp")
			return a.Original(), nil
		}).
		Handle(Goto, o.named(nil))

	c := NewActionChain([]interface{}{
		map[string]interface{}{"actionType": PopUp, "popUpView": "x", "wait": true},
		named(Goto, "after"),
	}, &Options{Registry: reg, NoActionSniffing: true})

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"popUp"}, o.get())
	assert.True(t, r.Aborted())
	assert.Equal(t, ChainAborted, r.Status.State)
}

func TestChainWaitOutcome(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(PopUp, o.named(Wait{})).
		Handle(Goto, o.named(nil))

	c := NewActionChain([]interface{}{named(PopUp, "p"), named(Goto, "g")},
		&Options{Registry: reg})
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, o.get())
	assert.True(t, r.Aborted())
	assert.Len(t, r.Status.Reasons, 1)
}

func TestChainGotoNil(t *testing.T) {
	reg := NewRegistry().Handle(Goto, (&order{}).named(nil))
	c := NewActionChain([]interface{}{
		map[string]interface{}{"actionType": Goto, "destination": "SignIn"},
	}, &Options{Registry: reg})

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ChainDone, r.Status.State)
	assert.False(t, r.Aborted())
	assert.Equal(t, []interface{}{nil}, r.Results)
	assert.Equal(t, []interface{}{nil}, r.Value())
}

func TestChainLegacyAbort(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(EvalObject, o.named(LegacyAbort)).
		Handle(Goto, o.named(nil))
	c := NewActionChain([]interface{}{named(EvalObject, "e"), named(Goto, "g")},
		&Options{Registry: reg})
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, o.get())
	assert.Equal(t, LegacyAbort, r.Value())
}

func TestChainHandlerError(t *testing.T) {
	boom := errors.New("boom")
	o := &order{}
	reg := NewRegistry().
		Handle(EvalObject, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			return nil, boom
		}).
		Handle(Goto, o.named(nil))

	c := NewActionChain([]interface{}{named(EvalObject, "e"), named(Goto, "g")},
		&Options{Registry: reg})
	r, err := c.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsAbort(err))
	assert.True(t, errors.Is(err, boom))
	assert.True(t, r.Aborted())
	assert.Equal(t, []string{"boom"}, r.Status.Reasons)
	assert.Empty(t, o.get())

	// Refreshed anyway.
	assert.Equal(t, ChainIdle, c.Status().State)
	assert.Len(t, c.GetQueue(), 2)
}

func TestChainWatchdog(t *testing.T) {
	reg := NewRegistry().Handle(PopUp, block)
	c := NewActionChain([]interface{}{named(PopUp, "p")}, &Options{
		Registry:       reg,
		TimeoutDelay:   5 * time.Second,
		ExecuteTimeout: 50 * time.Millisecond,
	})

	then := time.Now()
	r, err := c.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(then), time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, r.Aborted())
	require.Len(t, r.Status.Reasons, 1)
}

func TestChainActionTimeoutContinues(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(PopUp, block).
		Handle(Goto, o.named(nil))
	c := NewActionChain([]interface{}{
		map[string]interface{}{"actionType": PopUp, "timeout": 20},
		named(Goto, "g"),
	}, &Options{Registry: reg})

	var timedOut []ActionStatus
	c.opts.Hooks = &Hooks{
		OnActionEnd: func(c *ActionChain, a *Action, x interface{}, err error) {
			timedOut = append(timedOut, a.Status())
		},
	}

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, o.get())
	assert.Equal(t, []ActionStatus{StatusTimedOut, StatusResolved}, timedOut)
	assert.Equal(t, []interface{}{nil, nil}, r.Results)
}

func TestChainDrops(t *testing.T) {
	var dropped []error
	o := &order{}
	c := NewActionChain([]interface{}{
		named("videoChat", "unknown"),
		named(Toast, "unhandled"),
		42,
		named(Goto, "g"),
	}, &Options{
		Registry: NewRegistry().Handle(Goto, o.named(nil)),
		Hooks: &Hooks{
			OnDrop: func(c *ActionChain, obj ActionObject, err error) {
				dropped = append(dropped, err)
			},
		},
	})

	require.Len(t, dropped, 3)
	var bad *BadActionObject
	assert.True(t, errors.As(dropped[0], &bad))
	var unknown *UnknownActionType
	assert.True(t, errors.As(dropped[1], &unknown))
	var missing *MissingHandler
	assert.True(t, errors.As(dropped[2], &missing))

	assert.Len(t, c.Actions(), 1)
	assert.Len(t, c.Objects(), 3)

	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, o.get())
}

func TestChainNormalizes(t *testing.T) {
	o := &order{}
	reg := NewRegistry().Handle(Goto, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		o.add(a.Get(Goto).(string))
		return nil, nil
	})
	fn := func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		o.add("fn")
		return "anon", nil
	}
	c := NewActionChain([]interface{}{
		"SignIn",
		fn,
		map[string]interface{}{Goto: "Dashboard"},
	}, &Options{Registry: reg})

	objs := c.Objects()
	require.Len(t, objs, 3)
	assert.Equal(t, Goto, objs[0].Type())
	assert.Equal(t, Anonymous, objs[1].Type())
	assert.Equal(t, Goto, objs[2].Type())

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SignIn", "fn", "Dashboard"}, o.get())
	assert.Equal(t, "anon", r.Results[1])
}

func TestChainBuiltIn(t *testing.T) {
	o := &order{}
	reg := NewRegistry().HandleBuiltIn("toggleFlag", o.named("toggled"))
	c := NewActionChain([]interface{}{
		map[string]interface{}{"actionType": BuiltIn, "funcName": "toggleFlag", "name": "t"},
		map[string]interface{}{"actionType": BuiltIn, "funcName": "nope"},
	}, &Options{Registry: reg})
	require.Len(t, c.Actions(), 1)
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"toggled"}, r.Results)
}

func TestChainEmit(t *testing.T) {
	var got []interface{}
	var mu sync.Mutex
	handler := func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		mu.Lock()
		got = append(got, a.EmitAction().DataKey())
		mu.Unlock()
		return nil, nil
	}
	reg := NewRegistry()
	reg.HandleEmit("onClick", handler)
	reg.HandleEmit("onChange", func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		t.Error("wrong trigger")
		return nil, nil
	})

	item := map[string]interface{}{"name": "Bob", "age": 42.0}
	c := NewActionChain([]interface{}{
		map[string]interface{}{
			Emit: map[string]interface{}{
				"dataKey": map[string]interface{}{"var1": "itemObject", "var2": "itemObject.name", "var3": ".Root.x"},
				"actions": []interface{}{},
			},
		},
	}, &Options{
		Registry:    reg,
		Trigger:     []string{"onClick"},
		IteratorVar: "itemObject",
		ListItem:    item,
		Deref: func(args DerefArgs) interface{} {
			if args.Ref == ".Root.x" {
				return "deref'd"
			}
			return nil
		},
	})

	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]interface{}{
		"var1": item,
		"var2": "Bob",
		"var3": "deref'd",
	}, got[0])
}

func TestChainUseAction(t *testing.T) {
	o := &order{}
	c := NewActionChain([]interface{}{named(Goto, "g")}, nil)
	assert.Empty(t, c.Actions())

	require.NoError(t, c.UseAction(
		&Registration{ActionType: Goto, Fn: o.named(1)},
		&Registration{ActionType: Goto, Fn: o.named(2)},
	))
	require.NoError(t, c.UseBuiltIn(&Registration{FuncName: "f", Fn: o.named(3)}))
	assert.Error(t, c.UseBuiltIn(&Registration{ActionType: Goto, Fn: o.named(4)}))
	assert.Equal(t, ErrNoHandlerFunc, c.UseAction(&Registration{ActionType: Goto}))

	require.Len(t, c.Actions(), 1)
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{[]interface{}{1, 2}}, r.Results)
}

func TestChainConsumerOptions(t *testing.T) {
	var seen []*ConsumerOptions
	h := func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		seen = append(seen, opts)
		return nil, nil
	}
	reg := NewRegistry().Handle(Goto, h).Handle(Goto, h)
	comp := struct{ ID string }{"button"}
	c := NewActionChain([]interface{}{named(Goto, "a"), named(Goto, "b")}, &Options{
		Registry:  reg,
		Component: comp,
		Trigger:   []string{"onClick"},
	})

	_, err := c.Run(context.Background(), "click")
	require.NoError(t, err)
	require.Len(t, seen, 4)
	assert.NotSame(t, seen[0], seen[1])
	for _, opts := range seen {
		assert.Equal(t, "click", opts.Event)
		assert.Same(t, c, opts.Ref)
		assert.Equal(t, comp, opts.Component)
		assert.Equal(t, ChainInProgress, opts.Status.State)
	}
	assert.Len(t, seen[0].Queue, 1)
	assert.Len(t, seen[2].Queue, 0)
	require.NotNil(t, seen[2].Snapshot.CurrentAction)
	assert.Equal(t, "b", seen[2].Snapshot.CurrentAction.Original["name"])
}

func TestChainPattern(t *testing.T) {
	o := &order{}
	reg := NewRegistry()
	require.NoError(t, reg.Register(
		&Registration{
			ActionType: Goto,
			Pattern:    map[string]interface{}{"destination": "?to"},
			Fn: func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
				o.add(fmt.Sprint(opts.Bindings["?to"]))
				return nil, nil
			},
		},
		&Registration{ActionType: Goto, Fn: o.named(nil)},
	))
	c := NewActionChain([]interface{}{
		map[string]interface{}{"actionType": Goto, "destination": "SignIn", "name": "first"},
		map[string]interface{}{"actionType": Goto, "name": "second"},
	}, &Options{Registry: reg})
	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SignIn", "first", "second"}, o.get())
}

func TestChainAbortFromHandler(t *testing.T) {
	o := &order{}
	reg := NewRegistry().
		Handle(EvalObject, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			opts.Ref.Abort("from handler")
			return "ok", nil
		}).
		Handle(Goto, o.named(nil))
	c := NewActionChain([]interface{}{named(EvalObject, "e"), named(Goto, "g")},
		&Options{Registry: reg})
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, o.get())
	assert.Equal(t, []interface{}{"ok"}, r.Results)
	assert.True(t, r.Aborted())
}

func TestChainSub(t *testing.T) {
	o := &order{}
	reg := NewRegistry()
	reg.HandleEmit("", func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		sub := opts.Ref.Sub(a.EmitAction().Actions)
		r, err := sub.Run(ctx, opts.Event)
		if err != nil {
			return nil, err
		}
		return r.Results, nil
	})
	reg.Handle(Goto, o.named("went"))

	c := NewActionChain([]interface{}{
		map[string]interface{}{
			Emit: map[string]interface{}{
				"actions": []interface{}{named(Goto, "nested")},
			},
		},
	}, &Options{Registry: reg, Trigger: []string{"path"}})

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"nested"}, o.get())
	assert.Equal(t, []interface{}{[]interface{}{"went"}}, r.Results)
}

func TestChainHooksAndTraces(t *testing.T) {
	var events []string
	var mu sync.Mutex
	note := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	reg := NewRegistry().
		Handle(EvalObject, (&order{}).named(map[string]interface{}{"actionType": Goto})).
		Handle(Goto, (&order{}).named(nil))
	c := NewActionChain([]interface{}{named(EvalObject, "e")}, &Options{
		Registry: reg,
		Hooks: &Hooks{
			OnStart:        func(c *ActionChain, event interface{}) { note("start") },
			OnActionStart:  func(c *ActionChain, a *Action) { note("exec " + a.Type) },
			OnIntermediary: func(c *ActionChain, a *Action) { note("inject " + a.Type) },
			OnDone:         func(c *ActionChain, r *Result) { note("done") },
		},
	})
	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "exec evalObject", "inject goto", "exec goto", "done"}, events)
	require.NotNil(t, r.Traces)
	assert.NotEmpty(t, r.Traces.Messages)
}

func TestChainNotRunnableWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	reg := NewRegistry().Handle(PopUp, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	c := NewActionChain([]interface{}{named(PopUp, "p")}, &Options{Registry: reg})

	errs := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), nil)
		errs <- err
	}()
	<-started
	_, err := c.Run(context.Background(), nil)
	assert.Equal(t, ErrNotRunnable, err)
	close(release)
	require.NoError(t, <-errs)
}

func TestChainSnapshot(t *testing.T) {
	c := NewActionChain([]interface{}{named(Goto, "g")},
		&Options{Registry: NewRegistry().Handle(Goto, (&order{}).named(nil))})
	s := c.GetSnapshot()
	assert.Nil(t, s.CurrentAction)
	assert.Len(t, s.Original, 1)
	assert.Len(t, s.Queue, 1)
	assert.Equal(t, ChainIdle, s.Status.State)

	run := c.Build()
	_, err := run(context.Background(), nil)
	require.NoError(t, err)
}

func TestChainLateHandlerAfterTimeout(t *testing.T) {
	o := &order{}
	finished := make(chan struct{})
	reg := NewRegistry().
		Handle(EvalObject, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			defer close(finished)
			time.Sleep(150 * time.Millisecond)
			return nil, nil
		}).
		Handle(EvalObject, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			o.add("second")
			return map[string]interface{}{"goto": "Late"}, nil
		}).
		Handle(Goto, o.named(nil))

	c := NewActionChain([]interface{}{
		map[string]interface{}{"actionType": EvalObject, "timeout": 50},
	}, &Options{Registry: reg})

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ChainDone, r.Status.State)
	assert.Equal(t, []interface{}{nil}, r.Results)

	<-finished
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, o.get())
	assert.Equal(t, ChainIdle, c.Status().State)
	assert.Len(t, c.GetQueue(), 1)
	assert.Len(t, c.Actions(), 1)
	assert.Empty(t, c.Intermediary())
}

func TestChainInjectTiedToRun(t *testing.T) {
	var (
		mu    sync.Mutex
		first *ConsumerOptions
		stale error
	)
	reg := NewRegistry().
		Handle(EvalObject, func(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			if first == nil {
				first = opts
				return nil, nil
			}
			_, stale = first.Inject(named(Goto, "stale"))
			return nil, nil
		}).
		Handle(Goto, (&order{}).named(nil))

	c := NewActionChain([]interface{}{named(EvalObject, "e")}, &Options{Registry: reg})

	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)

	// The first run is over.
	_, err = first.Inject(named(Goto, "late"))
	assert.Equal(t, ErrNotInProgress, err)
	_, err = c.InsertIntermediaryAction(named(Goto, "idle"))
	assert.Equal(t, ErrNotInProgress, err)
	assert.Len(t, c.GetQueue(), 1)

	r, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ErrNotInProgress, stale)
	assert.Len(t, r.Results, 1)
	assert.Empty(t, c.Intermediary())
}

func TestChainAbortIgnoredAfterRun(t *testing.T) {
	var opts *ConsumerOptions
	reg := NewRegistry().
		Handle(EvalObject, func(ctx context.Context, a *Action, o *ConsumerOptions) (interface{}, error) {
			opts = o
			return nil, nil
		})
	c := NewActionChain([]interface{}{named(EvalObject, "e")}, &Options{Registry: reg})

	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)

	_, ok := c.abortRun(opts.Run, "late")
	assert.False(t, ok)
	assert.Equal(t, ChainIdle, c.Status().State)
	assert.Len(t, c.GetQueue(), 1)
}
