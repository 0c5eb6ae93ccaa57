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
	"sync"
	"testing"
)

func nop(ctx context.Context, a *Action, opts *ConsumerOptions) (interface{}, error) {
	return nil, nil
}

func TestRegistryTables(t *testing.T) {
	r := NewRegistry().
		Handle(Goto, nop).
		Handle(Goto, nop).
		Handle(PopUp, nop).
		HandleBuiltIn("redraw", nop).
		HandleEmit("onClick", nop).
		HandleEmit("", nop)

	if n := len(r.Actions(Goto)); n != 2 {
		t.Fatalf("wanted 2 goto handlers, not %d", n)
	}
	if n := len(r.BuiltIns("redraw")); n != 1 {
		t.Fatal(n)
	}
	if n := len(r.Emits("onClick")); n != 2 {
		t.Fatal(n)
	}
	if n := len(r.Emits("onChange")); n != 1 {
		t.Fatal(n)
	}
	if n := len(r.Emits("onClick", "onClick")); n != 2 {
		t.Fatalf("duplicate triggers: %d", n)
	}

	types := r.ActionTypes()
	want := []string{Emit, Goto, PopUp}
	if len(types) != len(want) {
		t.Fatal(types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatal(types)
		}
	}
	if names := r.FuncNames(); len(names) != 1 || names[0] != "redraw" {
		t.Fatal(names)
	}
}

func TestRegistryNoFn(t *testing.T) {
	if err := NewRegistry().Register(&Registration{ActionType: Goto}); err != ErrNoHandlerFunc {
		t.Fatal(err)
	}
}

func TestRegistryChainsCopy(t *testing.T) {
	r := NewRegistry().Handle(Goto, nop)
	c := NewActionChain([]interface{}{"SignIn"}, &Options{Registry: r})
	if err := c.UseAction(&Registration{ActionType: Goto, Fn: nop}); err != nil {
		t.Fatal(err)
	}
	if n := len(r.Actions(Goto)); n != 1 {
		t.Fatalf("chain registration leaked into registry: %d", n)
	}
}

func TestRegistryConcurrentReaders(t *testing.T) {
	r := NewRegistry().Handle(Goto, nop)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewActionChain([]interface{}{"SignIn", "Dashboard"}, &Options{Registry: r})
			if _, err := c.Run(context.Background(), nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}
