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

package page

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signIn = `
name: SignIn
doc: The *sign-in* page.
root:
  formData:
    email: homer@example.com
chains:
  submit:
    doc: Show the email and go home.
    trigger: [onClick]
    actions:
      - actionType: emit
        emit:
          dataKey: ..formData
      - actionType: popUp
        popUpView: welcome
      - Home
  cancel:
    actions:
      - actionType: goto
        goto: Welcome
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(signIn))
	require.NoError(t, err)
	assert.Equal(t, "SignIn", p.Name)
	assert.Equal(t, []string{"cancel", "submit"}, p.ChainNames())
	assert.Equal(t, []string{"onClick"}, p.Chains["submit"].Trigger)
	assert.Len(t, p.Chains["submit"].Actions, 3)
	assert.Equal(t, "homer@example.com", core.Lookup(p.Root, "formData.email"))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("doc: nameless\n"))
	assert.Equal(t, ErrNoName, err)

	_, err = Parse([]byte("name: X\nchains:\n  c:\n    actions:\n      - 42\n"))
	var bad *BadAction
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, "c", bad.Chain)
	assert.Equal(t, 0, bad.Index)

	_, err = Parse([]byte("name: [\n"))
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "page")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	filename := filepath.Join(dir, "signin.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte(signIn), 0644))

	p, err := ParseFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "SignIn", p.Name)

	_, err = ParseFile(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	p, err := Parse([]byte(signIn))
	require.NoError(t, err)

	root := store.NewRoot(nil, nil)
	p.Init(root)

	var (
		seen     []string
		emitData interface{}
		trigger  string
	)
	reg := core.NewRegistry()
	reg.HandleEmit("onClick", func(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
		emitData = a.EmitAction().DataKey()
		trigger = a.EmitAction().Trigger
		return nil, nil
	})
	for _, at := range []string{core.PopUp, core.Goto} {
		at := at
		reg.Handle(at, func(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
			seen = append(seen, at)
			assert.Equal(t, "SignIn", opts.PageName())
			return nil, nil
		})
	}

	c, err := p.Chain("submit", root, &core.Options{Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, []string{"onClick"}, c.Triggers())

	res, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Aborted())
	assert.Equal(t, []string{core.PopUp, core.Goto}, seen)
	assert.Equal(t, "onClick", trigger)
	assert.Equal(t, map[string]interface{}{"email": "homer@example.com"}, emitData)

	_, err = p.Chain("nope", root, nil)
	var uc *UnknownChain
	assert.True(t, errors.As(err, &uc))
}

func TestInitKeepsExisting(t *testing.T) {
	p, err := Parse([]byte(signIn))
	require.NoError(t, err)

	root := store.NewRoot(nil, nil)
	require.NoError(t, root.Set(context.Background(), "SignIn.formData.email", "marge@example.com"))
	p.Init(root)
	assert.Equal(t, "marge@example.com", root.Get("SignIn.formData.email"))
}
