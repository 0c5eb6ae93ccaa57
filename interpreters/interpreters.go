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

// Package interpreters assembles the standard handlers.
package interpreters

import (
	"github.com/Comcast/noodl/core"
	"github.com/Comcast/noodl/interpreters/goja"
	"github.com/Comcast/noodl/interpreters/noop"

	"go.uber.org/zap"
)

// UIActionTypes are the action types that only a UI can really
// handle.
var UIActionTypes = []string{
	core.Goto,
	core.PageJump,
	core.PopUp,
	core.PopUpDismiss,
	core.Refresh,
	core.Toast,
}

// Standard registers the JavaScript handlers (see package goja) and
// log-only handlers for UIActionTypes.  The Interpreter is returned
// so that the caller can add BuiltIns before registering more.
func Standard(reg *core.Registry, libDir string, logger *zap.Logger) (*goja.Interpreter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	js := goja.NewInterpreter()
	js.Logger = logger.Named("goja")
	if libDir != "" {
		js.LibraryProvider = goja.MakeFileLibraryProvider(libDir)
	}
	if err := js.Register(reg); err != nil {
		return nil, err
	}

	if err := noop.NewHandler(logger.Named("noop")).Register(reg, UIActionTypes...); err != nil {
		return nil, err
	}

	return js, nil
}
