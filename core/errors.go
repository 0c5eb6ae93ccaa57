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

// Most of these errors are user errors (bad action objects, missing
// handlers), not internal errors.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAborted is what every AbortExecuteError Is.
	ErrAborted = errors.New("aborted")

	// ErrNotRunnable occurs when a chain is asked to run while
	// it's already running.
	ErrNotRunnable = errors.New("chain is already in progress")

	// ErrNotInProgress occurs when something tries to change the
	// queue of a chain run that's over.
	ErrNotInProgress = errors.New("chain run is not in progress")
)

// AbortExecuteError is the control-flow signal for an aborted action
// or chain.
//
// An Action's Abort method always returns one.  A chain returns one
// from Run when a handler failed or when the execute watchdog fired.
// The Cause (if any) is the original error.
type AbortExecuteError struct {
	Reasons []string
	Cause   error
}

// NewAbortExecuteError makes an AbortExecuteError with the given
// reasons (empty reasons are ignored).
func NewAbortExecuteError(cause error, reasons ...string) *AbortExecuteError {
	rs := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r != "" {
			rs = append(rs, r)
		}
	}
	return &AbortExecuteError{
		Reasons: rs,
		Cause:   cause,
	}
}

func (e *AbortExecuteError) Error() string {
	if len(e.Reasons) == 0 {
		return "aborted"
	}
	return "aborted: " + strings.Join(e.Reasons, ", ")
}

func (e *AbortExecuteError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrAborted) work for any
// AbortExecuteError.
func (e *AbortExecuteError) Is(target error) bool {
	return target == ErrAborted
}

// IsAbort reports whether the given error is (or wraps) an
// AbortExecuteError.
func IsAbort(err error) bool {
	var ae *AbortExecuteError
	return errors.As(err, &ae)
}

// UnknownActionType occurs when an action object has an actionType
// for which there is no creator.  Not fatal: the chain drops the
// action and continues.
type UnknownActionType struct {
	ActionType string
}

func (e *UnknownActionType) Error() string {
	return `unknown actionType "` + e.ActionType + `"`
}

// MissingHandler occurs when nothing is registered for an action's
// type (or for a builtIn's funcName).  Also not fatal.
type MissingHandler struct {
	ActionType string
	FuncName   string
}

func (e *MissingHandler) Error() string {
	if e.FuncName != "" {
		return `no builtIn registered for funcName "` + e.FuncName + `"`
	}
	return `no handler registered for actionType "` + e.ActionType + `"`
}

// BadActionObject occurs when something in an action list can't be
// normalized into an ActionObject.
type BadActionObject struct {
	Index int
	Thing interface{}
}

func (e *BadActionObject) Error() string {
	return fmt.Sprintf("bad action object at %d: %#v (%T)", e.Index, e.Thing, e.Thing)
}

// HandlerPanic wraps a value that a handler panicked with.
type HandlerPanic struct {
	Value interface{}
}

func (e *HandlerPanic) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}
