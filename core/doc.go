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

// Package core provides the engine that executes NOODL action
// chains.
//
// An action object is a small, loosely-typed map such as
//
//    {"actionType": "goto", "destination": "SignIn"}
//
// A list of action objects is attached to some event (a click, an
// emit, a data change).  When that event fires, the application makes
// an ActionChain from the list and runs it.
//
// The chain does not know how to "goto" anything.  Instead, the
// application registers HandlerFuncs in a Registry, keyed by action
// type, by built-in function name ("builtIn" actions), or by trigger
// ("emit" actions).  When a chain is made, each action object is
// turned into an Action whose callback fans out to every matching
// handler.
//
// The chain then executes its Actions one at a time, in order.  A
// handler can influence what happens next:
//
//   - by returning an Inject outcome (or, for compatibility, a map
//     with an "actionType" property), which puts a new action at the
//     front of the remaining queue;
//
//   - by returning a Wait outcome (or a map with a "wait" property),
//     which stops the chain without treating that as an error;
//
//   - by returning an Abort outcome (or the string "abort"), which
//     aborts the chain;
//
//   - by returning an error, which aborts the chain and is reported
//     to the caller as an AbortExecuteError.
//
// Every Action has its own timeout (TimeoutDelay), and the chain has a
// separate watchdog (ExecuteTimeout) for each step.  Neither can
// preempt a handler that ignores its context, but both make sure the
// chain moves on.
//
// After every run, successful or not, the chain refreshes itself: it
// rebuilds its Actions from the original action objects so that it's
// ready to run again.
package core
