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

// Package main is the noodl command.
//
//	noodl run pages/signin.yaml submit --event '{"email":"a@b.c"}'
//	noodl serve --stdio pages/
//	noodl serve --mqtt --ws pages/
//	noodl render --format mermaid pages/signin.yaml
//	noodl match '{"actionType":"?t"}' '{"actionType":"toast"}'
//
// Settings come from ./noodl.yaml (or --config), NOODL_* environment
// variables (NOODL_CHAIN_TIMEOUT_DELAY=2s), and flags.
package main

import (
	"context"
	"os"

	"github.com/Comcast/noodl/util"
)

func main() {
	root, _ := newRootCmd()
	err := root.ExecuteContext(context.Background())
	util.Logger().Sync()
	if err != nil {
		os.Exit(1)
	}
}
