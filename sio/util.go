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

package sio

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// JS renders x as JSON, falling back to Go syntax.
func JS(x interface{}) string {
	if x == nil {
		return "null"
	}
	js, err := json.Marshal(x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(js)
}

// ShortLimit is where JShort truncates.
var ShortLimit = 70

// JShort is JS truncated to ShortLimit bytes (plus "...").
func JShort(x interface{}) string {
	js := JS(x)
	if len(js) <= ShortLimit {
		return js
	}
	return js[:ShortLimit] + "..."
}

var shellCommand = regexp.MustCompile(`<<(.*?)>>`)

// ShellExpand replaces each <<COMMAND>> with the command's output
// (without trailing newlines).  The commands run with "sh -c", so
// only use this with input you trust.
func ShellExpand(ctx context.Context, line string) (string, error) {
	var err error
	expanded := shellCommand.ReplaceAllStringFunc(line, func(m string) string {
		if err != nil {
			return ""
		}
		command := shellCommand.FindStringSubmatch(m)[1]
		out, runErr := exec.CommandContext(ctx, "sh", "-c", command).Output()
		if runErr != nil {
			err = fmt.Errorf("shell error %w on %s", runErr, command)
			return ""
		}
		return strings.TrimRight(string(out), "\n")
	})
	if err != nil {
		return "", err
	}
	return expanded, nil
}
