/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package main

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/Comcast/noodl/match"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newMatchCmd is handy for checking what a handler pattern matches.
func newMatchCmd(a *app) *cobra.Command {
	var (
		bindings string
		want     string
	)

	cmd := &cobra.Command{
		Use:   "match PATTERN ACTION",
		Short: "Match a JSON pattern against a JSON action object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pattern, fact interface{}
			if err := json.Unmarshal([]byte(args[0]), &pattern); err != nil {
				return fmt.Errorf("bad pattern: %w", err)
			}
			if err := json.Unmarshal([]byte(args[1]), &fact); err != nil {
				return fmt.Errorf("bad action: %w", err)
			}

			bs := match.NewBindings()
			if bindings != "" {
				if err := json.Unmarshal([]byte(bindings), &bs); err != nil {
					return fmt.Errorf("bad --bindings: %w", err)
				}
			}

			bss, err := match.Match(pattern, fact, bs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if want == "" {
				return writeJSON(out, bss)
			}

			var wanted []match.Bindings
			if err := json.Unmarshal([]byte(want), &wanted); err != nil {
				return fmt.Errorf("bad --want: %w", err)
			}
			ok := sameBindings(wanted, bss, a.logger)
			fmt.Fprintf(out, "%v\n", ok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bindings, "bindings", "b", "", "initial bindings (JSON)")
	cmd.Flags().StringVarP(&want, "want", "w", "", "expected bindings (JSON array); prints true or false")

	return cmd
}

// sameBindings checks that every wanted Bindings appears in what we
// got.
func sameBindings(want, got []match.Bindings, logger *zap.Logger) bool {
WANTED:
	for _, w := range want {
		for _, g := range got {
			if subset(w, g, logger) && subset(g, w, logger) {
				continue WANTED
			}
		}
		return false
	}
	return true
}

// subset checks that Bindings x is a subset of Bindings y.
func subset(x, y match.Bindings, logger *zap.Logger) bool {
	for p, bx := range x {
		by, have := y[p]
		if !have {
			return false
		}
		if !reflect.DeepEqual(bx, by) {
			logger.Debug("disagreement", zap.String("var", p), zap.Any("x", bx), zap.Any("y", by))
			return false
		}
	}
	return true
}
