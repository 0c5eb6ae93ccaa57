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

package main

import (
	"encoding/json"
	"fmt"

	"github.com/Comcast/noodl/sio"

	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		event  string
		traces bool
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "run PAGEFILE CHAIN",
		Short: "Run one chain from a page document and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var evt interface{}
			if event != "" {
				if err := json.Unmarshal([]byte(event), &evt); err != nil {
					return fmt.Errorf("bad --event: %w", err)
				}
			}

			pages, err := readPages(args[:1])
			if err != nil {
				return err
			}

			e, err := a.newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			s := sio.NewService(e.Root, e.Options, a.logger)
			s.Traces = traces
			for _, p := range pages {
				s.AddPage(p)
			}

			r := s.Process(ctx, &sio.Request{
				Page:  pages[0].Name,
				Chain: args[1],
				Event: evt,
			})

			var js []byte
			if pretty {
				js, err = json.MarshalIndent(r, "", "  ")
			} else {
				js, err = json.Marshal(r)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", js)

			if r.Error != "" {
				return fmt.Errorf("chain %s: %s", args[1], r.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&event, "event", "e", "", "JSON event passed to the chain")
	cmd.Flags().BoolVar(&traces, "traces", false, "include chain traces")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")

	return cmd
}
