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
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Comcast/noodl/sio"
	"github.com/Comcast/noodl/tools/expect"

	"github.com/jsccast/yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newExpectCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		dir     string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "expect SESSION [PAGE...] [-- COMMAND ARGS...]",
		Short: "Run a test session against pages (or against a command)",
		Long: `Run a test session.

Without a command, the pages are served in this process.  With a
command (after "--"), the session talks to that command's stdin and
stdout instead:

  noodl expect signin.test.yaml pages/
  noodl expect signin.test.yaml -- noodl serve --stdio pages/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bs, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var s expect.Session
			if err := yaml.Unmarshal(bs, &s); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			s.Logger = a.logger.Named("expect")
			if verbose {
				s.ShowStderr = true
				s.ShowStdin = true
				s.ShowStdout = true
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			rest := args[1:]
			if dash := cmd.ArgsLenAtDash(); 0 <= dash {
				if dash < 1 {
					return expect.ErrNoCommand
				}
				err = s.Run(ctx, dir, args[dash:]...)
			} else {
				err = a.expectInProcess(ctx, &s, rest)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "session timeout")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "working directory for the command")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log requests and responses")

	return cmd
}

// expectInProcess serves the pages with stdio couplings over pipes
// and runs the session against them.
func (a *app) expectInProcess(ctx context.Context, s *expect.Session, pageArgs []string) error {
	pages, err := readPages(pageArgs)
	if err != nil {
		return err
	}
	e, err := a.newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close(context.Background())

	svc := sio.NewService(e.Root, e.Options, a.logger.Named("service"))
	for _, p := range pages {
		svc.AddPage(p)
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	std := sio.NewStdio(false, a.logger.Named("stdio"))
	std.In = inR
	std.Out = outW
	std.Tags = true

	done := make(chan error, 1)
	go func() {
		err := svc.Loop(ctx, std)
		std.Stop(context.Background())
		outW.Close()
		done <- err
	}()

	err = s.RunIO(ctx, inW, outR)
	inW.Close()
	// Drain anything still being written.
	go io.Copy(io.Discard, outR)
	if loopErr := <-done; loopErr != nil {
		a.logger.Warn("service loop", zap.Error(loopErr))
	}
	return err
}
