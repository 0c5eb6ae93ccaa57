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
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/noodl/sio"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoCouplings = errors.New("need at least one of --stdio, --mqtt, --ws")

type serveFlags struct {
	stdio       bool
	mqtt        bool
	ws          bool
	concurrency int
	traces      bool
	tags        bool
	echo        bool
	shellExpand bool
	brokerURL   string
	listen      string
}

func newServeCmd(a *app) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve PAGE...",
		Short: "Serve chain requests for page documents (files or directories)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !(f.stdio || f.mqtt || f.ws) {
				return ErrNoCouplings
			}
			if f.brokerURL != "" {
				a.cfg.MQTT.Broker = f.brokerURL
			}
			if f.listen != "" {
				a.cfg.WebSocket.Listen = f.listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.serve(ctx, cmd, f, args)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&f.stdio, "stdio", false, "read requests from stdin and write responses to stdout")
	fs.BoolVar(&f.mqtt, "mqtt", false, "serve requests over MQTT")
	fs.BoolVar(&f.ws, "ws", false, "serve requests over WebSockets")
	fs.IntVar(&f.concurrency, "concurrency", 0, "max chains running at once (0 means no limit)")
	fs.BoolVar(&f.traces, "traces", false, "include chain traces in responses")
	fs.BoolVar(&f.tags, "tags", true, "prefix stdio output lines with tags")
	fs.BoolVar(&f.echo, "echo", false, "echo stdio input")
	fs.BoolVar(&f.shellExpand, "sh", false, "expand <<shell commands>> in stdio input")
	fs.StringVar(&f.brokerURL, "broker", "", "MQTT broker URL (overrides config)")
	fs.StringVar(&f.listen, "listen", "", "WebSocket listen address (overrides config)")

	return cmd
}

func (a *app) serve(ctx context.Context, cmd *cobra.Command, f *serveFlags, args []string) error {
	pages, err := readPages(args)
	if err != nil {
		return err
	}

	e, err := a.newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close(context.Background())

	s := sio.NewService(e.Root, e.Options, a.logger.Named("service"))
	s.Concurrency = f.concurrency
	s.Traces = f.traces
	for _, p := range pages {
		s.AddPage(p)
	}

	g, gctx := errgroup.WithContext(ctx)

	if f.stdio {
		std := sio.NewStdio(f.shellExpand, a.logger.Named("stdio"))
		std.In = cmd.InOrStdin()
		std.Out = cmd.OutOrStdout()
		std.Tags = f.tags
		std.EchoInput = f.echo
		std.PrintTraces = f.traces
		// The stdio loop ends at EOF without canceling the other
		// couplings.
		g.Go(func() error {
			return a.couple(gctx, s, std)
		})
	}

	if f.mqtt {
		mc := sio.NewMQTTCouplings(gctx, a.cfg.MQTT, a.logger.Named("mqtt"))
		mc.InjectTopic = true
		g.Go(func() error {
			return a.couple(gctx, s, mc)
		})
	}

	if f.ws {
		g.Go(func() error {
			return s.ServeWebSockets(gctx, a.cfg.WebSocket)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// couple runs a Service Loop for the Couplings.
func (a *app) couple(ctx context.Context, s *sio.Service, c sio.Couplings) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	loopErr := s.Loop(ctx, c)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil {
		a.logger.Warn("stop", zap.Error(err))
	}
	return loopErr
}
