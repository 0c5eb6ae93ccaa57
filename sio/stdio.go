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

package sio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stdio is a fairly simple Couplings that uses stdin for input and
// stdout for output.
//
// Each input line is a JSON request.  Blank lines and lines starting
// with '#' are ignored, and "quit" ends the input.
type Stdio struct {
	// In is coupled to Service input.
	In io.Reader

	// Out is coupled to Service output.
	Out io.Writer

	// ShellExpand enables input to include inline shell commands
	// delimited by '<<' and '>>'.  Use at your own risk, of
	// course!
	ShellExpand bool

	// Timestamps prepends a timestamp to each output line.
	Timestamps bool

	// EchoInput writes input lines (prepended with "input") to
	// the output.
	EchoInput bool

	// Tags prefixes tags indicating type of output ("input",
	// "result", "error", "trace").
	Tags bool

	// PadTags adds some padding to tags used in output.
	PadTags bool

	// PrintTraces turns on printing of chain traces (when the
	// Service includes them).
	PrintTraces bool

	// InputEOF will be closed on EOF from stdin.
	InputEOF chan bool

	Logger *zap.Logger

	wg sync.WaitGroup
	mu sync.Mutex
}

// NewStdio creates a new Stdio.
//
// In and Out are initialized with os.Stdin and os.Stdout
// respectively.
func NewStdio(shellExpand bool, logger *zap.Logger) *Stdio {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stdio{
		In:          os.Stdin,
		Out:         os.Stdout,
		ShellExpand: shellExpand,
		InputEOF:    make(chan bool),
		Logger:      logger,
	}
}

// Start does nothing.
func (s *Stdio) Start(ctx context.Context) error {
	return nil
}

// Stop waits until output is complete.
func (s *Stdio) Stop(ctx context.Context) error {
	finished := make(chan bool)
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-finished:
		return nil
	}
}

func (s *Stdio) printf(tag, format string, args ...interface{}) {
	if s.PadTags {
		tag = fmt.Sprintf("% 10s", tag)
	}
	if s.Tags {
		format = tag + " " + format
	}
	if s.Timestamps {
		ts := fmt.Sprintf("%-31s", time.Now().UTC().Format(time.RFC3339Nano))
		format = ts + " " + format
	}

	s.mu.Lock()
	fmt.Fprintf(s.Out, format, args...)
	s.mu.Unlock()
}

// IO returns channels for reading from stdin and writing to stdout.
func (s *Stdio) IO(ctx context.Context) (chan interface{}, chan *Response, chan bool, error) {
	in := make(chan interface{})
	done := make(chan bool)

	go func() {
		defer close(s.InputEOF)
		defer close(done)
		stdin := bufio.NewReader(s.In)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line, err := stdin.ReadString('\n')
			if err != nil && err != io.EOF {
				s.Logger.Error("stdin", zap.Error(err))
				return
			}
			eof := err == io.EOF
			if strings.TrimSpace(line) == "quit" {
				return
			}
			if s.EchoInput && line != "" {
				s.printf("input", "%s", line)
			}
			if strings.HasPrefix(line, "#") || len(strings.TrimSpace(line)) == 0 {
				if eof {
					return
				}
				continue
			}
			if s.ShellExpand {
				if line, err = ShellExpand(ctx, line); err != nil {
					s.Logger.Error("shell expansion", zap.Error(err))
					return
				}
			}

			var msg interface{}
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				s.printf("error", "bad input: %s\n", err)
			} else {
				select {
				case <-ctx.Done():
					return
				case in <- msg:
				}
			}
			if eof {
				return
			}
		}
	}()

	out := make(chan *Response)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for r := range out {
			if r.Error != "" {
				s.printf("error", "%s\n", JS(r))
			} else {
				s.printf("result", "%s\n", JS(r))
			}
			if s.PrintTraces && r.Traces != nil {
				for _, t := range r.Traces.Messages {
					s.printf("trace", "%s\n", JShort(t))
				}
			}
		}
		s.Logger.Debug("stdio output done")
	}()

	return in, out, done, nil
}
