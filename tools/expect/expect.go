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

// Package expect is a tool for testing pages end to end.
//
// You construct a Session, which has chain requests to send and
// expected responses.  Then run the session against a "noodl serve
// --stdio" process (or anything else that speaks that line protocol)
// to see if the expected responses actually appeared.
//
//	doc: Submitting the sign-in form
//	defaultTimeout: 2s
//	ios:
//	  - inputs:
//	      - {"id":"1","page":"SignIn","chain":"submit"}
//	    outputSet:
//	      - pattern: {"id":"1","status":{"state":"done"}}
//	      - pattern: {"error":"?err"}
//	        inverted: true
//
// An Output can also have a JavaScript guard that checks the
// bindings from its match:
//
//	guard: return bs["?n"] > 2;
package expect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/Comcast/noodl/match"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var (
	ErrTimeout   = errors.New("timeout")
	ErrNoCommand = errors.New("need a command (and optional args)")
)

// Undesired is returned when an Inverted Output matched.
type Undesired struct {
	Output  *Output
	Message interface{}
}

func (e *Undesired) Error() string {
	js, _ := json.Marshal(e.Message)
	return fmt.Sprintf("undesired output %s", js)
}

// Output is a specification for a response that's expected.
type Output struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Pattern must be matched by a response.
	Pattern interface{} `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Guard is optional JavaScript that's called with the match's
	// bindings (as "bs").  The match only counts if the guard
	// returns something truthy.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`

	// Inverted means that matching output isn't desired!
	Inverted bool `json:"inverted,omitempty" yaml:"inverted,omitempty"`
}

// IO is a package of requests and required response
// specifications.
type IO struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// WaitBefore is the time to wait before sending the first
	// request.
	WaitBefore time.Duration `json:"waitBefore,omitempty" yaml:"waitBefore,omitempty"`

	// WaitBetween is the time to wait between sending requests.
	WaitBetween time.Duration `json:"waitBetween,omitempty" yaml:"waitBetween,omitempty"`

	// Inputs are the requests to send.  Strings are sent as is;
	// anything else is sent as JSON.
	Inputs []interface{} `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// WaitAfter is the time to wait after sending the last
	// request.
	WaitAfter time.Duration `json:"waitAfter,omitempty" yaml:"waitAfter,omitempty"`

	// OutputSet is the set (not a list) of outputs to verify.
	OutputSet []Output `json:"outputSet,omitempty" yaml:"outputSet,omitempty"`

	// Timeout is the optional timeout for this set.
	// Session.DefaultTimeout is the default value.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Session is mostly a sequence of IOs.
type Session struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// IOs is sequence of IOs that this session will run.
	IOs []IO `json:"ios" yaml:"ios"`

	// ParsePatterns will parse Output.Patterns as JSON.
	ParsePatterns bool `json:"parsePatterns,omitempty" yaml:"parsePatterns,omitempty"`

	// DefaultTimeout is the default timeout for each IO.
	DefaultTimeout time.Duration `json:"defaultTimeout,omitempty" yaml:"defaultTimeout,omitempty"`

	// ShowStderr controls whether the subprocess's stderr is
	// logged.
	ShowStderr bool `json:"showStderr,omitempty" yaml:"showStderr,omitempty"`

	// ShowStdin controls whether requests are logged.
	ShowStdin bool `json:"showStdin,omitempty" yaml:"showStdin,omitempty"`

	// ShowStdout controls whether response lines are logged.
	ShowStdout bool `json:"showStdout,omitempty" yaml:"showStdout,omitempty"`

	// OutputPrefix is stripped from response lines.  Otherwise a
	// leading tag like "result" or "error" is skipped.
	OutputPrefix string `json:"outputPrefix,omitempty" yaml:"outputPrefix,omitempty"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

func (s *Session) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Run starts the subprocess given by the args and then does RunIO
// with its stdin and stdout.  The first arg is the executable.
// Example args:
//
//	"noodl", "serve", "--stdio", "pages/"
//
// The subprocess runs in dir unless dir is empty.
func (s *Session) Run(ctx context.Context, dir string, args ...string) error {
	if len(args) == 0 {
		return ErrNoCommand
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		in := bufio.NewReader(stderr)
		for {
			line, err := in.ReadBytes('\n')
			if err != nil {
				return
			}
			if s.ShowStderr {
				s.logger().Info("stderr", zap.ByteString("line", bytes.TrimSpace(line)))
			}
		}
	}()

	runErr := s.RunIO(ctx, stdin, stdout)

	if err := stdin.Close(); err != nil {
		s.logger().Warn("closing stdin", zap.Error(err))
	}

	if runErr != nil {
		cancel()
		cmd.Wait()
		return runErr
	}
	return cmd.Wait()
}

// RunIO processes all the IOs in the Session by writing requests to
// w and reading responses from r.
func (s *Session) RunIO(ctx context.Context, w io.Writer, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		in := bufio.NewReader(r)
		for {
			line, err := in.ReadBytes('\n')
			if 0 < len(line) {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for i := range s.IOs {
		if err := s.runIO(ctx, &s.IOs[i], w, lines); err != nil {
			if err == io.EOF {
				select {
				case err = <-readErr:
				default:
				}
			}
			return fmt.Errorf("io %d: %w", i, err)
		}
	}
	return nil
}

func (s *Session) runIO(ctx context.Context, iop *IO, w io.Writer, lines chan []byte) error {
	timeout := iop.Timeout
	if timeout == 0 {
		timeout = s.DefaultTimeout
	}
	if 0 < timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sent := make(chan error, 1)
	go func() {
		sent <- s.send(ctx, iop, w)
	}()

	need := 0
	for _, o := range iop.OutputSet {
		if !o.Inverted {
			need++
		}
	}
	matched := make([]bool, len(iop.OutputSet))
	sending := true

	for 0 < need || sending {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()
		case err := <-sent:
			if err != nil {
				return err
			}
			sending = false
		case line, ok := <-lines:
			if !ok {
				return io.EOF
			}
			n, err := s.check(iop, matched, line)
			if err != nil {
				return err
			}
			need -= n
		}
	}

	return nil
}

// check matches the line against the outputs that haven't matched
// yet and returns the number of new matches.
func (s *Session) check(iop *IO, matched []bool, line []byte) (int, error) {
	if s.ShowStdout {
		s.logger().Info("out", zap.ByteString("line", bytes.TrimSpace(line)))
	}

	message, ok := s.parseLine(line)
	if !ok {
		s.logger().Debug("ignoring", zap.ByteString("line", line))
		return 0, nil
	}

	n := 0
	for i := range iop.OutputSet {
		output := &iop.OutputSet[i]
		if matched[i] {
			continue
		}
		pattern, err := s.pattern(output)
		if err != nil {
			return n, err
		}
		bss, err := match.Match(pattern, message, match.NewBindings())
		if err != nil {
			return n, err
		}
		if len(bss) == 0 {
			continue
		}
		if 1 < len(bss) {
			s.logger().Warn("multiple bindings", zap.Int("n", len(bss)))
		}
		if output.Guard != "" {
			if ok, err = guard(output.Guard, bss[0]); err != nil {
				return n, err
			}
			if !ok {
				continue
			}
		}
		if output.Inverted {
			return n, &Undesired{Output: output, Message: message}
		}
		matched[i] = true
		n++
	}
	return n, nil
}

// parseLine strips the OutputPrefix or a leading tag and parses the
// rest as JSON.
func (s *Session) parseLine(line []byte) (interface{}, bool) {
	line = bytes.TrimSpace(line)
	if s.OutputPrefix != "" {
		line = bytes.TrimSpace(bytes.TrimPrefix(line, []byte(s.OutputPrefix)))
	} else if i := bytes.IndexByte(line, ' '); 0 < i && !bytes.HasPrefix(line, []byte("{")) {
		line = bytes.TrimSpace(line[i:])
	}

	var message interface{}
	if err := json.Unmarshal(line, &message); err != nil {
		return nil, false
	}
	return message, true
}

func (s *Session) pattern(output *Output) (interface{}, error) {
	js, is := output.Pattern.(string)
	if !s.ParsePatterns || !is {
		return jsonable(output.Pattern), nil
	}
	var pattern interface{}
	if err := json.Unmarshal([]byte(js), &pattern); err != nil {
		return nil, fmt.Errorf("bad pattern %s: %w", js, err)
	}
	return pattern, nil
}

func (s *Session) send(ctx context.Context, iop *IO, w io.Writer) error {
	if err := pause(ctx, iop.WaitBefore); err != nil {
		return err
	}
	for i, input := range iop.Inputs {
		if 0 < i {
			if err := pause(ctx, iop.WaitBetween); err != nil {
				return err
			}
		}
		var js []byte
		switch vv := input.(type) {
		case string:
			js = []byte(vv)
		default:
			var err error
			if js, err = json.Marshal(jsonable(vv)); err != nil {
				return err
			}
		}

		if s.ShowStdin {
			s.logger().Info("in", zap.ByteString("line", js))
		}

		if _, err := w.Write(append(js, '\n')); err != nil {
			return err
		}
	}
	return pause(ctx, iop.WaitAfter)
}

// jsonable converts maps with interface{} keys (from YAML) into maps
// with string keys.
func jsonable(x interface{}) interface{} {
	switch vv := x.(type) {
	case map[interface{}]interface{}:
		acc := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			acc[fmt.Sprintf("%v", k)] = jsonable(v)
		}
		return acc
	case map[string]interface{}:
		acc := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			acc[k] = jsonable(v)
		}
		return acc
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, v := range vv {
			acc[i] = jsonable(v)
		}
		return acc
	}
	return x
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// guard runs the JavaScript with the bindings as "bs".
func guard(src string, bs match.Bindings) (bool, error) {
	vm := goja.New()
	if err := vm.Set("bs", map[string]interface{}(bs)); err != nil {
		return false, err
	}
	v, err := vm.RunString("(function() {\n" + src + "\n})()")
	if err != nil {
		return false, fmt.Errorf("guard: %w", err)
	}
	return v.ToBoolean(), nil
}
