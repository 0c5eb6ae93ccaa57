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

package page

import (
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Comcast/noodl/util"

	"go.uber.org/zap"
)

var inlinePattern = regexp.MustCompile(`%inline *\("([^"]*)"\)`)

// Inline replaces each '%inline("NAME")' with find(NAME).
//
// Page documents use this to pull JavaScript for evalObject actions
// out of separate files.  The first error from find stops the
// expansion.
func Inline(bs []byte, find func(name string) ([]byte, error)) ([]byte, error) {
	var err error
	expanded := inlinePattern.ReplaceAllFunc(bs, func(directive []byte) []byte {
		if err != nil {
			return nil
		}
		name := string(inlinePattern.FindSubmatch(directive)[1])
		var content []byte
		if content, err = find(name); err != nil {
			return nil
		}
		util.Logger().Debug("inlining", zap.String("name", name), zap.Int("bytes", len(content)))
		return content
	})
	if err != nil {
		return nil, err
	}
	return expanded, nil
}

// ReadFileWithInlines reads the file and expands %inline directives
// relative to the file's directory.
func ReadFileWithInlines(filename string) ([]byte, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Inline(bs, fileFinder(filepath.Dir(filename)))
}

// ReadAllWithInlines reads everything and expands %inline directives
// relative to dir.
func ReadAllWithInlines(in io.Reader, dir string) ([]byte, error) {
	bs, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return Inline(bs, fileFinder(dir))
}

func fileFinder(dir string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, name))
	}
}
