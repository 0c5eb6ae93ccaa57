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

// Package noop provides handlers that just log the action.
//
// They're useful for action types (popUp, pageJump, ...) that only
// mean something to a UI that isn't present.
package noop

import (
	"context"

	"github.com/Comcast/noodl/core"

	"go.uber.org/zap"
)

// Handler logs actions and returns nothing.
type Handler struct {
	// Silent, if true, suppresses the log messages.
	Silent bool

	Logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Logger: logger,
	}
}

// Handle is a core.HandlerFunc.
func (h *Handler) Handle(ctx context.Context, a *core.Action, opts *core.ConsumerOptions) (interface{}, error) {
	if !h.Silent {
		orig := a.Original()
		delete(orig, "fn")
		h.Logger.Info("noop", zap.Object("action", a), zap.Any("object", orig))
	}
	return nil, nil
}

// Register registers Handle for each of the given action types.
func (h *Handler) Register(reg *core.Registry, actionTypes ...string) error {
	regs := make([]*core.Registration, 0, len(actionTypes))
	for _, t := range actionTypes {
		regs = append(regs, &core.Registration{
			ActionType: t,
			Name:       "noop",
			Fn:         h.Handle,
		})
	}
	return reg.Register(regs...)
}
