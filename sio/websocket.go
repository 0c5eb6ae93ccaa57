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
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Comcast/noodl/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WebSocketHandler returns an http.Handler that upgrades to a
// WebSocket.  Each text message on the connection is a request, and
// the Response goes back on the same connection.
//
// Requests on a connection are processed concurrently, so Responses
// can arrive out of order.  Use the request id.
func (s *Service) WebSocketHandler(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.Logger.Warn("upgrade error", zap.Error(err))
			return
		}
		defer conn.Close()

		logger := s.Logger.With(zap.String("remote", conn.RemoteAddr().String()))
		logger.Debug("websocket open")

		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		defer wg.Wait()

		write := func(resp *Response) {
			js, err := json.Marshal(resp)
			if err != nil {
				logger.Error("marshal", zap.Error(err))
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, js); err != nil {
				logger.Warn("write error", zap.Error(err))
			}
		}

		for {
			mt, message, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("read error", zap.Error(err))
				}
				return
			}
			if mt != websocket.TextMessage || len(message) == 0 {
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				write(s.Process(ctx, message))
			}()
		}
	})
}

// ServeWebSockets listens according to the configuration until the
// context is done.
func (s *Service) ServeWebSockets(ctx context.Context, cfg config.WebSocketConfig) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, s.WebSocketHandler(ctx))

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Logger.Info("websockets listening", zap.String("listen", cfg.Listen), zap.String("path", cfg.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	})
	return g.Wait()
}
