// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package transport implements the WebSocket command/event surface
// one connection per client, inbound frames routed
// onto the SystemBus, outbound frames pumped from the Delivery Queue with
// a cursor field added, and a broadcast path for system_error notifications.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/delivery"
)

// clientFrame is one inbound frame: either a control frame (subscribe/
// unsubscribe/ack) or a command request routed onto the bus.
type clientFrame struct {
	Control    string          `json:"control,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	Cursor     uint64          `json:"cursor,omitempty"`
	Type       string          `json:"type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	ContainerID string         `json:"containerId,omitempty"`
	ImageID    string          `json:"imageId,omitempty"`
	AgentID    string          `json:"agentId,omitempty"`
}

// serverFrame is one outbound frame: a response, a delivered stream record
// (cursor set), or a broadcast system_error.
type serverFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Cursor    uint64 `json:"cursor,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the WebSocket transport server.
type Server struct {
	bus    *bus.Bus
	queue  *delivery.Queue
	logger *zap.Logger

	mu    sync.Mutex
	conns map[*clientConn]struct{}

	unsubSystemError bus.Unsubscribe
}

// New builds a Server bound to b and q. Call Handler to get an http.Handler
// to mount, and Close to tear down the broadcast subscription.
func New(b *bus.Bus, q *delivery.Queue, logger *zap.Logger) *Server {
	s := &Server{
		bus:    b,
		queue:  q,
		logger: logger,
		conns:  make(map[*clientConn]struct{}),
	}
	s.unsubSystemError = b.On("system_error", s.broadcastSystemError, bus.SubscribeOptions{})
	return s
}

// Close unsubscribes the broadcast listener; live connections are left to
// their own read/write pump shutdown.
func (s *Server) Close() {
	if s.unsubSystemError != nil {
		s.unsubSystemError()
	}
}

func (s *Server) broadcastSystemError(_ context.Context, ev bus.SystemEvent) error {
	frame := serverFrame{Type: "system_error", Data: ev.Data}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.sendNonBlocking(frame)
	}
	return nil
}

// ServeHTTP upgrades the request to a WebSocket connection and runs its
// read/write pumps until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("transport: upgrade failed", zap.Error(err))
		}
		return
	}

	c := &clientConn{
		ws:         ws,
		consumerID: uuid.New().String(),
		out:        make(chan serverFrame, 256),
		subs:       make(map[string]context.CancelFunc),
		server:     s,
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()
	c.readPump()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.closeSubs()
	close(c.out)
}

// clientConn is one WebSocket connection's state: its single writer
// goroutine (gorilla/websocket connections are not safe for concurrent
// writes) and its live Delivery Queue subscriptions.
type clientConn struct {
	ws         *websocket.Conn
	consumerID string
	out        chan serverFrame
	server     *Server

	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

func (c *clientConn) sendNonBlocking(f serverFrame) {
	select {
	case c.out <- f:
	default:
	}
}

func (c *clientConn) writePump() {
	for f := range c.out {
		c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.ws.WriteJSON(f); err != nil {
			return
		}
	}
}

func (c *clientConn) closeSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sessionID, cancel := range c.subs {
		cancel()
		c.server.queue.Unsubscribe(sessionID, c.consumerID)
	}
	c.subs = map[string]context.CancelFunc{}
}

func (c *clientConn) readPump() {
	defer c.ws.Close()
	for {
		var frame clientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}
		c.handle(frame)
	}
}

func (c *clientConn) handle(frame clientFrame) {
	switch frame.Control {
	case "subscribe":
		c.subscribe(frame.SessionID, frame.Cursor)
		return
	case "unsubscribe":
		c.unsubscribe(frame.SessionID)
		return
	case "ack":
		c.server.queue.Ack(frame.SessionID, c.consumerID, frame.Cursor)
		return
	}
	if frame.Type == "" {
		return
	}
	c.dispatchCommand(frame)
}

// subscribe starts a goroutine draining the Delivery Queue's channel for
// sessionID into this connection's outbound frames, tagging each with its
// cursor. resumeCursor lets a reconnecting client resume instead of
// replaying from the start.
func (c *clientConn) subscribe(sessionID string, resumeCursor uint64) {
	c.mu.Lock()
	if _, ok := c.subs[sessionID]; ok {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.subs[sessionID] = cancel
	c.mu.Unlock()

	records := c.server.queue.Subscribe(sessionID, c.consumerID, resumeCursor)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-records:
				if !ok {
					return
				}
				c.sendNonBlocking(serverFrame{
					Type:      rec.Event.Type,
					Data:      rec.Event.Data,
					RequestID: rec.Event.RequestID,
					Cursor:    rec.Cursor,
				})
			}
		}
	}()
}

func (c *clientConn) unsubscribe(sessionID string) {
	c.mu.Lock()
	cancel, ok := c.subs[sessionID]
	if ok {
		delete(c.subs, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	c.server.queue.Unsubscribe(sessionID, c.consumerID)
}

// dispatchCommand emits frame as a *_request SystemEvent and, if it names a
// requestId, registers a one-shot listener that forwards the paired
// *_response directly to this connection — independent of the Delivery
// Queue, since not every response is scoped to a session (e.g.
// container_create_request).
func (c *clientConn) dispatchCommand(frame clientFrame) {
	var data any
	if len(frame.Data) > 0 {
		_ = json.Unmarshal(frame.Data, &data)
	}
	if m, ok := data.(map[string]any); ok {
		if frame.ContainerID != "" {
			m["containerId"] = frame.ContainerID
		}
		if frame.ImageID != "" {
			m["imageId"] = frame.ImageID
		}
		if frame.AgentID != "" {
			m["agentId"] = frame.AgentID
		}
	}

	requestID := frame.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	if bus.IsRequestType(frame.Type) {
		respType := bus.ResponseTypeFor(frame.Type)
		var unsub bus.Unsubscribe
		unsub = c.server.bus.On(respType, func(_ context.Context, ev bus.SystemEvent) error {
			c.sendNonBlocking(serverFrame{Type: respType, Data: ev.Data, RequestID: ev.RequestID})
			for _, sessionID := range ev.Subscriptions {
				c.subscribe(sessionID, 0)
			}
			return nil
		}, bus.SubscribeOptions{
			Once: true,
			Filter: func(ev bus.SystemEvent) bool { return ev.RequestID == requestID },
		})
		_ = unsub // unsubscribed automatically by Once after delivery
	}

	evCtx := &bus.EventContext{ContainerID: frame.ContainerID, ImageID: frame.ImageID, AgentID: frame.AgentID}
	c.server.bus.EmitCommand(context.Background(), frame.Type, data, evCtx, requestID)
}
