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
package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/delivery"
)

func newTestServer(t *testing.T) (*bus.Bus, *delivery.Queue, *httptest.Server, *websocket.Conn) {
	t.Helper()
	b := bus.New(nil, nil)
	q, err := delivery.New(nil, "@every 1h")
	require.NoError(t, err)
	t.Cleanup(q.Close)

	srv := New(b, q, nil)
	t.Cleanup(srv.Close)

	httpSrv := httptest.NewServer(srv)
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return b, q, httpSrv, conn
}

func TestSubscribeReplaysBacklogThenLiveAppends(t *testing.T) {
	_, q, _, conn := newTestServer(t)

	q.Append("sess-1", bus.SystemEvent{Type: bus.EventTextDelta, Data: "backlog"})

	require.NoError(t, conn.WriteJSON(clientFrame{Control: "subscribe", SessionID: "sess-1"}))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame serverFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, bus.EventTextDelta, frame.Type)
	require.Equal(t, "backlog", frame.Data)
	require.Equal(t, uint64(1), frame.Cursor)

	q.Append("sess-1", bus.SystemEvent{Type: bus.EventTextDelta, Data: "live"})
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "live", frame.Data)
	require.Equal(t, uint64(2), frame.Cursor)
}

func TestAckControlFrameIsAcceptedOnWire(t *testing.T) {
	_, q, _, conn := newTestServer(t)

	q.Append("sess-2", bus.SystemEvent{Type: bus.EventTextDelta, Data: "one"})
	require.NoError(t, conn.WriteJSON(clientFrame{Control: "subscribe", SessionID: "sess-2"}))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame serverFrame
	require.NoError(t, conn.ReadJSON(&frame))

	require.NoError(t, conn.WriteJSON(clientFrame{Control: "ack", SessionID: "sess-2", Cursor: 1}))

	// Give the server a moment to process the ack. The cursor it advances
	// belongs to this connection's server-side consumer, which the test does
	// not inspect; this only exercises the wire path without a race.
	time.Sleep(50 * time.Millisecond)
}

func TestDispatchCommandRoutesRequestAndForwardsResponse(t *testing.T) {
	b, _, _, conn := newTestServer(t)

	b.OnCommand("ping_request", func(ctx context.Context, ev bus.SystemEvent) error {
		b.EmitCommand(ctx, "ping_response", "pong", ev.Context, ev.RequestID)
		return nil
	})

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "ping_request", RequestID: "req-1"}))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame serverFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "ping_response", frame.Type)
	require.Equal(t, "pong", frame.Data)
	require.Equal(t, "req-1", frame.RequestID)
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	_, q, _, conn := newTestServer(t)

	require.NoError(t, conn.WriteJSON(clientFrame{Control: "subscribe", SessionID: "sess-3"}))
	require.NoError(t, conn.WriteJSON(clientFrame{Control: "unsubscribe", SessionID: "sess-3"}))
	time.Sleep(50 * time.Millisecond)

	q.Append("sess-3", bus.SystemEvent{Type: bus.EventTextDelta, Data: "should-not-arrive"})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var frame serverFrame
	err := conn.ReadJSON(&frame)
	require.Error(t, err, "expected a read timeout since the session was unsubscribed before the append")
}
