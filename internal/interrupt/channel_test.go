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
package interrupt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	ctx := context.Background()
	router := NewRouter(ctx)
	queue := NewPersistentQueue(ctx, router, nil)
	ch := NewChannel(ctx, router, queue)
	t.Cleanup(func() {
		ch.Close()
		queue.Close()
		router.Close()
	})
	return ch
}

func TestChannelSendDeliversThroughRouter(t *testing.T) {
	ch := newTestChannel(t)

	received := make(chan string, 1)
	require.NoError(t, ch.RegisterHandler("agent-1", SignalTurnCancel, func(_ context.Context, _ Signal, payload []byte) error {
		received <- string(payload)
		return nil
	}))

	require.NoError(t, ch.Send(context.Background(), SignalTurnCancel, "agent-1", []byte("req-42")))

	select {
	case got := <-received:
		assert.Equal(t, "req-42", got)
	case <-time.After(time.Second):
		t.Fatal("handler never received the interrupt")
	}

	sent, dropped, _ := ch.GetStats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), dropped)
}

func TestChannelSendWithoutHandlerErrorsAndRecordsDropped(t *testing.T) {
	ch := newTestChannel(t)

	err := ch.Send(context.Background(), SignalTurnCancel, "unregistered-agent", nil)
	assert.Error(t, err)

	_, dropped, _ := ch.GetStats()
	assert.Equal(t, int64(1), dropped)
}

func TestChannelUnregisterHandler(t *testing.T) {
	ch := newTestChannel(t)
	noop := func(context.Context, Signal, []byte) error { return nil }

	require.NoError(t, ch.RegisterHandler("agent-1", SignalTurnCancel, noop))
	require.NoError(t, ch.UnregisterHandler("agent-1", SignalTurnCancel))

	err := ch.Send(context.Background(), SignalTurnCancel, "agent-1", nil)
	assert.Error(t, err)
}

func TestPersistentQueueRetriesUntilDelivered(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(ctx)
	defer router.Close()
	queue := NewPersistentQueue(ctx, router, nil)
	defer queue.Close()

	// Enqueue before any handler is registered: the first retryDue tick
	// finds no handler and must keep the interrupt pending rather than drop it.
	require.NoError(t, queue.Enqueue(ctx, &Interrupt{Signal: SignalEmergencyStop, TargetID: "agent-1", Payload: []byte("x")}))

	received := make(chan string, 1)
	require.NoError(t, router.RegisterHandler("agent-1", SignalEmergencyStop, func(_ context.Context, _ Signal, payload []byte) error {
		received <- string(payload)
		return nil
	}))

	select {
	case got := <-received:
		assert.Equal(t, "x", got)
	case <-time.After(2 * time.Second):
		t.Fatal("persistent queue never delivered once a handler appeared")
	}
}
