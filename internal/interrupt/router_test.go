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

func TestRouterDeliversToRegisteredHandler(t *testing.T) {
	r := NewRouter(context.Background())
	defer r.Close()

	received := make(chan []byte, 1)
	require.NoError(t, r.RegisterHandler("agent-1", SignalTurnCancel, func(_ context.Context, _ Signal, payload []byte) error {
		received <- payload
		return nil
	}))

	delivered, err := r.Send(context.Background(), SignalTurnCancel, "agent-1", []byte("req-1"))
	require.NoError(t, err)
	assert.True(t, delivered)

	select {
	case payload := <-received:
		assert.Equal(t, "req-1", string(payload))
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestRouterSendWithoutHandlerErrors(t *testing.T) {
	r := NewRouter(context.Background())
	defer r.Close()

	_, err := r.Send(context.Background(), SignalTurnCancel, "no-such-agent", nil)
	assert.Error(t, err)
}

func TestRouterDoubleRegisterErrors(t *testing.T) {
	r := NewRouter(context.Background())
	defer r.Close()

	noop := func(context.Context, Signal, []byte) error { return nil }
	require.NoError(t, r.RegisterHandler("agent-1", SignalTurnCancel, noop))
	err := r.RegisterHandler("agent-1", SignalTurnCancel, noop)
	assert.Error(t, err)
}

func TestRouterUnregisterStopsDelivery(t *testing.T) {
	r := NewRouter(context.Background())
	defer r.Close()

	calls := 0
	require.NoError(t, r.RegisterHandler("agent-1", SignalTurnCancel, func(context.Context, Signal, []byte) error {
		calls++
		return nil
	}))
	require.NoError(t, r.UnregisterHandler("agent-1", SignalTurnCancel))

	_, err := r.Send(context.Background(), SignalTurnCancel, "agent-1", nil)
	assert.Error(t, err)
}
