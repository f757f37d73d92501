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
package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomrun/internal/asyncqueue"
	"github.com/teradata-labs/loomrun/internal/bus"
)

// newTestBedrockEnvironment builds a bedrockEnvironment directly, bypassing
// BedrockFactory's config.LoadDefaultConfig call (which probes real AWS
// credential sources and has no place in a unit test).
func newTestBedrockEnvironment(t *testing.T, b *bus.Bus, cfg Config) *bedrockEnvironment {
	t.Helper()
	env := &bedrockEnvironment{
		cfg:      cfg,
		model:    "anthropic.claude-3-5-sonnet-20241022-v2:0",
		producer: b.AsProducer(),
	}
	env.queue = asyncqueue.New[turnRequest]()
	env.unsub = b.AsConsumer().On("*", env.onBusEvent, bus.SubscribeOptions{
		Filter: func(ev bus.SystemEvent) bool {
			return ev.Context != nil && ev.Context.AgentID == cfg.AgentID &&
				(ev.Type == bus.EventUserMessage || ev.Type == bus.EventInterrupt)
		},
	})
	t.Cleanup(func() { env.Close() })
	return env
}

func TestBedrockOnBusEventFiltersToItsAgentUserMessageAndInterrupt(t *testing.T) {
	b := bus.New(nil, nil)
	env := newTestBedrockEnvironment(t, b, Config{AgentID: "agent-1"})

	b.Emit(context.Background(), bus.SystemEvent{
		Type: bus.EventUserMessage, Context: &bus.EventContext{AgentID: "agent-2"}, Data: "ignored",
	})
	b.Emit(context.Background(), bus.SystemEvent{
		Type: "message", Context: &bus.EventContext{AgentID: "agent-1"},
	})

	env.queue.Close()
	_, ok := env.queue.Next()
	assert.False(t, ok, "expected no turnRequest to have been queued for the wrong agent or a non-driving event")
}

func TestBedrockOnBusEventQueuesMatchingUserMessage(t *testing.T) {
	b := bus.New(nil, nil)
	env := newTestBedrockEnvironment(t, b, Config{AgentID: "agent-1"})

	b.Emit(context.Background(), bus.SystemEvent{
		Type: bus.EventUserMessage, Context: &bus.EventContext{AgentID: "agent-1"}, Data: "hello",
		RequestID: "req-1",
	})

	req, ok := env.queue.Next()
	require.True(t, ok)
	assert.Equal(t, "hello", req.content)
	assert.Equal(t, "req-1", req.meta.RequestID)
	assert.Equal(t, "agent-1", req.meta.Context.AgentID)
}

func TestBedrockOnBusEventInterruptCancelsInFlightTurn(t *testing.T) {
	b := bus.New(nil, nil)
	env := newTestBedrockEnvironment(t, b, Config{AgentID: "agent-1"})

	var canceled bool
	env.cancelMu.Lock()
	env.cancelTurn = func() { canceled = true }
	env.cancelMu.Unlock()

	b.Emit(context.Background(), bus.SystemEvent{
		Type: bus.EventInterrupt, Context: &bus.EventContext{AgentID: "agent-1"},
	})

	assert.True(t, canceled)
}

func TestBedrockCaptureSessionIDReportsOnlyFirstNonEmptyID(t *testing.T) {
	b := bus.New(nil, nil)
	var captured []string
	env := newTestBedrockEnvironment(t, b, Config{
		AgentID:             "agent-1",
		OnSessionIDCaptured: func(id string) { captured = append(captured, id) },
	})

	env.captureSessionID("")
	env.captureSessionID("sdk-session-1")
	env.captureSessionID("sdk-session-2")

	assert.Equal(t, []string{"sdk-session-1"}, captured, "only the first non-empty session id should be reported")
}

func TestBedrockCloseCancelsInFlightTurnAndUnsubscribes(t *testing.T) {
	b := bus.New(nil, nil)
	env := newTestBedrockEnvironment(t, b, Config{AgentID: "agent-1"})

	var canceled bool
	env.cancelMu.Lock()
	env.cancelTurn = func() { canceled = true }
	env.cancelMu.Unlock()

	require.NoError(t, env.Close())
	assert.True(t, canceled)

	// A second Close must stay idempotent: no panic from closing the queue
	// twice or calling a cancelTurn that Close already invoked.
	assert.NoError(t, env.Close())
}

func TestBedrockWarmupIsANoOp(t *testing.T) {
	env := &bedrockEnvironment{}
	assert.NoError(t, env.Warmup(context.Background()))
}
