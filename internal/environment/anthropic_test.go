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

func TestAnthropicFactorySubscribesOnlyToItsAgentUserMessageAndInterrupt(t *testing.T) {
	b := bus.New(nil, nil)
	factory := AnthropicFactory("test-key", "", "claude-sonnet-4-20250514", nil)

	env, err := factory(Config{AgentID: "agent-1"}, b.AsProducer(), b.AsConsumer())
	require.NoError(t, err)
	defer env.Close()

	ae, ok := env.(*anthropicEnvironment)
	require.True(t, ok)

	// Wrong agent: must not be queued.
	b.Emit(context.Background(), bus.SystemEvent{
		Type: bus.EventUserMessage, Context: &bus.EventContext{AgentID: "agent-2"}, Data: "ignored",
	})
	// Non-driving event type for this agent: must not be queued either.
	b.Emit(context.Background(), bus.SystemEvent{
		Type: "message", Context: &bus.EventContext{AgentID: "agent-1"},
	})

	assertQueueEmpty(t, ae.queue)
}

func TestAnthropicFactoryInterruptCancelsInFlightTurn(t *testing.T) {
	b := bus.New(nil, nil)
	factory := AnthropicFactory("test-key", "", "claude-sonnet-4-20250514", nil)

	env, err := factory(Config{AgentID: "agent-1"}, b.AsProducer(), b.AsConsumer())
	require.NoError(t, err)
	defer env.Close()

	ae := env.(*anthropicEnvironment)

	var canceled bool
	ctx, cancel := context.WithCancel(context.Background())
	ae.cancelMu.Lock()
	ae.cancelTurn = func() { canceled = true; cancel() }
	ae.cancelMu.Unlock()
	_ = ctx

	b.Emit(context.Background(), bus.SystemEvent{
		Type: bus.EventInterrupt, Context: &bus.EventContext{AgentID: "agent-1"},
	})

	assert.True(t, canceled)
}

func TestConfigDefaultModelIsStable(t *testing.T) {
	var cfg Config
	assert.NotEmpty(t, cfg.defaultModel())
}

// assertQueueEmpty drains the queue with a non-blocking check by closing it
// and confirming Next immediately reports no more items were ever pushed.
func assertQueueEmpty(t *testing.T, q *asyncqueue.Queue[turnRequest]) {
	t.Helper()
	q.Close()
	_, ok := q.Next()
	assert.False(t, ok, "expected no turnRequest to have been queued")
}
