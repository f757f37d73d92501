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
package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToMatchingAndWildcard(t *testing.T) {
	b := New(nil, nil)

	var typed, wild []string
	var mu sync.Mutex

	b.On("message_start", func(_ context.Context, ev SystemEvent) error {
		mu.Lock()
		typed = append(typed, ev.Type)
		mu.Unlock()
		return nil
	}, SubscribeOptions{})

	b.On("*", func(_ context.Context, ev SystemEvent) error {
		mu.Lock()
		wild = append(wild, ev.Type)
		mu.Unlock()
		return nil
	}, SubscribeOptions{})

	b.Emit(context.Background(), SystemEvent{Type: "message_start"})
	b.Emit(context.Background(), SystemEvent{Type: "text_delta"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"message_start"}, typed)
	assert.Equal(t, []string{"message_start", "text_delta"}, wild)
}

func TestEmitRespectsPriorityOrder(t *testing.T) {
	b := New(nil, nil)
	var order []string

	b.On("x", func(_ context.Context, _ SystemEvent) error { order = append(order, "low"); return nil }, SubscribeOptions{Priority: 0})
	b.On("x", func(_ context.Context, _ SystemEvent) error { order = append(order, "high"); return nil }, SubscribeOptions{Priority: 10})

	b.Emit(context.Background(), SystemEvent{Type: "x"})
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestEmitFilterExcludesNonMatching(t *testing.T) {
	b := New(nil, nil)
	var got []string

	b.On("x", func(_ context.Context, ev SystemEvent) error {
		got = append(got, ev.RequestID)
		return nil
	}, SubscribeOptions{Filter: func(ev SystemEvent) bool { return ev.RequestID == "wanted" }})

	b.Emit(context.Background(), SystemEvent{Type: "x", RequestID: "other"})
	b.Emit(context.Background(), SystemEvent{Type: "x", RequestID: "wanted"})

	assert.Equal(t, []string{"wanted"}, got)
}

func TestOnceUnsubscribesAfterFirstDelivery(t *testing.T) {
	b := New(nil, nil)
	count := 0

	b.On("x", func(_ context.Context, _ SystemEvent) error { count++; return nil }, SubscribeOptions{Once: true})

	b.Emit(context.Background(), SystemEvent{Type: "x"})
	b.Emit(context.Background(), SystemEvent{Type: "x"})

	assert.Equal(t, 1, count)
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New(nil, nil)
	count := 0

	unsub := b.On("x", func(_ context.Context, _ SystemEvent) error { count++; return nil }, SubscribeOptions{})
	unsub()

	b.Emit(context.Background(), SystemEvent{Type: "x"})
	assert.Equal(t, 0, count)
}

func TestEmitCommandStampsCategoryAndIntent(t *testing.T) {
	b := New(nil, nil)
	var got SystemEvent

	b.On("thing_create_request", func(_ context.Context, ev SystemEvent) error { got = ev; return nil }, SubscribeOptions{})
	b.EmitCommand(context.Background(), "thing_create_request", map[string]any{"a": 1}, nil, "req-1")

	assert.Equal(t, CategoryRequest, got.Category)
	assert.Equal(t, IntentRequest, got.Intent)
	assert.Equal(t, SourceCommand, got.Source)

	var resp SystemEvent
	b.On("thing_create_response", func(_ context.Context, ev SystemEvent) error { resp = ev; return nil }, SubscribeOptions{})
	b.EmitCommand(context.Background(), "thing_create_response", nil, nil, "req-1")
	assert.Equal(t, CategoryResponse, resp.Category)
	assert.Equal(t, IntentResult, resp.Intent)
}

func TestRequestResolvesOnMatchingResponse(t *testing.T) {
	b := New(nil, nil)

	b.OnCommand("thing_create_request", func(ctx context.Context, ev SystemEvent) error {
		b.EmitCommand(ctx, "thing_create_response", "ok", nil, ev.RequestID)
		return nil
	})

	resp, err := b.Request(context.Background(), "thing_create_request", nil, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Data)
}

func TestRequestTimesOutWithoutResponse(t *testing.T) {
	b := New(nil, nil)
	_, err := b.Request(context.Background(), "nobody_listens_request", nil, nil, 20*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *ErrRequestTimeout
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestResponseTypeForAndIsRequestType(t *testing.T) {
	assert.Equal(t, "thing_create_response", ResponseTypeFor("thing_create_request"))
	assert.True(t, IsRequestType("thing_create_request"))
	assert.False(t, IsRequestType("thing_create_response"))
}

func TestIsDriveableEventType(t *testing.T) {
	assert.True(t, IsDriveableEventType(EventTextDelta))
	assert.True(t, IsDriveableEventType(EventMessageStop))
	assert.False(t, IsDriveableEventType(EventUserMessage))
	assert.False(t, IsDriveableEventType("not_a_real_event"))
}
