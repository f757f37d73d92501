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
package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/message"
	"github.com/teradata-labs/loomrun/internal/session"
)

// Interactor is the inbound side of an agent: validates user content,
// persists the user message, emits the triggering internal event. Decided
// persistence happens here only, not in a Presenter.
type Interactor struct {
	store    session.Store
	producer bus.Producer
	ctx      bus.EventContext
}

// NewInteractor builds the inbound side for one agent.
func NewInteractor(store session.Store, producer bus.Producer, evCtx bus.EventContext) *Interactor {
	return &Interactor{store: store, producer: producer, ctx: evCtx}
}

// Receive builds a UserMessage, persists it (awaited), then emits the
// internal-only user_message event whose Data is the concatenated text
// parts, the string the Environment adapters queue as the turn's content.
// The event has intent=request, so delivery.BridgeBus never appends it to a
// session log; no separate source=agent notification copy of the user
// message is emitted.
func (in *Interactor) Receive(ctx context.Context, content []message.ContentPart, requestID string) (message.Message, error) {
	now := time.Now().UnixMilli()
	msg := message.NewUserMessage(uuid.New().String(), in.ctx.SessionID, content, now)

	if err := in.store.AddMessage(ctx, in.ctx.SessionID, msg); err != nil {
		return message.Message{}, err
	}

	var text strings.Builder
	for _, p := range content {
		if p.Type == "text" {
			text.WriteString(p.Text)
		}
	}

	evCtx := in.ctx
	in.producer.Emit(ctx, bus.SystemEvent{
		Type:      bus.EventUserMessage,
		Source:    bus.SourceAgent,
		Category:  bus.CategoryMessage,
		Intent:    bus.IntentRequest,
		Data:      text.String(),
		Context:   &evCtx,
		RequestID: requestID,
	})
	return msg, nil
}

// Interrupt emits an internal interrupt action event for this agent.
func (in *Interactor) Interrupt(ctx context.Context, requestID string) {
	evCtx := in.ctx
	in.producer.Emit(ctx, bus.SystemEvent{
		Type:      bus.EventInterrupt,
		Source:    bus.SourceAgent,
		Category:  bus.CategoryAction,
		Intent:    bus.IntentRequest,
		Context:   &evCtx,
		RequestID: requestID,
	})
}
