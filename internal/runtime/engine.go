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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/message"
	"github.com/teradata-labs/loomrun/internal/session"
)

// engineState names the per-turn assembly state.
type engineState string

const (
	stateIdle         engineState = "idle"
	stateInMessage    engineState = "in_message"
	stateInTextBlock  engineState = "in_text_block"
	stateInToolBlock  engineState = "in_tool_block"
)

type turnAccum struct {
	messageID string
	model     string
	requestID string
	text      strings.Builder

	openToolIndex int64
	openToolID    string
	openToolName  string
	openToolInput strings.Builder
}

// Engine is the stream-driven message assembler and, doubling as the
// Presenter, emits the assembled Messages and turn-state SystemEvents with
// source=agent. It implements StreamSink.
type Engine struct {
	store    session.Store
	producer bus.Producer
	evCtx    bus.EventContext
	logger   *zap.Logger

	mu    sync.Mutex
	state engineState
	turn  *turnAccum

	// pendingToolCalls binds an unresolved tool-call's id to its owning
	// assistant message id, surviving past message_stop so a tool_result
	// arriving late still resolves in place instead of opening a new turn.
	pendingToolCalls map[string]string
}

// NewEngine builds the assembler/presenter for one agent.
func NewEngine(store session.Store, producer bus.Producer, evCtx bus.EventContext, logger *zap.Logger) *Engine {
	return &Engine{
		store:            store,
		producer:         producer,
		evCtx:            evCtx,
		logger:           logger,
		state:            stateIdle,
		pendingToolCalls: make(map[string]string),
	}
}

// OnStreamEvent drives the state machine for one normalized StreamEvent.
func (e *Engine) OnStreamEvent(ctx context.Context, se StreamEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch se.Kind {
	case bus.EventMessageStart:
		e.state = stateInMessage
		e.turn = &turnAccum{messageID: se.MessageID, model: se.Model, requestID: se.RequestID}

	case bus.EventTextBlockStart:
		if e.state == stateInMessage {
			e.state = stateInTextBlock
		}

	case bus.EventTextDelta:
		if e.turn != nil {
			e.turn.text.WriteString(se.Text)
		}

	case bus.EventTextBlockStop:
		if e.state == stateInTextBlock {
			e.state = stateInMessage
		}
		// An empty text block (no deltas) simply contributes nothing to
		// turn.text and is discarded by construction.

	case bus.EventToolUseBlockStart:
		if e.turn == nil {
			return
		}
		e.state = stateInToolBlock
		e.turn.openToolIndex = se.Index
		e.turn.openToolID = se.ToolCallID
		e.turn.openToolName = se.ToolName
		e.turn.openToolInput.Reset()

	case bus.EventInputJSONDelta:
		if e.turn != nil {
			e.turn.openToolInput.WriteString(se.InputDelta)
		}

	case bus.EventToolUseBlockStop:
		e.finalizeToolCall(ctx)
		e.state = stateInMessage

	case bus.EventToolResult:
		e.resolveToolResult(ctx, se)

	case bus.EventMessageStop:
		e.finalizeMessage(ctx, se)

	case bus.EventErrorReceived:
		e.emitError(ctx, se)
	}
}

// OnStreamComplete is informational; turn closure is driven by message_stop
// (folded from "interrupted" at the BusDriver layer), not this callback.
func (e *Engine) OnStreamComplete(ctx context.Context, reason string) {
	if e.logger != nil {
		e.logger.Debug("stream complete", zap.String("reason", reason), zap.String("agent.id", e.evCtx.AgentID))
	}
}

func (e *Engine) finalizeToolCall(ctx context.Context) {
	if e.turn == nil || e.turn.openToolID == "" {
		return
	}
	now := time.Now().UnixMilli()
	call := message.ToolCall{ID: e.turn.openToolID, Name: e.turn.openToolName, Input: e.turn.openToolInput.String()}
	msg := message.NewToolCallMessage(uuid.New().String(), e.evCtx.SessionID, e.turn.messageID, call, now)

	if err := e.store.AddMessage(ctx, e.evCtx.SessionID, msg); err != nil && e.logger != nil {
		e.logger.Error("persist tool-call message failed", zap.Error(err))
	}
	e.pendingToolCalls[call.ID] = e.turn.messageID
	e.emitMessage(ctx, msg)

	e.turn.openToolID = ""
	e.turn.openToolName = ""
	e.turn.openToolInput.Reset()
}

func (e *Engine) resolveToolResult(ctx context.Context, se StreamEvent) {
	now := time.Now().UnixMilli()
	out := message.ToolOutput{Output: se.ResultOutput, IsError: se.ResultIsError}
	msg := message.NewToolResultMessage(uuid.New().String(), e.evCtx.SessionID, se.ToolCallID, out, now)
	if parentID, ok := e.pendingToolCalls[se.ToolCallID]; ok {
		msg.ParentID = parentID
		delete(e.pendingToolCalls, se.ToolCallID)
	}

	if err := e.store.AddMessage(ctx, e.evCtx.SessionID, msg); err != nil && e.logger != nil {
		e.logger.Error("persist tool-result message failed", zap.Error(err))
	}
	e.emitMessage(ctx, msg)
}

func (e *Engine) finalizeMessage(ctx context.Context, se StreamEvent) {
	if e.turn == nil {
		return // duplicate message_stop: idempotent no-op
	}
	now := time.Now().UnixMilli()
	var usage *message.Usage
	if se.InputTokens > 0 || se.OutputTokens > 0 {
		usage = &message.Usage{InputTokens: se.InputTokens, OutputTokens: se.OutputTokens, Model: e.turn.model}
	}
	msg := message.NewAssistantMessage(e.turn.messageID, e.evCtx.SessionID, e.turn.text.String(), now, usage)

	if err := e.store.AddMessage(ctx, e.evCtx.SessionID, msg); err != nil && e.logger != nil {
		e.logger.Error("persist assistant message failed", zap.Error(err))
	}
	e.emitMessage(ctx, msg)
	e.emitTurnComplete(ctx, se)

	e.state = stateIdle
	e.turn = nil
}

func (e *Engine) emitError(ctx context.Context, se StreamEvent) {
	now := time.Now().UnixMilli()
	msg := message.NewErrorMessage(uuid.New().String(), e.evCtx.SessionID, se.ErrorMessage, se.ErrorCode, now)
	if err := e.store.AddMessage(ctx, e.evCtx.SessionID, msg); err != nil && e.logger != nil {
		e.logger.Error("persist error message failed", zap.Error(err))
	}
	e.emitMessage(ctx, msg)
	e.state = stateIdle
	e.turn = nil
}

// emitMessage is the Presenter half: message-typed outputs are emitted with
// full context and source=agent. Stream-typed outputs
// are deliberately never emitted here — clients observe those via the
// separate source=agent stream bridge RuntimeAgent wires per Rule R1.
func (e *Engine) emitMessage(ctx context.Context, msg message.Message) {
	evCtx := e.evCtx
	e.producer.Emit(ctx, bus.SystemEvent{
		Type:     "message",
		Source:   bus.SourceAgent,
		Category: bus.CategoryMessage,
		Intent:   bus.IntentNotification,
		Data:     msg,
		Context:  &evCtx,
	})
}

func (e *Engine) emitTurnComplete(ctx context.Context, se StreamEvent) {
	evCtx := e.evCtx
	e.producer.Emit(ctx, bus.SystemEvent{
		Type:     "turn_response",
		Source:   bus.SourceAgent,
		Category: bus.CategoryTurn,
		Intent:   bus.IntentNotification,
		Data: map[string]any{
			"stopReason":   se.StopReason,
			"stopSequence": se.StopSequence,
		},
		Context:   &evCtx,
		RequestID: se.RequestID,
	})
}
