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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/asyncqueue"
	"github.com/teradata-labs/loomrun/internal/bus"
)

// sseEnvironment drives a provider fronted by a plain HTTP/SSE gateway
// instead of a vendor SDK transport: it POSTs an Anthropic Messages-shaped
// body and decodes the raw `text/event-stream` response, reusing the same
// wire envelope the Bedrock adapter decodes (the SSE-fallback
// row for r3labs/sse). This is the Receptor's fallback path, not the
// primary one: used when environmentFactory is configured with an endpoint
// rather than a provider kind anthropic-sdk-go or aws-sdk-go-v2 understand.
type sseEnvironment struct {
	cfg      Config
	endpoint string
	apiKey   string
	model    string
	logger   *zap.Logger

	producer bus.Producer
	unsub    bus.Unsubscribe

	queue *asyncqueue.Queue[turnRequest]

	cancelMu   sync.Mutex
	cancelTurn context.CancelFunc
}

// SSEGatewayFactory returns a Factory that drives endpoint as a raw SSE
// gateway emitting Anthropic Messages-API-shaped stream events, for
// deployments fronting a provider with their own HTTP proxy rather than a
// vendor SDK.
func SSEGatewayFactory(endpoint, apiKey, model string, logger *zap.Logger) Factory {
	return func(cfg Config, producer bus.Producer, consumer bus.Consumer) (Environment, error) {
		env := &sseEnvironment{
			cfg:      cfg,
			endpoint: endpoint,
			apiKey:   apiKey,
			model:    model,
			logger:   logger,
			producer: producer,
			queue:    asyncqueue.New[turnRequest](),
		}
		env.unsub = consumer.On("*", env.onBusEvent, bus.SubscribeOptions{
			Filter: func(ev bus.SystemEvent) bool {
				return ev.Context != nil && ev.Context.AgentID == cfg.AgentID &&
					(ev.Type == bus.EventUserMessage || ev.Type == bus.EventInterrupt)
			},
		})
		go env.runLoop()
		return env, nil
	}
}

func (e *sseEnvironment) onBusEvent(_ context.Context, ev bus.SystemEvent) error {
	switch ev.Type {
	case bus.EventUserMessage:
		content, _ := ev.Data.(string)
		e.queue.Push(turnRequest{
			meta:    ReceptorMeta{RequestID: ev.RequestID, Context: *ev.Context},
			content: content,
		})
	case bus.EventInterrupt:
		e.cancelMu.Lock()
		if e.cancelTurn != nil {
			e.cancelTurn()
		}
		e.cancelMu.Unlock()
	}
	return nil
}

func (e *sseEnvironment) runLoop() {
	for {
		req, ok := e.queue.Next()
		if !ok {
			return
		}
		e.driveTurn(req)
	}
}

func (e *sseEnvironment) driveTurn(req turnRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelMu.Lock()
	e.cancelTurn = cancel
	e.cancelMu.Unlock()
	defer cancel()

	body := anthropicOnBedrockBody{
		AnthropicVersion: "bedrock-2023-05-31", // reused envelope; gateway ignores the field name's origin
		MaxTokens:        4096,
		System:           e.cfg.SystemPrompt,
		Messages:         []bedrockMessage{{Role: "user", Content: req.content}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		e.producer.Emit(ctx, driveableEvent(bus.EventErrorReceived, req.meta, map[string]any{"message": err.Error()}))
		return
	}

	client := sse.NewClient(e.endpoint)
	client.Method = http.MethodPost
	client.Body = bytes.NewReader(payload)
	client.Headers["Content-Type"] = "application/json"
	client.Headers["X-Model"] = e.model
	if e.apiKey != "" {
		client.Headers["Authorization"] = "Bearer " + e.apiKey
	}

	toolOpen := map[int64]bool{}
	var sawError error

	err = client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		var se bedrockStreamEvent
		if jsonErr := json.Unmarshal(msg.Data, &se); jsonErr != nil {
			return
		}
		switch se.Type {
		case "message_start":
			e.producer.Emit(ctx, driveableEvent(bus.EventMessageStart, req.meta, map[string]any{
				"messageId": se.Message.ID, "model": se.Message.Model,
			}))
		case "content_block_start":
			if se.ContentBlock.Type == "tool_use" {
				toolOpen[se.Index] = true
				e.producer.Emit(ctx, driveableEvent(bus.EventToolUseBlockStart, req.meta, map[string]any{
					"index": se.Index, "id": se.ContentBlock.ID, "name": se.ContentBlock.Name,
				}))
			} else {
				e.producer.Emit(ctx, driveableEvent(bus.EventTextBlockStart, req.meta, map[string]any{"index": se.Index}))
			}
		case "content_block_delta":
			switch se.Delta.Type {
			case "text_delta":
				e.producer.Emit(ctx, driveableEvent(bus.EventTextDelta, req.meta, map[string]any{"text": se.Delta.Text}))
			case "input_json_delta":
				e.producer.Emit(ctx, driveableEvent(bus.EventInputJSONDelta, req.meta, map[string]any{
					"index": se.Index, "partialJson": se.Delta.PartialJSON,
				}))
			}
		case "content_block_stop":
			if toolOpen[se.Index] {
				e.producer.Emit(ctx, driveableEvent(bus.EventToolUseBlockStop, req.meta, map[string]any{"index": se.Index}))
				delete(toolOpen, se.Index)
			} else {
				e.producer.Emit(ctx, driveableEvent(bus.EventTextBlockStop, req.meta, map[string]any{"index": se.Index}))
			}
		case "message_delta":
			e.producer.Emit(ctx, driveableEvent(bus.EventMessageStop, req.meta, map[string]any{
				"stopReason":   se.Delta.StopReason,
				"stopSequence": se.Delta.StopSequence,
				"inputTokens":  se.Usage.InputTokens,
				"outputTokens": se.Usage.OutputTokens,
			}))
		case "error":
			sawError = fmt.Errorf("sse gateway error: %s", string(msg.Data))
		}
	})

	if ctx.Err() != nil {
		e.producer.Emit(ctx, driveableEvent(bus.EventInterrupted, req.meta, map[string]any{"reason": "user_interrupt"}))
		return
	}
	if err != nil {
		e.producer.Emit(ctx, driveableEvent(bus.EventErrorReceived, req.meta, map[string]any{"message": err.Error()}))
		return
	}
	if sawError != nil {
		e.producer.Emit(ctx, driveableEvent(bus.EventErrorReceived, req.meta, map[string]any{"message": sawError.Error()}))
	}
}

func (e *sseEnvironment) Warmup(ctx context.Context) error { return nil }

func (e *sseEnvironment) Close() error {
	e.cancelMu.Lock()
	if e.cancelTurn != nil {
		e.cancelTurn()
	}
	e.cancelMu.Unlock()
	e.queue.Close()
	if e.unsub != nil {
		e.unsub()
	}
	return nil
}
