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
	"encoding/json"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/asyncqueue"
	"github.com/teradata-labs/loomrun/internal/bus"
)

// anthropicOnBedrockBody is the Anthropic Messages wire body Bedrock's
// InvokeModelWithResponseStream expects for anthropic.* model families.
type anthropicOnBedrockBody struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	System           string                   `json:"system,omitempty"`
	Messages         []bedrockMessage         `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// bedrockStreamEvent mirrors the subset of Anthropic-on-Bedrock's streaming
// chunk envelope this adapter needs; unrecognized types are ignored.
type bedrockStreamEvent struct {
	Type  string `json:"type"`
	Index int64  `json:"index"`
	Delta struct {
		Type         string `json:"type"`
		Text         string `json:"text"`
		PartialJSON  string `json:"partial_json"`
		StopReason   string `json:"stop_reason"`
		StopSequence string `json:"stop_sequence"`
	} `json:"delta"`
	ContentBlock struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Name  string `json:"name"`
	} `json:"content_block"`
	Message struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"message"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type bedrockEnvironment struct {
	cfg    Config
	client *bedrockruntime.Client
	model  string
	logger *zap.Logger

	producer bus.Producer
	unsub    bus.Unsubscribe

	queue *asyncqueue.Queue[turnRequest]

	mu            sync.Mutex
	sdkSessionSet bool

	cancelMu   sync.Mutex
	cancelTurn context.CancelFunc
}

// BedrockFactory returns a Factory driving Anthropic models hosted on Amazon
// Bedrock via aws-sdk-go-v2's bedrockruntime client, grounded on the
// single-flight turn-queue shape shared with AnthropicFactory.
func BedrockFactory(region, modelID string, logger *zap.Logger) (Factory, error) {
	// Credentials come from the default provider chain (env, shared config, IMDS).
	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := bedrockruntime.NewFromConfig(awsCfg)

	return func(cfg Config, producer bus.Producer, consumer bus.Consumer) (Environment, error) {
		env := &bedrockEnvironment{
			cfg:      cfg,
			client:   client,
			model:    modelID,
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
	}, nil
}

func (e *bedrockEnvironment) onBusEvent(_ context.Context, ev bus.SystemEvent) error {
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

func (e *bedrockEnvironment) runLoop() {
	for {
		req, ok := e.queue.Next()
		if !ok {
			return
		}
		e.driveTurn(req)
	}
}

func (e *bedrockEnvironment) driveTurn(req turnRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelMu.Lock()
	e.cancelTurn = cancel
	e.cancelMu.Unlock()
	defer cancel()

	body := anthropicOnBedrockBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		System:           e.cfg.SystemPrompt,
		Messages:         []bedrockMessage{{Role: "user", Content: req.content}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		e.producer.Emit(ctx, driveableEvent(bus.EventErrorReceived, req.meta, map[string]any{"message": err.Error()}))
		return
	}

	out, err := e.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(e.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		if ctx.Err() != nil {
			e.producer.Emit(ctx, driveableEvent(bus.EventInterrupted, req.meta, map[string]any{"reason": "user_interrupt"}))
			return
		}
		e.producer.Emit(ctx, driveableEvent(bus.EventErrorReceived, req.meta, map[string]any{"message": err.Error()}))
		return
	}

	stream := out.GetStream()
	defer stream.Close()

	toolOpen := map[int64]bool{}

	for evOut := range stream.Events() {
		chunk, ok := evOut.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		var se bedrockStreamEvent
		if err := json.Unmarshal(chunk.Value.Bytes, &se); err != nil {
			continue
		}

		switch se.Type {
		case "message_start":
			e.captureSessionID(se.Message.ID)
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
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			e.producer.Emit(ctx, driveableEvent(bus.EventInterrupted, req.meta, map[string]any{"reason": "user_interrupt"}))
			return
		}
		e.producer.Emit(ctx, driveableEvent(bus.EventErrorReceived, req.meta, map[string]any{"message": err.Error()}))
	}
}

func (e *bedrockEnvironment) captureSessionID(id string) {
	if id == "" {
		return
	}
	e.mu.Lock()
	already := e.sdkSessionSet
	e.sdkSessionSet = true
	e.mu.Unlock()
	if !already && id != "" && e.cfg.OnSessionIDCaptured != nil {
		e.cfg.OnSessionIDCaptured(id)
	}
}

func (e *bedrockEnvironment) Warmup(ctx context.Context) error {
	return nil
}

func (e *bedrockEnvironment) Close() error {
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
