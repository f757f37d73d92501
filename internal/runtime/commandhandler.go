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
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/message"
)

// CommandHandler binds request event types to Runtime operations and emits
// the paired response event.
type CommandHandler struct {
	bus     *bus.Bus
	runtime *Runtime
	logger  *zap.Logger

	unsubs []bus.Unsubscribe
}

// NewCommandHandler registers handlers for every request type in the
// contract table and returns the handler for later Stop().
func NewCommandHandler(b *bus.Bus, rt *Runtime, logger *zap.Logger) *CommandHandler {
	h := &CommandHandler{bus: b, runtime: rt, logger: logger}

	register := map[string]bus.Handler{
		"container_create_request": h.handleContainerCreate,
		"container_get_request":    h.handleContainerGet,
		"container_list_request":   h.handleContainerList,
		"image_create_request":     h.handleImageCreate,
		"image_run_request":        h.handleImageRun,
		"image_stop_request":       h.handleImageStop,
		"image_update_request":     h.handleImageUpdate,
		"image_list_request":       h.handleImageList,
		"image_get_request":        h.handleImageGet,
		"image_delete_request":     h.handleImageDelete,
		"image_messages_request":   h.handleImageMessages,
		"message_send_request":     h.handleMessageSend,
		"agent_interrupt_request":  h.handleAgentInterrupt,
		"agent_get_request":        h.handleAgentGet,
		"agent_destroy_request":    h.handleAgentDestroy,
		"agent_destroy_all_request": h.handleAgentDestroyAll,
	}
	for t, fn := range register {
		h.unsubs = append(h.unsubs, b.OnCommand(t, h.wrap(t, fn)))
	}
	return h
}

// Stop unsubscribes every registered handler.
func (h *CommandHandler) Stop() {
	for _, u := range h.unsubs {
		u()
	}
}

// wrap validates the payload (if a schema is registered) before delegating
// to fn, and converts a returned error into a response error field, also
// broadcasting system_error for Operational-kind failures only.
func (h *CommandHandler) wrap(reqType string, fn bus.Handler) bus.Handler {
	return func(ctx context.Context, ev bus.SystemEvent) error {
		if schema, ok := requestSchemas[reqType]; ok {
			if verr := validatePayload(schema, ev.Data); verr != nil {
				h.emitError(ctx, reqType, ev, ValidationError(reqType, verr))
				return nil
			}
		}
		if err := fn(ctx, ev); err != nil {
			h.emitError(ctx, reqType, ev, err)
		}
		return nil
	}
}

func validatePayload(schema string, data any) error {
	if data == nil {
		data = map[string]any{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return err
	}
	if !result.Valid() {
		if len(result.Errors()) > 0 {
			return fmt.Errorf("%s", result.Errors()[0].String())
		}
		return fmt.Errorf("payload failed schema validation")
	}
	return nil
}

func (h *CommandHandler) emitError(ctx context.Context, reqType string, ev bus.SystemEvent, err error) {
	respType := bus.ResponseTypeFor(reqType)
	h.bus.EmitCommand(ctx, respType, map[string]any{"error": err.Error()}, ev.Context, ev.RequestID)

	if kindOf(err) == KindOperational {
		h.bus.Emit(ctx, bus.SystemEvent{
			Type: "system_error", Source: bus.SourceCommand, Category: bus.CategoryError, Intent: bus.IntentNotification,
			Data: map[string]any{
				"message": err.Error(), "requestId": ev.RequestID, "severity": "error",
				"details": map[string]any{"operation": reqType},
			},
		})
	}
}

func (h *CommandHandler) respond(ctx context.Context, reqType string, ev bus.SystemEvent, data any, subscriptions []string) {
	respType := bus.ResponseTypeFor(reqType)
	h.bus.Emit(ctx, bus.SystemEvent{
		Type: respType, Source: bus.SourceCommand, Category: bus.CategoryResponse, Intent: bus.IntentResult,
		Data: data, Context: ev.Context, RequestID: ev.RequestID, Subscriptions: subscriptions,
	})
}

func strField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func (h *CommandHandler) handleContainerCreate(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	containerID := strField(data, "containerId")
	id, err := h.runtime.ContainerCreate(ctx, containerID)
	if err != nil {
		return OperationalError("container_create", err)
	}
	h.respond(ctx, "container_create_request", ev, map[string]any{"containerId": id}, nil)
	return nil
}

func (h *CommandHandler) handleContainerGet(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	containerID := strField(data, "containerId")
	exists := h.runtime.ContainerGet(containerID)
	resp := map[string]any{"exists": exists}
	if exists {
		resp["containerId"] = containerID
	}
	h.respond(ctx, "container_get_request", ev, resp, nil)
	return nil
}

func (h *CommandHandler) handleContainerList(ctx context.Context, ev bus.SystemEvent) error {
	h.respond(ctx, "container_list_request", ev, map[string]any{"containerIds": h.runtime.ContainerList()}, nil)
	return nil
}

func (h *CommandHandler) handleImageCreate(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	cfg, _ := data["config"].(map[string]any)
	in := ImageCreateInput{ContainerID: strField(data, "containerId")}
	if cfg != nil {
		in.Name = strField(cfg, "name")
		in.Description = strField(cfg, "description")
		in.SystemPrompt = strField(cfg, "systemPrompt")
		if raw, ok := cfg["mcpServers"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					in.MCPServers = append(in.MCPServers, s)
				}
			}
		}
	}
	img, err := h.runtime.ImageCreate(ctx, in)
	if err != nil {
		return OperationalError("image_create", err)
	}
	h.respond(ctx, "image_create_request", ev, map[string]any{"record": img}, []string{img.SessionID})
	return nil
}

func (h *CommandHandler) handleImageRun(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	imageID := strField(data, "imageId")
	agentID, reused, err := h.runtime.ImageRun(ctx, imageID)
	if err != nil {
		return ValidationError("image_run", err)
	}
	h.respond(ctx, "image_run_request", ev, map[string]any{"imageId": imageID, "agentId": agentID, "reused": reused}, nil)
	return nil
}

func (h *CommandHandler) handleImageStop(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	imageID := strField(data, "imageId")
	if err := h.runtime.ImageStop(ctx, imageID); err != nil {
		return ValidationError("image_stop", err)
	}
	h.respond(ctx, "image_stop_request", ev, map[string]any{"imageId": imageID}, nil)
	return nil
}

func (h *CommandHandler) handleImageUpdate(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	updates, _ := data["updates"].(map[string]any)
	img, err := h.runtime.ImageUpdate(ctx, strField(data, "imageId"), strField(updates, "name"), strField(updates, "description"))
	if err != nil {
		return ValidationError("image_update", err)
	}
	h.respond(ctx, "image_update_request", ev, map[string]any{"record": img}, nil)
	return nil
}

func (h *CommandHandler) handleImageList(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	records, err := h.runtime.ImageList(ctx, strField(data, "containerId"))
	if err != nil {
		return OperationalError("image_list", err)
	}
	subs := make([]string, 0, len(records))
	for _, r := range records {
		subs = append(subs, r.SessionID)
	}
	h.respond(ctx, "image_list_request", ev, map[string]any{"records": records}, subs)
	return nil
}

func (h *CommandHandler) handleImageGet(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	rec, ok, err := h.runtime.ImageGet(ctx, strField(data, "imageId"))
	if err != nil {
		return OperationalError("image_get", err)
	}
	if !ok {
		h.respond(ctx, "image_get_request", ev, map[string]any{"record": nil}, nil)
		return nil
	}
	h.respond(ctx, "image_get_request", ev, map[string]any{"record": rec}, []string{rec.SessionID})
	return nil
}

func (h *CommandHandler) handleImageDelete(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	imageID := strField(data, "imageId")
	if err := h.runtime.ImageDelete(ctx, imageID); err != nil {
		return OperationalError("image_delete", err)
	}
	h.respond(ctx, "image_delete_request", ev, map[string]any{"imageId": imageID}, nil)
	return nil
}

func (h *CommandHandler) handleImageMessages(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	imageID := strField(data, "imageId")
	msgs, err := h.runtime.ImageMessages(ctx, imageID)
	if err != nil {
		return ValidationError("image_messages", err)
	}
	h.respond(ctx, "image_messages_request", ev, map[string]any{"imageId": imageID, "messages": msgs}, nil)
	return nil
}

func (h *CommandHandler) handleMessageSend(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	content := parseContentParts(data["content"])
	agentID, err := h.runtime.MessageSend(ctx, strField(data, "imageId"), strField(data, "agentId"), content, ev.RequestID)
	if err != nil {
		return OperationalError("message_send", err)
	}
	resp := map[string]any{"agentId": agentID}
	if imageID := strField(data, "imageId"); imageID != "" {
		resp["imageId"] = imageID
	}
	h.respond(ctx, "message_send_request", ev, resp, nil)
	return nil
}

func (h *CommandHandler) handleAgentInterrupt(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	agentID, err := h.runtime.AgentInterrupt(ctx, strField(data, "imageId"), strField(data, "agentId"), ev.RequestID)
	if err != nil {
		return ValidationError("agent_interrupt", err)
	}
	resp := map[string]any{}
	if imageID := strField(data, "imageId"); imageID != "" {
		resp["imageId"] = imageID
	}
	if agentID != "" {
		resp["agentId"] = agentID
	}
	h.respond(ctx, "agent_interrupt_request", ev, resp, nil)
	return nil
}

func (h *CommandHandler) handleAgentGet(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	agentID := strField(data, "agentId")
	state, ok := h.runtime.AgentGet(agentID)
	h.respond(ctx, "agent_get_request", ev, map[string]any{"agentId": agentID, "exists": ok, "lifecycle": string(state)}, nil)
	return nil
}

func (h *CommandHandler) handleAgentDestroy(ctx context.Context, ev bus.SystemEvent) error {
	data, _ := ev.Data.(map[string]any)
	agentID := strField(data, "agentId")
	if err := h.runtime.AgentDestroy(ctx, agentID); err != nil {
		return OperationalError("agent_destroy", err)
	}
	h.respond(ctx, "agent_destroy_request", ev, map[string]any{"agentId": agentID}, nil)
	return nil
}

func (h *CommandHandler) handleAgentDestroyAll(ctx context.Context, ev bus.SystemEvent) error {
	if err := h.runtime.AgentDestroyAll(ctx); err != nil {
		return OperationalError("agent_destroy_all", err)
	}
	h.respond(ctx, "agent_destroy_all_request", ev, map[string]any{}, nil)
	return nil
}

func parseContentParts(raw any) []message.ContentPart {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]message.ContentPart, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		part := message.ContentPart{Type: strField(m, "type"), Text: strField(m, "text"), MimeType: strField(m, "mimeType")}
		out = append(out, part)
	}
	return out
}
