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
// Package message defines the tagged Message variants that make up a
// session's log: user, assistant, tool-call, tool-result and error.
package message

import (
	"context"

	"github.com/teradata-labs/loomrun/internal/pubsub"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Subtype discriminates the tagged Message variants.
type Subtype string

const (
	SubtypeUser       Subtype = "user"
	SubtypeAssistant  Subtype = "assistant"
	SubtypeToolCall   Subtype = "tool-call"
	SubtypeToolResult Subtype = "tool-result"
	SubtypeError      Subtype = "error"
)

// ContentPart is one piece of multimodal user content.
type ContentPart struct {
	Type     string // "text" | "image" | "file"
	Text     string
	MimeType string
	Data     []byte
}

// ToolCall is the invocation payload carried by a tool-call Message.
type ToolCall struct {
	ID    string
	Name  string
	Input string // raw JSON, assembled incrementally from input_json_delta
}

// ToolOutput is the result payload carried by a tool-result Message.
type ToolOutput struct {
	Output  string
	IsError bool
}

// Usage records token accounting for an assistant Message, when the
// provider reports it or it was estimated locally (see internal/runtime/usage.go).
type Usage struct {
	InputTokens  int
	OutputTokens int
	Model        string
}

// Message is one entry in a session's ordered log. Every variant shares the
// common envelope fields; only the fields relevant to Subtype are populated.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Subtype   Subtype
	Timestamp int64
	ParentID  string // e.g. tool-call's owning assistant message id

	// user
	Content []ContentPart

	// assistant
	Text       string
	FinishedAt int64

	// tool-call
	ToolCall ToolCall

	// tool-result
	ToolCallID string
	ToolResult ToolOutput

	// error
	ErrorText string
	ErrorCode string

	Usage *Usage
}

// NewUserMessage builds a user Message from text-or-multimodal content.
func NewUserMessage(id, sessionID string, content []ContentPart, timestamp int64) Message {
	return Message{
		ID:        id,
		SessionID: sessionID,
		Role:      RoleUser,
		Subtype:   SubtypeUser,
		Timestamp: timestamp,
		Content:   content,
	}
}

// NewAssistantMessage builds the final assistant Message for a completed turn.
func NewAssistantMessage(id, sessionID, text string, timestamp int64, usage *Usage) Message {
	return Message{
		ID:         id,
		SessionID:  sessionID,
		Role:       RoleAssistant,
		Subtype:    SubtypeAssistant,
		Timestamp:  timestamp,
		Text:       text,
		FinishedAt: timestamp,
		Usage:      usage,
	}
}

// NewToolCallMessage builds a tool-call Message, parented to the assistant message id.
func NewToolCallMessage(id, sessionID, parentID string, call ToolCall, timestamp int64) Message {
	return Message{
		ID:        id,
		SessionID: sessionID,
		Role:      RoleAssistant,
		Subtype:   SubtypeToolCall,
		Timestamp: timestamp,
		ParentID:  parentID,
		ToolCall:  call,
	}
}

// NewToolResultMessage builds a tool-result Message bound to its tool-call by ID.
func NewToolResultMessage(id, sessionID, toolCallID string, result ToolOutput, timestamp int64) Message {
	return Message{
		ID:         id,
		SessionID:  sessionID,
		Role:       RoleTool,
		Subtype:    SubtypeToolResult,
		Timestamp:  timestamp,
		ToolCallID: toolCallID,
		ToolResult: result,
	}
}

// NewErrorMessage builds an error Message terminating a turn.
func NewErrorMessage(id, sessionID, text, code string, timestamp int64) Message {
	return Message{
		ID:        id,
		SessionID: sessionID,
		Role:      RoleSystem,
		Subtype:   SubtypeError,
		Timestamp: timestamp,
		ErrorText: text,
		ErrorCode: code,
	}
}

// IsResolved reports whether a tool-call has a bound ToolResult; callers
// track this by scanning the log for a tool-result with matching ToolCallID,
// since resolution is a relationship between two log entries, not a field
// on the tool-call itself.
func (m Message) IsResolved(log []Message) bool {
	if m.Subtype != SubtypeToolCall {
		return true
	}
	for _, other := range log {
		if other.Subtype == SubtypeToolResult && other.ToolCallID == m.ToolCall.ID {
			return true
		}
	}
	return false
}

// Service defines the read/subscribe surface consumers use to observe a
// session's message log (used by image_messages_request handling).
type Service interface {
	List(ctx context.Context, sessionID string) ([]Message, error)
	Subscribe(ctx context.Context) <-chan pubsub.Event[Message]
}
