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

import "strings"

// Source identifies who emitted a SystemEvent.
type Source string

const (
	SourceEnvironment Source = "environment"
	SourceAgent       Source = "agent"
	SourceSession     Source = "session"
	SourceContainer   Source = "container"
	SourceCommand     Source = "command"
)

// Category classifies a SystemEvent for routing and delivery filtering.
type Category string

const (
	CategoryStream    Category = "stream"
	CategoryState     Category = "state"
	CategoryMessage   Category = "message"
	CategoryTurn      Category = "turn"
	CategoryLifecycle Category = "lifecycle"
	CategoryPersist   Category = "persist"
	CategoryRequest   Category = "request"
	CategoryResponse  Category = "response"
	CategoryError     Category = "error"
	CategoryAction    Category = "action"
)

// Intent further classifies a SystemEvent's role in a request/response cycle.
type Intent string

const (
	IntentRequest      Intent = "request"
	IntentResult       Intent = "result"
	IntentNotification Intent = "notification"
)

// EventContext scopes an event to the resources it concerns. Every field is
// optional; DriveableEvents always set AgentID, Delivery Queue enqueueing
// requires SessionID.
type EventContext struct {
	ContainerID string
	ImageID     string
	AgentID     string
	SessionID   string
}

// SystemEvent is the single atom carried on the bus.
type SystemEvent struct {
	Type      string
	Timestamp int64
	Source    Source
	Category  Category
	Intent    Intent
	Data      any
	Context   *EventContext
	RequestID string

	// Subscriptions carries a response's __subscriptions auto-subscribe hint;
	// the transport layer reads this, the queue itself does not interpret it.
	Subscriptions []string
}

// DriveableEvent type constants — the internal, source=environment taxonomy
// emitted by an Environment's Receptor.
const (
	EventMessageStart            = "message_start"
	EventTextBlockStart           = "text_content_block_start"
	EventTextDelta                = "text_delta"
	EventTextBlockStop            = "text_content_block_stop"
	EventToolUseBlockStart        = "tool_use_content_block_start"
	EventInputJSONDelta           = "input_json_delta"
	EventToolUseBlockStop         = "tool_use_content_block_stop"
	EventMessageStop              = "message_stop"
	EventToolResult               = "tool_result"
	EventInterrupted              = "interrupted"
	EventErrorReceived             = "error_received"
)

// driveableEventTypes is the set BusDriver filters on.
var driveableEventTypes = map[string]bool{
	EventMessageStart:     true,
	EventTextBlockStart:   true,
	EventTextDelta:        true,
	EventTextBlockStop:    true,
	EventToolUseBlockStart: true,
	EventInputJSONDelta:   true,
	EventToolUseBlockStop: true,
	EventMessageStop:      true,
	EventToolResult:       true,
	EventInterrupted:      true,
	EventErrorReceived:    true,
}

// IsDriveableEventType reports whether t is one of the DriveableEvent types.
func IsDriveableEventType(t string) bool {
	return driveableEventTypes[t]
}

// Internal-only (not delivered to external consumers) action/message types.
const (
	EventUserMessage = "user_message" // source=agent, category=message, intent=request
	EventInterrupt   = "interrupt"    // source=agent, category=action, intent=request
)

// ResponseTypeFor derives a request type's paired response type by replacing
// the "_request" suffix with "_response", per SystemBus.request's contract.
func ResponseTypeFor(requestType string) string {
	return strings.TrimSuffix(requestType, "_request") + "_response"
}

// IsRequestType reports whether t names a *_request command event.
func IsRequestType(t string) bool {
	return strings.HasSuffix(t, "_request")
}
