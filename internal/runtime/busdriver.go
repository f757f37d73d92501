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

	"github.com/teradata-labs/loomrun/internal/bus"
)

// StreamEvent is the outbound-normalized shape BusDriver hands to the engine.
type StreamEvent struct {
	Kind string // mirrors a bus.Event* DriveableEvent constant, or "message_stop" folded from interrupted

	RequestID string
	Context   bus.EventContext

	MessageID string
	Model     string

	Index int64

	Text string // text_delta

	ToolCallID string // tool_use_*, tool_result
	ToolName   string // tool_use_content_block_start
	InputDelta string // input_json_delta partial JSON

	StopReason   string // message_stop
	StopSequence string
	InputTokens  int
	OutputTokens int

	ResultOutput  string // tool_result
	ResultIsError bool

	ErrorMessage string // error_received
	ErrorCode    string
}

// StreamSink receives normalized stream events and a completion signal.
type StreamSink interface {
	OnStreamEvent(ctx context.Context, se StreamEvent)
	OnStreamComplete(ctx context.Context, reason string)
}

// BusDriver is the outbound side of an agent: it subscribes to the bus
// consumer view, filters to this agent's environment-sourced DriveableEvents,
// normalizes them to StreamEvent, and feeds the engine.
type BusDriver struct {
	agentID string
	sink    StreamSink
	unsub   bus.Unsubscribe
}

// NewBusDriver subscribes sink to agentID's DriveableEvent stream.
func NewBusDriver(consumer bus.Consumer, agentID string, sink StreamSink) *BusDriver {
	d := &BusDriver{agentID: agentID, sink: sink}
	d.unsub = consumer.On("*", d.handle, bus.SubscribeOptions{
		Filter: func(ev bus.SystemEvent) bool {
			return ev.Source == bus.SourceEnvironment &&
				bus.IsDriveableEventType(ev.Type) &&
				ev.Context != nil && ev.Context.AgentID == agentID
		},
	})
	return d
}

func (d *BusDriver) handle(ctx context.Context, ev bus.SystemEvent) error {
	evCtx := bus.EventContext{}
	if ev.Context != nil {
		evCtx = *ev.Context
	}
	se := StreamEvent{Kind: ev.Type, RequestID: ev.RequestID, Context: evCtx}

	data, _ := ev.Data.(map[string]any)

	switch ev.Type {
	case bus.EventMessageStart:
		se.MessageID, _ = data["messageId"].(string)
		se.Model, _ = data["model"].(string)
	case bus.EventTextBlockStart, bus.EventTextBlockStop:
		se.Index = toInt64(data["index"])
	case bus.EventTextDelta:
		se.Text, _ = data["text"].(string)
	case bus.EventToolUseBlockStart:
		se.Index = toInt64(data["index"])
		se.ToolCallID, _ = data["id"].(string)
		se.ToolName, _ = data["name"].(string)
	case bus.EventInputJSONDelta:
		se.Index = toInt64(data["index"])
		se.InputDelta, _ = data["partialJson"].(string)
	case bus.EventToolUseBlockStop:
		se.Index = toInt64(data["index"])
	case bus.EventMessageStop:
		se.StopReason, _ = data["stopReason"].(string)
		se.StopSequence, _ = data["stopSequence"].(string)
		se.InputTokens = int(toInt64(data["inputTokens"]))
		se.OutputTokens = int(toInt64(data["outputTokens"]))
	case bus.EventToolResult:
		se.ToolCallID, _ = data["toolUseId"].(string)
		se.ResultOutput, _ = data["result"].(string)
		se.ResultIsError, _ = data["isError"].(bool)
	case bus.EventInterrupted:
		// Folded so the engine sees only a terminating
		// message_stop; the interrupted event's own reason is not carried
		// into the StreamEvent.
		se.Kind = bus.EventMessageStop
		se.StopReason = "end_turn"
	case bus.EventErrorReceived:
		se.ErrorMessage, _ = data["message"].(string)
		se.ErrorCode, _ = data["errorCode"].(string)
	}

	d.sink.OnStreamEvent(ctx, se)
	return nil
}

// Dispose releases the bus subscription.
func (d *BusDriver) Dispose() {
	if d.unsub != nil {
		d.unsub()
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
