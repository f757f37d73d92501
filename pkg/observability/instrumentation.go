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
package observability

// Standard span names shared across the runtime core.
// Component-local span names (bus.*, queue.*) live next to the code that emits them;
// these are the ones crossing package boundaries.
const (
	// Environment (Receptor/Effector) spans
	SpanEnvironmentSend    = "environment.send"
	SpanEnvironmentReceive = "environment.receive"
	SpanLLMCompletion      = "llm.completion"
	SpanLLMStream          = "llm.stream"

	// Interrupt channel spans
	SpanInterruptSend      = "interrupt.send"
	SpanInterruptBroadcast = "interrupt.broadcast"
	SpanInterruptHandle    = "interrupt.handle"
	SpanInterruptEnqueue   = "interrupt.enqueue"
	SpanInterruptRetry     = "interrupt.retry"
)

// Standard metric names for consistency.
const (
	MetricLLMCalls   = "llm.calls.total"
	MetricLLMLatency = "llm.latency"
	MetricLLMTokensInput = "llm.tokens.input" // #nosec G101 -- not a credential, just metric name
	MetricLLMTokensOutput = "llm.tokens.output" // #nosec G101 -- not a credential, just metric name
	MetricLLMErrors  = "llm.errors.total"

	MetricLLMStreamingTTFT   = "llm.streaming.ttft_ms"
	MetricLLMStreamingChunks = "llm.streaming.chunks.total"

	MetricInterruptSent      = "interrupt.sent.total"
	MetricInterruptDelivered = "interrupt.delivered.total"
	MetricInterruptDropped   = "interrupt.dropped.total"
	MetricInterruptQueued    = "interrupt.queued.total"
	MetricInterruptRetried   = "interrupt.retried.total"
	MetricInterruptLatency   = "interrupt.latency_ms"
	MetricInterruptQueueSize = "interrupt.queue.size"

	MetricDeliveryBacklog = "delivery.backlog.size"
	MetricDeliveryDropped = "delivery.dropped.total"
)

// Standard attribute names for consistency.
const (
	AttrSessionID = "session.id"
	AttrAgentID   = "agent.id"
	AttrImageID   = "image.id"
	AttrTraceID   = "trace.id"
	AttrSpanID    = "span.id"

	AttrLLMProvider    = "llm.provider"
	AttrLLMModel       = "llm.model"
	AttrLLMTemperature = "llm.temperature"
	AttrLLMMaxTokens   = "llm.max_tokens" // #nosec G101 -- not a credential, just attribute name
	AttrLLMStreaming   = "llm.streaming"
	AttrLLMTTFT        = "llm.ttft_ms"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
	AttrErrorStack   = "error.stack"

	AttrInterruptSignal    = "interrupt.signal"
	AttrInterruptPriority  = "interrupt.priority"
	AttrInterruptTarget    = "interrupt.target"
	AttrInterruptSender    = "interrupt.sender"
	AttrInterruptPath      = "interrupt.path" // "fast" or "slow"
	AttrInterruptDelivered = "interrupt.delivered"
	AttrInterruptRetries   = "interrupt.retries"
	AttrInterruptQueueID   = "interrupt.queue.id"
)
