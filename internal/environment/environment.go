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
// Package environment implements the Receptor/Effector pair that adapts an
// external LLM stream into internal DriveableEvents. The
// Effector subscribes to user_message/interrupt on the bus consumer view and
// drives a single-flight conversation with the provider; the Receptor turns
// each partial SDK event into a DriveableEvent tagged with the requestId and
// context captured at send time.
package environment

import (
	"context"

	"github.com/teradata-labs/loomrun/internal/bus"
)

// Config configures one Environment instance, one per agent.
type Config struct {
	AgentID         string
	ContainerID     string
	ImageID         string
	SystemPrompt    string
	Cwd             string // sandbox workdir
	ResumeSessionID string
	MCPServers      []string

	// OnSessionIDCaptured reports the first SDK session id seen for this
	// agent, so RuntimeAgent can persist it to the image's Metadata.ResumeSessionID.
	OnSessionIDCaptured func(sessionID string)
}

// Environment is the adapter pair facing the LLM for one agent.
type Environment interface {
	// Warmup establishes provider-side resources (e.g. a resumed session)
	// ahead of the first turn. Failure is non-fatal; RuntimeAgent logs and
	// continues, deferring to the first real turn to surface any error.
	Warmup(ctx context.Context) error

	// Close cancels any in-flight turn and releases SDK resources.
	Close() error
}

// Factory constructs an Environment wired to the bus: its Receptor emits
// DriveableEvents via producer; its Effector subscribes to user_message and
// interrupt events for cfg.AgentID via consumer.
type Factory func(cfg Config, producer bus.Producer, consumer bus.Consumer) (Environment, error)

// ReceptorMeta is captured at send time and re-attached to every
// DriveableEvent emitted for that turn, so BusDriver can route it back to
// the right agent and the right in-flight request.
type ReceptorMeta struct {
	RequestID string
	Context   bus.EventContext
}

func driveableEvent(typ string, meta ReceptorMeta, data any) bus.SystemEvent {
	ctx := meta.Context
	return bus.SystemEvent{
		Type:      typ,
		Source:    bus.SourceEnvironment,
		Category:  bus.CategoryStream,
		Intent:    bus.IntentNotification,
		Data:      data,
		Context:   &ctx,
		RequestID: meta.RequestID,
	}
}
