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
// Package interrupt is the runtime's targeted, prioritized signal
// channel. It supplements the bare `interrupt` action
// event AgentInteractor emits with a typed, prioritized signal catalog:
//
// - CRITICAL (0-9):  persistent queue fallback retried up to maxRetries times, <1s
// - HIGH     (10-19): best-effort, large buffers, <5s
// - NORMAL   (20-29): best-effort, medium buffers, <30s
// - Custom (1000+): caller-defined signals
package interrupt

import "fmt"

// Signal is a type-safe interrupt signal enum.
type Signal int

const (
	// SignalEmergencyStop immediately halts all agent operations.
	SignalEmergencyStop Signal = 0

	// SignalTurnCancel is sent for agent_interrupt_request: cancel the
	// agent's in-flight turn.
	SignalTurnCancel Signal = 1

	// SignalHealthCheck requests health status from an agent.
	SignalHealthCheck Signal = 20

	// SignalConfigReload triggers a hot-reload of an agent's configuration.
	SignalConfigReload Signal = 21

	// SignalCustomBase is the starting point for caller-defined signals.
	SignalCustomBase Signal = 1000
)

// Priority defines interrupt delivery priority.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
)

func (s Signal) String() string {
	switch s {
	case SignalEmergencyStop:
		return "EMERGENCY_STOP"
	case SignalTurnCancel:
		return "TURN_CANCEL"
	case SignalHealthCheck:
		return "HEALTH_CHECK"
	case SignalConfigReload:
		return "CONFIG_RELOAD"
	default:
		if s >= SignalCustomBase {
			return fmt.Sprintf("CUSTOM_%d", s-SignalCustomBase)
		}
		return fmt.Sprintf("UNKNOWN_%d", s)
	}
}

// Priority returns the delivery priority for this signal based on its range.
func (s Signal) Priority() Priority {
	switch {
	case s >= 0 && s <= 9:
		return PriorityCritical
	case s >= 10 && s <= 19:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// BufferSize returns the recommended channel buffer size for this priority.
func (p Priority) BufferSize() int {
	switch p {
	case PriorityCritical, PriorityHigh:
		return 10000
	default:
		return 1000
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	default:
		return fmt.Sprintf("UNKNOWN_%d", p)
	}
}

// IsCritical returns true if this signal uses the persistent-queue fallback.
func (s Signal) IsCritical() bool {
	return s.Priority() == PriorityCritical
}
