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
// Package runtime implements the runtime core above the bus: Container,
// Image, Agent lifecycle; AgentInteractor/BusDriver/AgentEngine+Presenter;
// RuntimeAgent wiring; RuntimeContainer; and the CommandHandler binding
// request events to these operations.
package runtime

import "sync"

// Container groups images sharing a process-local namespace.
type Container struct {
	ContainerID string
	CreatedAt   int64
}

// ImageMetadata carries cross-restart state a RuntimeAgent must always
// re-read from the ImageRecord rather than cache.
type ImageMetadata struct {
	ResumeSessionID string
}

// Image is the persistent conversation record.
type Image struct {
	ImageID      string
	ContainerID  string
	SessionID    string
	Name         string
	Description  string
	SystemPrompt string
	MCPServers   []string
	Metadata     ImageMetadata
	CreatedAt    int64
	UpdatedAt    int64
}

// Lifecycle is an Agent's state.
type Lifecycle string

const (
	LifecycleRunning   Lifecycle = "running"
	LifecycleStopped   Lifecycle = "stopped"
	LifecycleDestroyed Lifecycle = "destroyed"
)

// AgentRecord is the transient runtime instance of an image, at most one
// live per image at a time.
type AgentRecord struct {
	AgentID     string
	ImageID     string
	ContainerID string
	CreatedAt   int64

	mu        sync.RWMutex
	lifecycle Lifecycle
}

func newAgentRecord(agentID, imageID, containerID string, now int64) *AgentRecord {
	return &AgentRecord{AgentID: agentID, ImageID: imageID, ContainerID: containerID, CreatedAt: now, lifecycle: LifecycleRunning}
}

// State returns the agent's current lifecycle state.
func (a *AgentRecord) State() Lifecycle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lifecycle
}

func (a *AgentRecord) setState(l Lifecycle) {
	a.mu.Lock()
	a.lifecycle = l
	a.mu.Unlock()
}
