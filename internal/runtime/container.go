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
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/environment"
	"github.com/teradata-labs/loomrun/internal/interrupt"
	"github.com/teradata-labs/loomrun/internal/session"
)

// RunResult is runImage's outcome.
type RunResult struct {
	Agent   *RuntimeAgent
	Reused  bool
}

// RuntimeContainer groups images and maintains the image↔agent mapping for
// one Container.
type RuntimeContainer struct {
	Record Container

	basePath string
	bus      *bus.Bus
	store    session.Store
	factory  environment.Factory
	ic       *interrupt.Channel
	logger   *zap.Logger

	mu          sync.Mutex
	imageToAgent map[string]*RuntimeAgent
	agents       map[string]*RuntimeAgent
}

// NewRuntimeContainer builds an empty in-memory container. ic may be nil.
func NewRuntimeContainer(rec Container, basePath string, b *bus.Bus, store session.Store, factory environment.Factory, ic *interrupt.Channel, logger *zap.Logger) *RuntimeContainer {
	return &RuntimeContainer{
		Record:       rec,
		basePath:     basePath,
		bus:          b,
		store:        store,
		factory:      factory,
		ic:           ic,
		logger:       logger,
		imageToAgent: make(map[string]*RuntimeAgent),
		agents:       make(map[string]*RuntimeAgent),
	}
}

// RunImage returns the live agent for img, reusing an existing one if its
// lifecycle is not destroyed, or building a fresh RuntimeAgent otherwise.
func (c *RuntimeContainer) RunImage(ctx context.Context, img Image) (RunResult, error) {
	c.mu.Lock()
	if existing, ok := c.imageToAgent[img.ImageID]; ok {
		if existing.Record.State() != LifecycleDestroyed {
			c.mu.Unlock()
			return RunResult{Agent: existing, Reused: true}, nil
		}
		delete(c.imageToAgent, img.ImageID)
		delete(c.agents, existing.Record.AgentID)
	}
	c.mu.Unlock()

	agentID := uuid.New().String()
	ra, err := NewRuntimeAgent(ctx, c.basePath, img, agentID, c.bus, c.store, c.factory, c.ic, c.logger)
	if err != nil {
		return RunResult{}, err
	}

	c.mu.Lock()
	c.imageToAgent[img.ImageID] = ra
	c.agents[agentID] = ra
	c.mu.Unlock()

	evCtx := bus.EventContext{ContainerID: img.ContainerID, ImageID: img.ImageID, AgentID: agentID, SessionID: img.SessionID}
	c.bus.Emit(ctx, bus.SystemEvent{
		Type: "agent_registered", Source: bus.SourceContainer, Category: bus.CategoryLifecycle,
		Intent: bus.IntentNotification, Context: &evCtx,
	})
	return RunResult{Agent: ra, Reused: false}, nil
}

// StopImage destroys imageID's agent, if any, and removes the mapping. The
// Image record itself is untouched.
func (c *RuntimeContainer) StopImage(ctx context.Context, imageID string) error {
	c.mu.Lock()
	ra, ok := c.imageToAgent[imageID]
	if ok {
		delete(c.imageToAgent, imageID)
		delete(c.agents, ra.Record.AgentID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return ra.Destroy(ctx)
}

// DestroyAgent destroys a specific agent by id and emits agent_unregistered.
func (c *RuntimeContainer) DestroyAgent(ctx context.Context, agentID string) error {
	c.mu.Lock()
	ra, ok := c.agents[agentID]
	if ok {
		delete(c.agents, agentID)
		delete(c.imageToAgent, ra.Record.ImageID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	err := ra.Destroy(ctx)

	evCtx := bus.EventContext{ContainerID: c.Record.ContainerID, AgentID: agentID}
	c.bus.Emit(ctx, bus.SystemEvent{
		Type: "agent_unregistered", Source: bus.SourceContainer, Category: bus.CategoryLifecycle,
		Intent: bus.IntentNotification, Context: &evCtx,
	})
	return err
}

// AgentByID looks up a live agent.
func (c *RuntimeContainer) AgentByID(agentID string) (*RuntimeAgent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ra, ok := c.agents[agentID]
	return ra, ok
}

// AgentByImageID looks up the live agent for an image, if online.
func (c *RuntimeContainer) AgentByImageID(imageID string) (*RuntimeAgent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ra, ok := c.imageToAgent[imageID]
	return ra, ok
}

// ListAgents snapshots all live agents in this container.
func (c *RuntimeContainer) ListAgents() []*RuntimeAgent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*RuntimeAgent, 0, len(c.agents))
	for _, ra := range c.agents {
		out = append(out, ra)
	}
	return out
}

// Dispose destroys every agent in the container, then emits container_destroyed.
func (c *RuntimeContainer) Dispose(ctx context.Context) error {
	c.mu.Lock()
	agents := make([]*RuntimeAgent, 0, len(c.agents))
	for _, ra := range c.agents {
		agents = append(agents, ra)
	}
	c.imageToAgent = make(map[string]*RuntimeAgent)
	c.agents = make(map[string]*RuntimeAgent)
	c.mu.Unlock()

	var firstErr error
	for _, ra := range agents {
		if err := ra.Destroy(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	evCtx := bus.EventContext{ContainerID: c.Record.ContainerID}
	c.bus.Emit(ctx, bus.SystemEvent{
		Type: "container_destroyed", Source: bus.SourceContainer, Category: bus.CategoryLifecycle,
		Intent: bus.IntentNotification, Context: &evCtx,
	})
	return firstErr
}
