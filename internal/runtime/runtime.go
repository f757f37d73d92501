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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/config"
	"github.com/teradata-labs/loomrun/internal/environment"
	"github.com/teradata-labs/loomrun/internal/interrupt"
	"github.com/teradata-labs/loomrun/internal/message"
	"github.com/teradata-labs/loomrun/internal/session"
)

// Runtime is the process-wide registry of containers: the top of the
// RuntimeContainer/RuntimeAgent hierarchy, source of truth reachable from
// CommandHandler.
type Runtime struct {
	bus     *bus.Bus
	store   Store
	factory environment.Factory
	ic      *interrupt.Channel
	cfg     *config.RuntimeConfig
	logger  *zap.Logger

	mu         sync.Mutex
	containers map[string]*RuntimeContainer
	disposed   bool
}

// New builds an empty Runtime. ic may be nil, in which case every agent
// serves agent_interrupt_request without the §4.11 signal channel.
func New(b *bus.Bus, store Store, factory environment.Factory, ic *interrupt.Channel, cfg *config.RuntimeConfig, logger *zap.Logger) *Runtime {
	return &Runtime{
		bus:        b,
		store:      store,
		factory:    factory,
		ic:         ic,
		cfg:        cfg,
		logger:     logger,
		containers: make(map[string]*RuntimeContainer),
	}
}

var errDisposed = fmt.Errorf("runtime disposed")

func (r *Runtime) ensureContainer(ctx context.Context, containerID string) (*RuntimeContainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, errDisposed
	}
	if c, ok := r.containers[containerID]; ok {
		return c, nil
	}
	rec := Container{ContainerID: containerID, CreatedAt: time.Now().UnixMilli()}
	if err := r.store.SaveContainer(ctx, rec); err != nil {
		return nil, err
	}
	c := NewRuntimeContainer(rec, r.cfg.BasePath, r.bus, r.store, r.factory, r.ic, r.logger)
	r.containers[containerID] = c

	evCtx := bus.EventContext{ContainerID: containerID}
	r.bus.Emit(ctx, bus.SystemEvent{Type: "container_created", Source: bus.SourceContainer, Category: bus.CategoryLifecycle, Intent: bus.IntentNotification, Context: &evCtx})
	return c, nil
}

func (r *Runtime) getContainer(containerID string) (*RuntimeContainer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[containerID]
	return c, ok
}

// ContainerCreate loads-or-creates a container.
func (r *Runtime) ContainerCreate(ctx context.Context, containerID string) (string, error) {
	c, err := r.ensureContainer(ctx, containerID)
	if err != nil {
		return "", err
	}
	return c.Record.ContainerID, nil
}

// ContainerGet reports whether containerID exists in the in-memory registry.
func (r *Runtime) ContainerGet(containerID string) (exists bool) {
	_, exists = r.getContainer(containerID)
	return
}

// ContainerList snapshots all in-memory container ids.
func (r *Runtime) ContainerList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.containers))
	for id := range r.containers {
		ids = append(ids, id)
	}
	return ids
}

// ImageCreateInput is image_create's payload.
type ImageCreateInput struct {
	ContainerID  string
	Name         string
	Description  string
	SystemPrompt string
	MCPServers   []string
}

// ImageCreate merges cfg.DefaultAgent (incoming wins) and atomically
// persists an Image + Session.
func (r *Runtime) ImageCreate(ctx context.Context, in ImageCreateInput) (Image, error) {
	if _, err := r.ensureContainer(ctx, in.ContainerID); err != nil {
		return Image{}, err
	}
	merged := r.cfg.WithDefaultAgent(config.DefaultAgent{
		Name: in.Name, Description: in.Description, SystemPrompt: in.SystemPrompt, MCPServers: in.MCPServers,
	})

	now := time.Now().UnixMilli()
	imageID := uuid.New().String()
	sessionID := uuid.New().String()
	img := Image{
		ImageID: imageID, ContainerID: in.ContainerID, SessionID: sessionID,
		Name: merged.Name, Description: merged.Description, SystemPrompt: merged.SystemPrompt,
		MCPServers: merged.MCPServers, CreatedAt: now, UpdatedAt: now,
	}
	sess := session.Session{SessionID: sessionID, ImageID: imageID, ContainerID: in.ContainerID, CreatedAt: now, UpdatedAt: now}

	if err := r.store.CreateImageWithSession(ctx, img, sess); err != nil {
		return Image{}, err
	}
	return img, nil
}

// ImageRun loads img and runs (or reuses) its agent.
func (r *Runtime) ImageRun(ctx context.Context, imageID string) (agentID string, reused bool, err error) {
	img, ok, err := r.store.FindImageByID(ctx, imageID)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, fmt.Errorf("runtime: unknown image %q", imageID)
	}
	c, err := r.ensureContainer(ctx, img.ContainerID)
	if err != nil {
		return "", false, err
	}
	result, err := c.RunImage(ctx, img)
	if err != nil {
		return "", false, err
	}
	return result.Agent.Record.AgentID, result.Reused, nil
}

// ImageStop stops imageID's agent if running.
func (r *Runtime) ImageStop(ctx context.Context, imageID string) error {
	img, ok, err := r.store.FindImageByID(ctx, imageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("runtime: unknown image %q", imageID)
	}
	c, ok := r.getContainer(img.ContainerID)
	if !ok {
		return nil
	}
	return c.StopImage(ctx, imageID)
}

// ImageUpdate renames/redescribes an image and bumps updatedAt.
func (r *Runtime) ImageUpdate(ctx context.Context, imageID, name, description string) (Image, error) {
	img, ok, err := r.store.FindImageByID(ctx, imageID)
	if err != nil {
		return Image{}, err
	}
	if !ok {
		return Image{}, fmt.Errorf("runtime: unknown image %q", imageID)
	}
	if name != "" {
		img.Name = name
	}
	if description != "" {
		img.Description = description
	}
	img.UpdatedAt = time.Now().UnixMilli()
	if err := r.store.SaveImage(ctx, img); err != nil {
		return Image{}, err
	}
	return img, nil
}

// ImageRecordWithStatus pairs an Image with whether it is currently online.
type ImageRecordWithStatus struct {
	Image
	Online  bool
	AgentID string
}

func (r *Runtime) withStatus(img Image) ImageRecordWithStatus {
	out := ImageRecordWithStatus{Image: img}
	if c, ok := r.getContainer(img.ContainerID); ok {
		if ra, ok := c.AgentByImageID(img.ImageID); ok {
			out.Online = true
			out.AgentID = ra.Record.AgentID
		}
	}
	return out
}

// ImageList lists images, optionally scoped to one container.
func (r *Runtime) ImageList(ctx context.Context, containerID string) ([]ImageRecordWithStatus, error) {
	var imgs []Image
	var err error
	if containerID != "" {
		imgs, err = r.store.FindImagesByContainerID(ctx, containerID)
	} else {
		imgs, err = r.store.FindAllImages(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]ImageRecordWithStatus, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, r.withStatus(img))
	}
	return out, nil
}

// ImageGet fetches one image with its online status.
func (r *Runtime) ImageGet(ctx context.Context, imageID string) (ImageRecordWithStatus, bool, error) {
	img, ok, err := r.store.FindImageByID(ctx, imageID)
	if err != nil || !ok {
		return ImageRecordWithStatus{}, ok, err
	}
	return r.withStatus(img), true, nil
}

// ImageDelete destroys a running agent if any, then deletes session then
// image; tolerates a crash leaving an orphaned empty session.
func (r *Runtime) ImageDelete(ctx context.Context, imageID string) error {
	img, ok, err := r.store.FindImageByID(ctx, imageID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if c, ok := r.getContainer(img.ContainerID); ok {
		if err := c.StopImage(ctx, imageID); err != nil {
			return err
		}
	}
	if err := r.store.ClearMessages(ctx, img.SessionID); err != nil {
		return err
	}
	if err := r.store.DeleteSession(ctx, img.SessionID); err != nil {
		return err
	}
	return r.store.DeleteImage(ctx, imageID)
}

// ImageMessages loads an image's full message log.
func (r *Runtime) ImageMessages(ctx context.Context, imageID string) ([]message.Message, error) {
	img, ok, err := r.store.FindImageByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("runtime: unknown image %q", imageID)
	}
	return r.store.GetMessages(ctx, img.SessionID)
}

// MessageSend auto-activates imageID if offline, then forwards content to
// the agent's Interactor.
func (r *Runtime) MessageSend(ctx context.Context, imageID, agentID string, content []message.ContentPart, requestID string) (string, error) {
	ra, err := r.resolveAgent(ctx, imageID, agentID, true)
	if err != nil {
		return "", err
	}
	if _, err := ra.Receive(ctx, content, requestID); err != nil {
		return "", err
	}
	return ra.Record.AgentID, nil
}

// AgentInterrupt forwards to the agent's Interactor; a no-op if offline.
func (r *Runtime) AgentInterrupt(ctx context.Context, imageID, agentID, requestID string) (string, error) {
	ra, err := r.resolveAgent(ctx, imageID, agentID, false)
	if err != nil {
		return "", err
	}
	if ra == nil {
		return "", nil
	}
	ra.Interrupt(ctx, requestID)
	return ra.Record.AgentID, nil
}

// AgentGet reports an agent's lifecycle state.
func (r *Runtime) AgentGet(agentID string) (Lifecycle, bool) {
	r.mu.Lock()
	containers := make([]*RuntimeContainer, 0, len(r.containers))
	for _, c := range r.containers {
		containers = append(containers, c)
	}
	r.mu.Unlock()
	for _, c := range containers {
		if ra, ok := c.AgentByID(agentID); ok {
			return ra.Record.State(), true
		}
	}
	return "", false
}

// AgentDestroy destroys one agent by id, searching all containers.
func (r *Runtime) AgentDestroy(ctx context.Context, agentID string) error {
	r.mu.Lock()
	containers := make([]*RuntimeContainer, 0, len(r.containers))
	for _, c := range r.containers {
		containers = append(containers, c)
	}
	r.mu.Unlock()
	for _, c := range containers {
		if _, ok := c.AgentByID(agentID); ok {
			return c.DestroyAgent(ctx, agentID)
		}
	}
	return nil
}

// AgentDestroyAll disposes every container (and thus every agent).
func (r *Runtime) AgentDestroyAll(ctx context.Context) error {
	r.mu.Lock()
	containers := make([]*RuntimeContainer, 0, len(r.containers))
	for _, c := range r.containers {
		containers = append(containers, c)
	}
	r.mu.Unlock()
	var firstErr error
	for _, c := range containers {
		if err := c.Dispose(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runtime) resolveAgent(ctx context.Context, imageID, agentID string, autoActivate bool) (*RuntimeAgent, error) {
	if agentID != "" {
		r.mu.Lock()
		containers := make([]*RuntimeContainer, 0, len(r.containers))
		for _, c := range r.containers {
			containers = append(containers, c)
		}
		r.mu.Unlock()
		for _, c := range containers {
			if ra, ok := c.AgentByID(agentID); ok {
				return ra, nil
			}
		}
		return nil, fmt.Errorf("runtime: unknown agent %q", agentID)
	}

	img, ok, err := r.store.FindImageByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("runtime: unknown image %q", imageID)
	}
	c, ok := r.getContainer(img.ContainerID)
	if !ok {
		if !autoActivate {
			return nil, nil
		}
		c, err = r.ensureContainer(ctx, img.ContainerID)
		if err != nil {
			return nil, err
		}
	}
	if ra, ok := c.AgentByImageID(imageID); ok {
		return ra, nil
	}
	if !autoActivate {
		return nil, nil
	}
	result, err := c.RunImage(ctx, img)
	if err != nil {
		return nil, err
	}
	return result.Agent, nil
}

// Dispose destroys all containers then marks the Runtime disposed; later
// calls fail with errDisposed, satisfying the "runtime disposed" terminal
// state.
func (r *Runtime) Dispose(ctx context.Context) error {
	r.mu.Lock()
	containers := make([]*RuntimeContainer, 0, len(r.containers))
	for _, c := range r.containers {
		containers = append(containers, c)
	}
	r.containers = make(map[string]*RuntimeContainer)
	r.disposed = true
	r.mu.Unlock()

	var firstErr error
	for _, c := range containers {
		if err := c.Dispose(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
