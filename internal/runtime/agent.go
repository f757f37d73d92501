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
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/environment"
	"github.com/teradata-labs/loomrun/internal/interrupt"
	"github.com/teradata-labs/loomrun/internal/message"
	"github.com/teradata-labs/loomrun/internal/session"
)

// RuntimeAgent wires one image's Interactor, BusDriver, Engine and
// Environment together and owns their lifecycle.
type RuntimeAgent struct {
	Record *AgentRecord

	bus         *bus.Bus
	env         environment.Environment
	driver      *BusDriver
	engine      *Engine
	interactor  *Interactor
	streamBridge bus.Unsubscribe

	interruptChannel *interrupt.Channel

	logger *zap.Logger
}

// NewRuntimeAgent performs the construction sequence:
// sandbox, session attach, Environment factory, Presenter→Engine→BusDriver→
// Interactor wiring, then an async non-fatal warmup. ic may be nil, in which
// case agent_interrupt_request is served directly without the §4.11 signal
// channel (used by tests that don't stand up the interrupt subsystem).
func NewRuntimeAgent(
	ctx context.Context,
	basePath string,
	img Image,
	agentID string,
	b *bus.Bus,
	store session.Store,
	factory environment.Factory,
	ic *interrupt.Channel,
	logger *zap.Logger,
) (*RuntimeAgent, error) {
	workdir := filepath.Join(basePath, "containers", img.ContainerID, "workdirs", img.ImageID)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("runtime: create sandbox workdir: %w", err)
	}

	evCtx := bus.EventContext{
		ContainerID: img.ContainerID,
		ImageID:     img.ImageID,
		AgentID:     agentID,
		SessionID:   img.SessionID,
	}

	ra := &RuntimeAgent{
		Record:           newAgentRecord(agentID, img.ImageID, img.ContainerID, time.Now().UnixMilli()),
		bus:              b,
		interruptChannel: ic,
		logger:           logger,
	}

	envCfg := environment.Config{
		AgentID:         agentID,
		ContainerID:     img.ContainerID,
		ImageID:         img.ImageID,
		SystemPrompt:    img.SystemPrompt,
		Cwd:             workdir,
		ResumeSessionID: img.Metadata.ResumeSessionID,
		MCPServers:      img.MCPServers,
		OnSessionIDCaptured: func(sdkSessionID string) {
			// Persisted to the image's Metadata.ResumeSessionID when the store supports it.
			ms, ok := store.(interface {
				UpdateMetadata(ctx context.Context, imageID string, meta ImageMetadata) error
			})
			if !ok {
				return
			}
			if err := ms.UpdateMetadata(context.Background(), img.ImageID, ImageMetadata{ResumeSessionID: sdkSessionID}); err != nil && logger != nil {
				logger.Warn("persist resume session id failed", zap.String("agent.id", agentID), zap.Error(err))
			}
		},
	}
	env, err := factory(envCfg, b.AsProducer(), b.AsConsumer())
	if err != nil {
		return nil, fmt.Errorf("runtime: create environment: %w", err)
	}
	ra.env = env

	ra.engine = NewEngine(store, b.AsProducer(), evCtx, logger)
	ra.driver = NewBusDriver(b.AsConsumer(), agentID, ra.engine)
	ra.interactor = NewInteractor(store, b.AsProducer(), evCtx)

	// Rule R1: bridge environment-sourced DriveableEvents to a source=agent
	// variant with the same requestId/context, so external consumers can
	// subscribe without ever seeing source=environment events directly.
	ra.streamBridge = b.AsConsumer().On("*", ra.bridgeStream, bus.SubscribeOptions{
		Filter: func(ev bus.SystemEvent) bool {
			return ev.Source == bus.SourceEnvironment &&
				bus.IsDriveableEventType(ev.Type) &&
				ev.Context != nil && ev.Context.AgentID == agentID
		},
	})

	go func() {
		wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := env.Warmup(wctx); err != nil && logger != nil {
			logger.Warn("environment warmup failed", zap.String("agent.id", agentID), zap.Error(err))
		}
	}()

	if ic != nil {
		if err := ic.RegisterHandler(agentID, interrupt.SignalTurnCancel, ra.onInterruptSignal); err != nil && logger != nil {
			logger.Warn("interrupt handler registration failed", zap.String("agent.id", agentID), zap.Error(err))
		}
	}

	return ra, nil
}

// onInterruptSignal is the §4.11 fast-path handler registered for
// SignalTurnCancel: agent_interrupt_request is delivered here rather than
// calling Interrupt directly, so the same channel can also carry operational
// signals (health check, config reload) without a second dispatch path.
func (ra *RuntimeAgent) onInterruptSignal(ctx context.Context, signal interrupt.Signal, payload []byte) error {
	if signal != interrupt.SignalTurnCancel {
		return nil
	}
	ra.interactor.Interrupt(ctx, string(payload))
	return nil
}

func (ra *RuntimeAgent) bridgeStream(ctx context.Context, ev bus.SystemEvent) error {
	bridged := ev
	bridged.Source = bus.SourceAgent
	ra.bus.Emit(ctx, bridged)
	return nil
}

// Receive forwards user content into the Interactor.
func (ra *RuntimeAgent) Receive(ctx context.Context, content []message.ContentPart, requestID string) (message.Message, error) {
	return ra.interactor.Receive(ctx, content, requestID)
}

// Interrupt sends SignalTurnCancel through the §4.11 interrupt channel when
// one is wired, falling back to calling the Interactor directly otherwise.
func (ra *RuntimeAgent) Interrupt(ctx context.Context, requestID string) {
	if ra.interruptChannel != nil {
		if err := ra.interruptChannel.Send(ctx, interrupt.SignalTurnCancel, ra.Record.AgentID, []byte(requestID)); err != nil && ra.logger != nil {
			ra.logger.Warn("interrupt signal delivery failed, falling back", zap.String("agent.id", ra.Record.AgentID), zap.Error(err))
			ra.interactor.Interrupt(ctx, requestID)
		}
		return
	}
	ra.interactor.Interrupt(ctx, requestID)
}

// Stop marks the agent stopped without destroying its environment resources
// (RuntimeContainer.StopImage does not use it: it calls Destroy; callers that
// want full teardown use Destroy).
func (ra *RuntimeAgent) Stop() {
	ra.Record.setState(LifecycleStopped)
}

// Resume marks a stopped agent running again.
func (ra *RuntimeAgent) Resume() {
	ra.Record.setState(LifecycleRunning)
}

// Destroy cancels any in-flight turn, releases SDK resources, and disposes
// the driver/bridge subscriptions, emitting session_destroyed.
func (ra *RuntimeAgent) Destroy(ctx context.Context) error {
	ra.Record.setState(LifecycleDestroyed)
	ra.driver.Dispose()
	if ra.streamBridge != nil {
		ra.streamBridge()
	}
	if ra.interruptChannel != nil {
		_ = ra.interruptChannel.UnregisterHandler(ra.Record.AgentID, interrupt.SignalTurnCancel)
	}
	err := ra.env.Close()

	evCtx := bus.EventContext{ContainerID: ra.Record.ContainerID, ImageID: ra.Record.ImageID, AgentID: ra.Record.AgentID}
	ra.bus.Emit(ctx, bus.SystemEvent{
		Type:     "session_destroyed",
		Source:   bus.SourceAgent,
		Category: bus.CategoryLifecycle,
		Intent:   bus.IntentNotification,
		Context:  &evCtx,
	})
	return err
}
