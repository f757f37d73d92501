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
package interrupt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/loomrun/pkg/observability"
)

// Handler processes an interrupt signal. Handlers must be idempotent and
// fast (<100ms for non-CRITICAL, <10ms for CRITICAL); long-running work
// should be dispatched asynchronously by the handler itself.
type Handler func(ctx context.Context, signal Signal, payload []byte) error

// Interrupt represents a single interrupt message in flight.
type Interrupt struct {
	ID        string
	TraceID   string
	Signal    Signal
	TargetID  string
	Payload   []byte
	Timestamp time.Time
	SenderID  string
}

// HandlerRegistration tracks a registered interrupt handler.
type HandlerRegistration struct {
	AgentID string
	Signal  Signal
	Handler Handler
}

// Channel is the targeted interrupt delivery channel:
// fast path via Router, slow path via PersistentQueue for CRITICAL signals
// whose fast-path delivery failed.
type Channel struct {
	ctx    context.Context
	cancel context.CancelFunc

	router *Router
	queue  *PersistentQueue

	mu       sync.RWMutex
	handlers map[string]map[Signal]*HandlerRegistration

	metricsMu    sync.Mutex
	totalSent    int64
	totalDropped int64
	totalRetried int64

	tracer observability.Tracer
}

// NewChannel creates a new interrupt channel over router and queue.
func NewChannel(ctx context.Context, router *Router, queue *PersistentQueue) *Channel {
	ctx, cancel := context.WithCancel(ctx)
	return &Channel{
		ctx:      ctx,
		cancel:   cancel,
		router:   router,
		queue:    queue,
		handlers: make(map[string]map[Signal]*HandlerRegistration),
	}
}

// WithTracer sets an optional tracer for observability.
func (c *Channel) WithTracer(tracer observability.Tracer) *Channel {
	c.tracer = tracer
	if c.router != nil {
		c.router.WithTracer(tracer)
	}
	return c
}

// RegisterHandler registers a handler for a specific signal on an agent.
func (c *Channel) RegisterHandler(agentID string, signal Signal, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers[agentID] == nil {
		c.handlers[agentID] = make(map[Signal]*HandlerRegistration)
	}
	if _, exists := c.handlers[agentID][signal]; exists {
		return fmt.Errorf("handler already registered for agent %s, signal %s", agentID, signal)
	}

	reg := &HandlerRegistration{AgentID: agentID, Signal: signal, Handler: handler}
	c.handlers[agentID][signal] = reg

	if err := c.router.RegisterHandler(agentID, signal, handler); err != nil {
		delete(c.handlers[agentID], signal)
		return fmt.Errorf("failed to register with router: %w", err)
	}
	return nil
}

// UnregisterHandler removes a handler for a specific signal on an agent.
func (c *Channel) UnregisterHandler(agentID string, signal Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers[agentID] == nil {
		return fmt.Errorf("no handlers registered for agent %s", agentID)
	}
	if _, exists := c.handlers[agentID][signal]; !exists {
		return fmt.Errorf("no handler registered for agent %s, signal %s", agentID, signal)
	}
	if err := c.router.UnregisterHandler(agentID, signal); err != nil {
		return fmt.Errorf("failed to unregister from router: %w", err)
	}
	delete(c.handlers[agentID], signal)
	if len(c.handlers[agentID]) == 0 {
		delete(c.handlers, agentID)
	}
	return nil
}

// Send sends an interrupt to a specific agent, falling back to the
// persistent queue for CRITICAL signals when the fast path fails or its
// buffer is full.
func (c *Channel) Send(ctx context.Context, signal Signal, targetAgentID string, payload []byte) error {
	return c.SendFrom(ctx, signal, targetAgentID, payload, "")
}

// SendFrom sends an interrupt with an explicit sender ID for tracing.
func (c *Channel) SendFrom(ctx context.Context, signal Signal, targetAgentID string, payload []byte, senderID string) error {
	var span *observability.Span
	if c.tracer != nil {
		ctx, span = c.tracer.StartSpan(ctx, observability.SpanInterruptSend,
			observability.WithAttribute(observability.AttrInterruptSignal, signal.String()),
			observability.WithAttribute(observability.AttrInterruptPriority, signal.Priority().String()),
			observability.WithAttribute(observability.AttrInterruptTarget, targetAgentID),
			observability.WithAttribute(observability.AttrInterruptSender, senderID),
		)
		defer c.tracer.EndSpan(span)
	}

	i := &Interrupt{
		ID:        uuid.New().String(),
		Signal:    signal,
		TargetID:  targetAgentID,
		Payload:   payload,
		Timestamp: time.Now(),
		SenderID:  senderID,
	}
	if span != nil {
		i.TraceID = span.TraceID
		span.SetAttribute("interrupt.id", i.ID)
	}

	c.metricsMu.Lock()
	c.totalSent++
	c.metricsMu.Unlock()
	if c.tracer != nil {
		c.tracer.RecordMetric(observability.MetricInterruptSent, 1.0, map[string]string{
			observability.AttrInterruptSignal:   signal.String(),
			observability.AttrInterruptPriority: signal.Priority().String(),
		})
	}

	c.mu.RLock()
	_, exists := c.handlers[targetAgentID][signal]
	c.mu.RUnlock()
	if !exists {
		c.recordDropped()
		return fmt.Errorf("no handler registered for agent %s, signal %s", targetAgentID, signal)
	}

	delivered, err := c.router.Send(ctx, signal, targetAgentID, payload)
	if err != nil {
		if signal.IsCritical() {
			if qErr := c.queue.Enqueue(ctx, i); qErr != nil {
				c.recordDropped()
				return fmt.Errorf("fast path failed: %w, queue failed: %v", err, qErr)
			}
			c.metricsMu.Lock()
			c.totalRetried++
			c.metricsMu.Unlock()
			return nil
		}
		c.recordDropped()
		return err
	}

	if !delivered {
		if signal.IsCritical() {
			if qErr := c.queue.Enqueue(ctx, i); qErr != nil {
				c.recordDropped()
				return fmt.Errorf("fast path full, queue failed: %w", qErr)
			}
			c.metricsMu.Lock()
			c.totalRetried++
			c.metricsMu.Unlock()
			return nil
		}
		c.recordDropped()
		return fmt.Errorf("buffer full for signal %s", signal)
	}
	return nil
}

// GetStats returns current interrupt channel statistics.
func (c *Channel) GetStats() (sent, dropped, retried int64) {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.totalSent, c.totalDropped, c.totalRetried
}

// Close shuts down the interrupt channel gracefully.
func (c *Channel) Close() error {
	c.cancel()
	return nil
}

func (c *Channel) recordDropped() {
	c.metricsMu.Lock()
	c.totalDropped++
	c.metricsMu.Unlock()
}
