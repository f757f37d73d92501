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

	"github.com/teradata-labs/loomrun/pkg/observability"
)

// routerEntry represents a single registered handler with its delivery channel.
type routerEntry struct {
	agentID  string
	signal   Signal
	handler  Handler
	channel  chan *routerMessage
	cancelFn context.CancelFunc
}

// routerMessage is the internal message format for the fast path.
type routerMessage struct {
	ctx       context.Context
	signal    Signal
	payload   []byte
	timestamp time.Time
}

// Router handles fast-path interrupt delivery via Go channels: dedicated
// channel per handler, non-blocking sends, a background goroutine per
// handler processing its queue.
type Router struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[string]map[Signal]*routerEntry // agentID -> signal -> entry

	wg sync.WaitGroup

	tracer observability.Tracer
}

// NewRouter creates a new fast-path router.
func NewRouter(ctx context.Context) *Router {
	ctx, cancel := context.WithCancel(ctx)
	return &Router{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]map[Signal]*routerEntry),
	}
}

// WithTracer sets an optional tracer for observability.
func (r *Router) WithTracer(tracer observability.Tracer) *Router {
	r.tracer = tracer
	return r
}

// RegisterHandler registers a handler for fast-path delivery.
func (r *Router) RegisterHandler(agentID string, signal Signal, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[agentID] == nil {
		r.entries[agentID] = make(map[Signal]*routerEntry)
	}
	if _, exists := r.entries[agentID][signal]; exists {
		return fmt.Errorf("handler already registered for agent %s, signal %s", agentID, signal)
	}

	ch := make(chan *routerMessage, signal.Priority().BufferSize())
	handlerCtx, handlerCancel := context.WithCancel(r.ctx)

	entry := &routerEntry{agentID: agentID, signal: signal, handler: handler, channel: ch, cancelFn: handlerCancel}
	r.wg.Add(1)
	go r.runHandler(handlerCtx, entry)
	r.entries[agentID][signal] = entry
	return nil
}

// UnregisterHandler removes a handler and stops its background goroutine.
func (r *Router) UnregisterHandler(agentID string, signal Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agentEntries := r.entries[agentID]
	if agentEntries == nil {
		return fmt.Errorf("no handlers registered for agent %s", agentID)
	}
	entry, exists := agentEntries[signal]
	if !exists {
		return fmt.Errorf("no handler registered for agent %s, signal %s", agentID, signal)
	}
	entry.cancelFn()
	close(entry.channel)
	delete(r.entries[agentID], signal)
	if len(r.entries[agentID]) == 0 {
		delete(r.entries, agentID)
	}
	return nil
}

// Send attempts non-blocking delivery to a specific agent's handler.
// Returns (true, nil) on success, (false, nil) if the buffer is full
// (caller falls back to the persistent queue for CRITICAL signals), or
// (false, err) if no handler is registered.
func (r *Router) Send(ctx context.Context, signal Signal, targetAgentID string, payload []byte) (bool, error) {
	r.mu.RLock()
	entry := r.entries[targetAgentID][signal]
	r.mu.RUnlock()

	if entry == nil {
		return false, fmt.Errorf("no handler registered for agent %s, signal %s", targetAgentID, signal)
	}

	msg := &routerMessage{ctx: ctx, signal: signal, payload: payload, timestamp: time.Now()}
	select {
	case entry.channel <- msg:
		return true, nil
	default:
		return false, nil
	}
}

func (r *Router) runHandler(ctx context.Context, entry *routerEntry) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-entry.channel:
			if !ok {
				return
			}

			var span *observability.Span
			handlerCtx := msg.ctx
			if r.tracer != nil {
				handlerCtx, span = r.tracer.StartSpan(msg.ctx, observability.SpanInterruptHandle,
					observability.WithAttribute(observability.AttrInterruptSignal, msg.signal.String()),
					observability.WithAttribute(observability.AttrInterruptPriority, msg.signal.Priority().String()),
					observability.WithAttribute(observability.AttrInterruptTarget, entry.agentID),
					observability.WithAttribute(observability.AttrInterruptPath, "fast"),
				)
			}

			start := time.Now()
			err := entry.handler(handlerCtx, msg.signal, msg.payload)
			latency := time.Since(start)

			if r.tracer != nil {
				r.tracer.RecordMetric(observability.MetricInterruptLatency, float64(latency.Milliseconds()), map[string]string{
					observability.AttrInterruptSignal:   msg.signal.String(),
					observability.AttrInterruptPriority: msg.signal.Priority().String(),
					observability.AttrInterruptPath:     "fast",
				})
				if err != nil {
					r.tracer.RecordMetric(observability.MetricInterruptDropped, 1.0, map[string]string{
						observability.AttrInterruptSignal: msg.signal.String(),
						observability.AttrErrorMessage:    err.Error(),
					})
					span.SetAttribute(observability.AttrInterruptDelivered, "false")
				} else {
					r.tracer.RecordMetric(observability.MetricInterruptDelivered, 1.0, map[string]string{
						observability.AttrInterruptSignal:   msg.signal.String(),
						observability.AttrInterruptPriority: msg.signal.Priority().String(),
					})
					span.SetAttribute(observability.AttrInterruptDelivered, "true")
				}
				r.tracer.EndSpan(span)
			}
		}
	}
}

// Close shuts down the router gracefully, waiting (with timeout) for all
// in-flight handlers to complete.
func (r *Router) Close() error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("router close timeout: some handlers did not finish within 30s")
	}
}
