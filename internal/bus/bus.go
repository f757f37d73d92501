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
// Package bus implements the SystemBus: an in-process typed pub/sub with
// request/response correlation, the single shared in-memory datum in the
// runtime core.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/pkg/observability"
)

// Handler processes one SystemEvent. A non-nil error is logged and does not
// stop other handlers from running (handler exceptions are isolated).
type Handler func(ctx context.Context, ev SystemEvent) error

// Filter allows a subscriber to further narrow which events of a matched
// type it receives, e.g. by RequestID for request() correlation.
type Filter func(ev SystemEvent) bool

// SubscribeOptions configures an On subscription.
type SubscribeOptions struct {
	Priority int  // higher runs first; total order across all subscribers of a type
	Once     bool // unsubscribed before the handler body returns
	Filter   Filter
}

// Unsubscribe removes a subscription registered via On/OnCommand.
type Unsubscribe func()

type subscription struct {
	id       uint64
	eventType string // "*" for wildcard
	handler  Handler
	opts     SubscribeOptions
}

// Bus is the SystemBus implementation.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription // eventType -> subscriptions, including "*"
	next uint64

	sent atomic.Int64

	logger *zap.Logger
	tracer observability.Tracer
}

// New creates an empty Bus. tracer may be nil, in which case observability.NewNoOpTracer() is used.
func New(logger *zap.Logger, tracer observability.Tracer) *Bus {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Bus{
		subs:   make(map[string][]*subscription),
		logger: logger,
		tracer: tracer,
	}
}

// On subscribes handler to one or more event types, or "*" for all events.
// Returns an Unsubscribe handle.
func (b *Bus) On(eventType string, handler Handler, opts SubscribeOptions) Unsubscribe {
	b.mu.Lock()
	b.next++
	sub := &subscription{id: b.next, eventType: eventType, handler: handler, opts: opts}
	b.subs[eventType] = append(b.subs[eventType], sub)
	sortByPriority(b.subs[eventType])
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[eventType] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func sortByPriority(subs []*subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].opts.Priority > subs[j].opts.Priority
	})
}

// OnCommand is sugar for On scoped to a single command event type.
func (b *Bus) OnCommand(eventType string, handler Handler) Unsubscribe {
	return b.On(eventType, handler, SubscribeOptions{})
}

// Emit delivers ev synchronously to every matching subscriber, in priority
// order, isolating handler errors from each other.
func (b *Bus) Emit(ctx context.Context, ev SystemEvent) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	b.sent.Add(1)

	ctx, span := b.tracer.StartSpan(ctx, "bus.emit", observability.WithAttribute("event.type", ev.Type))
	defer b.tracer.EndSpan(span)

	b.mu.RLock()
	matched := make([]*subscription, 0, 4)
	matched = append(matched, b.subs[ev.Type]...)
	matched = append(matched, b.subs["*"]...)
	sortByPriority(matched)
	b.mu.RUnlock()

	for _, sub := range matched {
		if sub.opts.Filter != nil && !sub.opts.Filter(ev) {
			continue
		}
		if sub.opts.Once {
			removed := false
			b.mu.Lock()
			list := b.subs[sub.eventType]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[sub.eventType] = append(list[:i], list[i+1:]...)
					removed = true
					break
				}
			}
			b.mu.Unlock()
			if !removed {
				continue // already fired or unsubscribed elsewhere
			}
		}
		if err := sub.handler(ctx, ev); err != nil && b.logger != nil {
			b.logger.Error("bus handler error",
				zap.String("event.type", ev.Type),
				zap.Error(err),
			)
		}
	}
}

// EmitCommand stamps timestamp, category (request|response by suffix) and
// intent (request|result), then emits.
func (b *Bus) EmitCommand(ctx context.Context, eventType string, data any, evCtx *EventContext, requestID string) {
	category := CategoryResponse
	intent := IntentResult
	if IsRequestType(eventType) {
		category = CategoryRequest
		intent = IntentRequest
	}
	b.Emit(ctx, SystemEvent{
		Type:      eventType,
		Source:    SourceCommand,
		Category:  category,
		Intent:    intent,
		Data:      data,
		Context:   evCtx,
		RequestID: requestID,
	})
}

// ErrRequestTimeout is returned by Request when no response arrives in time.
type ErrRequestTimeout struct{ RequestType string }

func (e *ErrRequestTimeout) Error() string {
	return fmt.Sprintf("bus: request %q timed out", e.RequestType)
}

// Request emits a *_request event and waits for its paired *_response,
// correlated by a freshly generated requestId.
func (b *Bus) Request(ctx context.Context, eventType string, data any, evCtx *EventContext, timeout time.Duration) (SystemEvent, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	requestID := uuid.New().String()
	respType := ResponseTypeFor(eventType)

	respCh := make(chan SystemEvent, 1)
	unsub := b.On(respType, func(_ context.Context, ev SystemEvent) error {
		select {
		case respCh <- ev:
		default:
		}
		return nil
	}, SubscribeOptions{
		Once: true,
		Filter: func(ev SystemEvent) bool {
			return ev.RequestID == requestID
		},
	})

	b.EmitCommand(ctx, eventType, data, evCtx, requestID)

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(timeout):
		unsub()
		return SystemEvent{}, &ErrRequestTimeout{RequestType: eventType}
	case <-ctx.Done():
		unsub()
		return SystemEvent{}, ctx.Err()
	}
}

// Producer is the write-only view of the bus handed to event sources.
type Producer interface {
	Emit(ctx context.Context, ev SystemEvent)
	EmitCommand(ctx context.Context, eventType string, data any, evCtx *EventContext, requestID string)
}

// Consumer is the read-only view of the bus handed to event sinks.
type Consumer interface {
	On(eventType string, handler Handler, opts SubscribeOptions) Unsubscribe
	OnCommand(eventType string, handler Handler) Unsubscribe
}

// AsProducer returns the write-only view.
func (b *Bus) AsProducer() Producer { return b }

// AsConsumer returns the read-only view.
func (b *Bus) AsConsumer() Consumer { return b }
