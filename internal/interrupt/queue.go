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
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxRetries bounds how many times the slow path retries a CRITICAL
// interrupt against its target's router entry before giving up.
const maxRetries = 10

type pendingInterrupt struct {
	interrupt *Interrupt
	attempts  int
	nextRetry time.Time
}

// PersistentQueue is the slow path for CRITICAL signals: interrupts that
// could not be delivered fast-path (no handler registered yet, or its
// buffer was full) are retried here on a ticker until delivered, dropped
// after maxRetries, or the queue is closed.
type PersistentQueue struct {
	mu      sync.Mutex
	pending []*pendingInterrupt
	router  *Router

	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPersistentQueue creates a queue that retries against router on tick.
func NewPersistentQueue(ctx context.Context, router *Router, logger *zap.Logger) *PersistentQueue {
	ctx, cancel := context.WithCancel(ctx)
	q := &PersistentQueue{router: router, logger: logger, ctx: ctx, cancel: cancel}
	q.wg.Add(1)
	go q.retryLoop()
	return q
}

// Enqueue adds an interrupt for slow-path retry (at most maxRetries attempts).
func (q *PersistentQueue) Enqueue(ctx context.Context, i *Interrupt) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, &pendingInterrupt{interrupt: i, nextRetry: time.Now()})
	return nil
}

func (q *PersistentQueue) retryLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case now := <-ticker.C:
			q.retryDue(now)
		}
	}
}

func (q *PersistentQueue) retryDue(now time.Time) {
	q.mu.Lock()
	var due, keep []*pendingInterrupt
	for _, p := range q.pending {
		if !p.nextRetry.After(now) {
			due = append(due, p)
		} else {
			keep = append(keep, p)
		}
	}
	q.pending = keep
	q.mu.Unlock()

	for _, p := range due {
		delivered, err := q.router.Send(q.ctx, p.interrupt.Signal, p.interrupt.TargetID, p.interrupt.Payload)
		if err == nil && delivered {
			continue
		}
		p.attempts++
		if p.attempts >= maxRetries {
			if q.logger != nil {
				q.logger.Warn("interrupt dropped after max retries",
					zap.String("signal", p.interrupt.Signal.String()),
					zap.String("target", p.interrupt.TargetID),
				)
			}
			continue
		}
		p.nextRetry = now.Add(time.Duration(p.attempts) * 200 * time.Millisecond)
		q.mu.Lock()
		q.pending = append(q.pending, p)
		q.mu.Unlock()
	}
}

// Close stops the retry loop.
func (q *PersistentQueue) Close() {
	q.cancel()
	q.wg.Wait()
}
