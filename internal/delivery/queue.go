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
// Package delivery implements the per-session Delivery Queue: an ordered,
// cursor-addressed event log with at-least-once delivery, idempotent ACK,
// subscribe-from-cursor, and two TTL sweeps. A consumer subscribing with
// cursor 0 receives the whole retained log; it is not started at the tail.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
)

// DeliveryRecord is one entry in a session's ordered event log.
type DeliveryRecord struct {
	Cursor    uint64
	SessionID string
	Event     bus.SystemEvent
	CreatedAt time.Time
}

// ConsumerCursor tracks one subscriber's read/ack position in a session's log.
type ConsumerCursor struct {
	ConsumerID      string
	SessionID       string
	NextCursor      uint64// next unread record
	LastAckedCursor uint64
	LastSeenAt      time.Time
}

const (
	// consumerTTL: a consumer absent this long is forgotten.
	consumerTTL = 24 * time.Hour
	// eventTTL: an event older than this AND at-or-below every live consumer's
	// LastAckedCursor is eligible for compaction.
	eventTTL = 48 * time.Hour
	// backpressure high-water-mark: a consumer's outstanding (unacked) queue
	// depth beyond this is dropped, retaining its cursor so resume still works.
	backpressureLimit = 1000
)

type sessionLog struct {
	mu        sync.Mutex
	records   []DeliveryRecord // ordered by Cursor ascending
	nextCursor uint64
	consumers map[string]*ConsumerCursor
	sinks     map[string]chan DeliveryRecord // live push targets, by consumerID
}

// Queue is the Delivery Queue: one ordered log per session, with periodic
// TTL sweeps grounded on the interrupt channel's retry-loop idiom.
type Queue struct {
	mu       sync.RWMutex
	sessions map[string]*sessionLog
	logger   *zap.Logger
	cron     *cron.Cron
}

// New builds a Queue and starts its TTL sweep on the given cron schedule
// (e.g. "@every 10m"); Close stops the scheduler.
func New(logger *zap.Logger, sweepSchedule string) (*Queue, error) {
	q := &Queue{
		sessions: make(map[string]*sessionLog),
		logger:   logger,
	}
	c := cron.New()
	if _, err := c.AddFunc(sweepSchedule, q.sweep); err != nil {
		return nil, err
	}
	c.Start()
	q.cron = c
	return q, nil
}

// Close stops the TTL sweep scheduler.
func (q *Queue) Close() {
	if q.cron != nil {
		q.cron.Stop()
	}
}

func (q *Queue) log(sessionID string) *sessionLog {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.sessions[sessionID]
	if !ok {
		l = &sessionLog{
			consumers: make(map[string]*ConsumerCursor),
			sinks:     make(map[string]chan DeliveryRecord),
		}
		q.sessions[sessionID] = l
	}
	return l
}

// Append appends ev to sessionID's log at the next cursor and pushes it to
// every live subscriber whose outstanding queue isn't over the backpressure
// limit (dropped deliveries retain the consumer's cursor; resume replays them).
func (q *Queue) Append(sessionID string, ev bus.SystemEvent) DeliveryRecord {
	l := q.log(sessionID)
	l.mu.Lock()
	l.nextCursor++
	rec := DeliveryRecord{Cursor: l.nextCursor, SessionID: sessionID, Event: ev, CreatedAt: time.Now()}
	l.records = append(l.records, rec)
	sinks := make(map[string]chan DeliveryRecord, len(l.sinks))
	for id, ch := range l.sinks {
		sinks[id] = ch
	}
	l.mu.Unlock()

	for id, ch := range sinks {
		select {
		case ch <- rec:
		default:
			if q.logger != nil {
				q.logger.Warn("delivery: dropping record for slow consumer",
					zap.String("sessionId", sessionID), zap.String("consumerId", id))
			}
		}
	}
	return rec
}

// Subscribe registers consumerID against sessionID and returns a channel of
// records starting from resumeCursor+1 (0 resumes from the tail of nothing
// yet acked, i.e. the start of the log; pass the consumer's last known
// NextCursor-1 to resume after a reconnect). Backlog is replayed onto the
// returned channel before live records, preserving order.
func (q *Queue) Subscribe(sessionID, consumerID string, resumeCursor uint64) <-chan DeliveryRecord {
	l := q.log(sessionID)
	l.mu.Lock()
	cur, ok := l.consumers[consumerID]
	if !ok {
		cur = &ConsumerCursor{ConsumerID: consumerID, SessionID: sessionID}
		l.consumers[consumerID] = cur
	}
	if resumeCursor+1 > cur.NextCursor {
		cur.NextCursor = resumeCursor + 1
	}
	cur.LastSeenAt = time.Now()

	backlog := make([]DeliveryRecord, 0)
	for _, r := range l.records {
		if r.Cursor >= cur.NextCursor {
			backlog = append(backlog, r)
		}
	}

	ch := make(chan DeliveryRecord, backpressureLimit)
	l.sinks[consumerID] = ch
	l.mu.Unlock()

	for _, r := range backlog {
		ch <- r
	}
	return ch
}

// Unsubscribe stops pushing to consumerID; its cursor is retained so a later
// Subscribe resumes correctly.
func (q *Queue) Unsubscribe(sessionID, consumerID string) {
	l := q.log(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.sinks[consumerID]; ok {
		close(ch)
		delete(l.sinks, consumerID)
	}
}

// Ack advances consumerID's cursor for sessionID. Idempotent and
// max-advancing: acking a cursor at or below the current position is a no-op.
func (q *Queue) Ack(sessionID, consumerID string, cursor uint64) {
	l := q.log(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.consumers[consumerID]
	if !ok {
		return
	}
	if cursor > cur.LastAckedCursor {
		cur.LastAckedCursor = cursor
	}
	if cursor+1 > cur.NextCursor {
		cur.NextCursor = cursor + 1
	}
	cur.LastSeenAt = time.Now()
}

// sweep runs both TTL rules across every session's log.
func (q *Queue) sweep() {
	q.mu.RLock()
	logs := make(map[string]*sessionLog, len(q.sessions))
	for id, l := range q.sessions {
		logs[id] = l
	}
	q.mu.RUnlock()

	now := time.Now()
	for sessionID, l := range logs {
		l.mu.Lock()
		for id, cur := range l.consumers {
			if now.Sub(cur.LastSeenAt) >= consumerTTL {
				if ch, ok := l.sinks[id]; ok {
					close(ch)
					delete(l.sinks, id)
				}
				delete(l.consumers, id)
			}
		}

		minAcked := ^uint64(0)
		if len(l.consumers) == 0 {
			minAcked = l.nextCursor
		}
		for _, cur := range l.consumers {
			if cur.LastAckedCursor < minAcked {
				minAcked = cur.LastAckedCursor
			}
		}

		kept := l.records[:0:0]
		for _, r := range l.records {
			expired := now.Sub(r.CreatedAt) >= eventTTL && r.Cursor <= minAcked
			if !expired {
				kept = append(kept, r)
			}
		}
		l.records = kept
		l.mu.Unlock()

		if q.logger != nil {
			q.logger.Debug("delivery: swept session", zap.String("sessionId", sessionID), zap.Int("retained", len(kept)))
		}
	}
}

// BridgeBus appends every externally-relevant event (category in
// stream/message/turn/lifecycle/error) addressed to a session onto that
// session's delivery log, so subscribers see it via Subscribe/Ack rather
// than direct bus subscription.
func BridgeBus(consumer bus.Consumer, q *Queue) bus.Unsubscribe {
	return consumer.On("*", func(_ context.Context, ev bus.SystemEvent) error {
		if ev.Context == nil || ev.Context.SessionID == "" {
			return nil
		}
		if ev.Intent == bus.IntentRequest {
			return nil // internal triggers such as user_message are never delivered
		}
		switch ev.Category {
		case bus.CategoryStream, bus.CategoryMessage, bus.CategoryTurn, bus.CategoryLifecycle, bus.CategoryError:
			q.Append(ev.Context.SessionID, ev)
		}
		return nil
	}, bus.SubscribeOptions{})
}
