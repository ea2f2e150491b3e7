// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// laneQueueSize bounds the number of turns waiting on one conversation.
const laneQueueSize = 64

// workItem represents a unit of work submitted to a Lane.
type workItem struct {
	fn     func(context.Context) error
	ctx    context.Context
	result chan<- error
}

// Lane serialises work for a single conversation. Tasks submitted via Submit
// are executed one at a time in FIFO order by a background goroutine.
type Lane struct {
	conversationID string
	queue          chan workItem
	done           chan struct{}
	closing        chan struct{}

	once sync.Once
}

// NewLane creates a Lane for the given conversation and starts its
// background goroutine. Call Close when the lane is no longer needed.
func NewLane(conversationID string) *Lane {
	l := &Lane{
		conversationID: conversationID,
		queue:          make(chan workItem, laneQueueSize),
		done:           make(chan struct{}),
		closing:        make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.done)
	for {
		select {
		case w := <-l.queue:
			l.executeWork(w)
		case <-l.closing:
			for {
				select {
				case w := <-l.queue:
					l.executeWork(w)
				default:
					return
				}
			}
		}
	}
}

// executeWork runs a work item with panic recovery.
func (l *Lane) executeWork(w workItem) {
	if err := w.ctx.Err(); err != nil {
		w.result <- err
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("lane worker panic recovered",
					"conversation_id", l.conversationID,
					"panic", r,
					"stack", string(debug.Stack()))
				err = pawerr.Errorf(pawerr.CodeAgentLoopFailure, "worker panic: %v", r)
			}
		}()
		err = w.fn(w.ctx)
	}()

	w.result <- err
}

func (l *Lane) closedErr(msg string) error {
	return pawerr.New(pawerr.CodeAgentLaneClosed, msg, pawerr.FieldConversationID(l.conversationID))
}

// Submit enqueues fn for execution on this lane and blocks until it completes.
// If ctx is cancelled before execution begins, ctx.Err() is returned without
// executing fn.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Non-blocking check so a closed lane never receives a send.
	select {
	case <-l.closing:
		return l.closedErr("lane is closed")
	default:
	}

	result := make(chan error, 1)
	w := workItem{fn: fn, ctx: ctx, result: result}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closing:
		return l.closedErr("lane is closed")
	case l.queue <- w:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Close stops accepting work and waits for already-enqueued items to
// finish. Close is idempotent.
func (l *Lane) Close() {
	l.once.Do(func() {
		close(l.closing)
		<-l.done
	})
}

// LanePool manages a set of Lanes keyed by conversation ID. It creates lanes
// on first access and is safe for concurrent use.
type LanePool struct {
	mu     sync.Mutex
	lanes  map[string]*Lane
	closed bool
}

func NewLanePool() *LanePool {
	return &LanePool{lanes: make(map[string]*Lane)}
}

// Get returns the Lane for the given conversation, creating one if it does
// not already exist. It returns nil once the pool is closed.
func (p *LanePool) Get(conversationID string) *Lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	if l, ok := p.lanes[conversationID]; ok {
		return l
	}
	l := NewLane(conversationID)
	p.lanes[conversationID] = l
	return l
}

// Submit runs fn on the conversation's lane. Turns for the same
// conversation never overlap; different conversations run in parallel.
func (p *LanePool) Submit(ctx context.Context, conversationID string, fn func(context.Context) error) error {
	l := p.Get(conversationID)
	if l == nil {
		return pawerr.New(pawerr.CodeAgentLaneClosed, "lane pool is closed",
			pawerr.FieldConversationID(conversationID))
	}
	return l.Submit(ctx, fn)
}

// Remove closes and forgets the lane of a deleted conversation.
func (p *LanePool) Remove(conversationID string) {
	p.mu.Lock()
	l, ok := p.lanes[conversationID]
	delete(p.lanes, conversationID)
	p.mu.Unlock()

	if ok {
		l.Close()
	}
}

// Len reports the number of live lanes.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Close shuts down all lanes managed by the pool.
func (p *LanePool) Close() {
	p.mu.Lock()
	lanes := p.lanes
	p.lanes = make(map[string]*Lane)
	p.closed = true
	p.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}
