// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package agent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/agent"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestLane_SerializesWork(t *testing.T) {
	lane := agent.NewLane("conv-1")
	defer lane.Close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := range 3 {
		// Stagger submissions so the queue receives them in order.
		time.Sleep(5 * time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lane.Submit(context.Background(), func(context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order, "tasks must execute in FIFO submission order")
}

func TestLanePool_SameConversationNeverOverlaps(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), "conv-a", func(context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 1, pool.Len())
}

func TestLanePool_ConversationsRunInParallel(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), id, func(context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, peak.Load(), int32(2), "at least 2 lanes should have run concurrently")
}

func TestLane_ContextCancellation(t *testing.T) {
	lane := agent.NewLane("conv-cancel")
	defer lane.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := lane.Submit(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := lane.Submit(ctx, func(context.Context) error {
		t.Error("should not execute")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	wg.Wait()
}

func TestLane_RecoversPanics(t *testing.T) {
	lane := agent.NewLane("conv-panic")
	defer lane.Close()

	err := lane.Submit(context.Background(), func(context.Context) error { panic("boom") })
	require.Error(t, err)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeAgentLoopFailure))

	sentinel := errors.New("still alive")
	assert.ErrorIs(t, lane.Submit(context.Background(), func(context.Context) error { return sentinel }), sentinel)
}

func TestLanePool_ClosedRejectsWork(t *testing.T) {
	pool := agent.NewLanePool()
	require.NoError(t, pool.Submit(context.Background(), "x", func(context.Context) error { return nil }))

	pool.Remove("x")
	assert.Zero(t, pool.Len())

	pool.Close()
	err := pool.Submit(context.Background(), "y", func(context.Context) error { return nil })
	assert.True(t, pawerr.HasCode(err, pawerr.CodeAgentLaneClosed))
}
