// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider

import "context"

// EventBuffer is the channel capacity adapters use for Chat streams.
const EventBuffer = 100

// Send delivers ev unless ctx is done first, so an adapter goroutine never
// blocks on a consumer that stopped reading. It reports whether ev was sent.
func Send(ctx context.Context, ch chan<- ChatEvent, ev ChatEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
