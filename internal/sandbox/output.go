// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sandbox

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// boundedBuffer keeps the first and last half of a stream and counts the
// bytes dropped in between, so a chatty process cannot grow memory without bound.
type boundedBuffer struct {
	limit int
	head  []byte
	tail  []byte
	total int
}

func newBoundedBuffer(limit int) *boundedBuffer {
	if limit <= 0 {
		limit = 10000
	}
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.total += n

	headCap := b.limit / 2
	if room := headCap - len(b.head); room > 0 {
		take := min(room, len(p))
		b.head = append(b.head, p[:take]...)
		p = p[take:]
	}
	if len(p) == 0 {
		return n, nil
	}

	tailCap := b.limit - headCap
	b.tail = append(b.tail, p...)
	if len(b.tail) > tailCap {
		b.tail = b.tail[len(b.tail)-tailCap:]
	}
	return n, nil
}

func (b *boundedBuffer) truncated() bool {
	return b.total > len(b.head)+len(b.tail)
}

func (b *boundedBuffer) String() string {
	if !b.truncated() {
		return string(b.head) + string(b.tail)
	}
	return TruncateMiddle(string(b.head)+string(b.tail), b.limit, b.total)
}

// TruncateMiddle shortens s to at most limit bytes by keeping its head and
// tail around a marker that reports the original size. Cuts land on rune
// boundaries. total is the size to report; pass len(s) when s is complete.
func TruncateMiddle(s string, limit, total int) string {
	if total < len(s) {
		total = len(s)
	}
	if limit <= 0 || (len(s) <= limit && total == len(s)) {
		return s
	}

	headLen := limit / 2
	tailLen := limit - headLen
	if headLen > len(s) {
		headLen = len(s)
	}
	for headLen > 0 && headLen < len(s) && !utf8.RuneStart(s[headLen]) {
		headLen--
	}
	tailStart := max(len(s)-tailLen, headLen)
	for tailStart < len(s) && !utf8.RuneStart(s[tailStart]) {
		tailStart++
	}

	var sb strings.Builder
	sb.WriteString(s[:headLen])
	fmt.Fprintf(&sb, "\n... (truncated, %d bytes total) ...\n", total)
	sb.WriteString(s[tailStart:])
	return sb.String()
}
