// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/elemarin/paw/internal/store"
)

const (
	openTag  = "<MEMORY>"
	closeTag = "</MEMORY>"
)

// ContextBlock merges the scope's facts with its recent log into a single
// <MEMORY> block no longer than MaxChars. When the budget is exceeded the
// oldest log lines go first, then the least recently updated facts.
func (s *Service) ContextBlock(ctx context.Context, scope string, now time.Time) (string, error) {
	facts, err := s.List(ctx, scope)
	if err != nil {
		return "", err
	}
	logs, err := s.Recent(ctx, scope, now)
	if err != nil {
		return "", err
	}
	return Render(facts, logs, now.Location(), s.cfg.MaxChars), nil
}

// Render builds the block from already-loaded facts and log entries.
// Log entries must be in chronological order.
func Render(facts []*store.MemoryEntry, logs []*store.LogEntry, loc *time.Location, maxChars int) string {
	if loc == nil {
		loc = time.UTC
	}

	// Most recently updated facts are kept longest.
	kept := append([]*store.MemoryEntry(nil), facts...)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].UpdatedAt.After(kept[j].UpdatedAt) })
	recent := append([]*store.LogEntry(nil), logs...)

	for {
		block := render(kept, recent, loc)
		if maxChars <= 0 || len(block) <= maxChars {
			return block
		}
		switch {
		case len(recent) > 0:
			recent = recent[1:]
		case len(kept) > 0:
			kept = kept[:len(kept)-1]
		default:
			return block
		}
	}
}

func render(facts []*store.MemoryEntry, logs []*store.LogEntry, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(openTag)
	sb.WriteByte('\n')

	if len(facts) > 0 {
		sorted := append([]*store.MemoryEntry(nil), facts...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
		sb.WriteString("# Facts\n")
		for _, f := range sorted {
			sb.WriteString("- ")
			sb.WriteString(f.Key)
			sb.WriteString(": ")
			sb.WriteString(oneLine(f.Value))
			sb.WriteByte('\n')
		}
	}

	day := ""
	for _, e := range logs {
		t := e.CreatedAt.In(loc)
		if d := t.Format(time.DateOnly); d != day {
			if sb.Len() > len(openTag)+1 {
				sb.WriteByte('\n')
			}
			day = d
			sb.WriteString("# ")
			sb.WriteString(d)
			sb.WriteByte('\n')
		}
		sb.WriteString("- [")
		sb.WriteString(t.Format("15:04"))
		sb.WriteString("] ")
		sb.WriteString(oneLine(e.Content))
		sb.WriteByte('\n')
	}

	sb.WriteString(closeTag)
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
