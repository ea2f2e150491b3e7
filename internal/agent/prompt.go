// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package agent

import (
	"log/slog"
	"os"
	"strings"
)

// DefaultSoul is the base system prompt used when no soul file is configured.
const DefaultSoul = "You are PAW, a personal agent workspace. You are a helpful, direct, and capable AI assistant " +
	"that can execute shell commands, manage files, and build plugins to extend your own capabilities. " +
	"Be concise and action-oriented."

const memoryGuide = `The <MEMORY> block below holds facts and recent log lines saved in earlier conversations.
Use it when relevant. Call the memory tool to remember stable preferences, identities, decisions,
or commitments, and to log notable events of the day.`

// LoadSoul reads the soul file at path. A missing, empty, or unreadable
// file yields DefaultSoul.
func LoadSoul(path string) string {
	if path == "" {
		return DefaultSoul
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("reading soul file", "path", path, "error", err)
		} else {
			slog.Warn("soul file not found, using default", "path", path)
		}
		return DefaultSoul
	}
	soul := strings.TrimSpace(string(data))
	if soul == "" {
		return DefaultSoul
	}
	slog.Info("soul loaded", "path", path, "length", len(soul))
	return soul
}

// systemPrompt joins the soul with the memory block.
func systemPrompt(soul, memoryBlock string) string {
	if soul == "" {
		soul = DefaultSoul
	}
	if memoryBlock == "" {
		return soul
	}
	return soul + "\n\n" + memoryGuide + "\n\n" + memoryBlock
}
