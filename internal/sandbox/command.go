// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sandbox

import (
	"path/filepath"
	"strings"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// CommandPolicy screens shell commands before anything is spawned.
type CommandPolicy struct {
	blocked  []string
	approval []string
}

func NewCommandPolicy(blocked, approvalPatterns []string) *CommandPolicy {
	c := &CommandPolicy{}
	for _, b := range blocked {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			c.blocked = append(c.blocked, b)
		}
	}
	for _, a := range approvalPatterns {
		if a = strings.ToLower(a); strings.TrimSpace(a) != "" {
			c.approval = append(c.approval, a)
		}
	}
	return c
}

// Check returns sandbox.command.denied for empty or blocklisted commands and
// sandbox.command.approval_required for dangerous patterns unless approved.
//
// Single-word blocklist entries match any command word by basename, so
// "/sbin/reboot" and "ls; reboot" are both caught. Multi-word entries and
// approval patterns match as case-insensitive substrings.
func (c *CommandPolicy) Check(command string, approved bool) error {
	if strings.TrimSpace(command) == "" {
		return pawerr.New(pawerr.CodeSandboxCommandDenied, "sandbox: empty command")
	}

	lowered := strings.ToLower(command)
	unquoted := unquote.Replace(lowered)
	words := commandWords(unquoted)

	for _, b := range c.blocked {
		if strings.ContainsAny(b, " \t") {
			if strings.Contains(strings.Join(strings.Fields(lowered), " "), b) ||
				strings.Contains(strings.Join(strings.Fields(unquoted), " "), b) {
				return blockedErr(b)
			}
			continue
		}
		for _, w := range words {
			if w == b || filepath.Base(w) == b {
				return blockedErr(b)
			}
		}
	}

	if approved {
		return nil
	}
	for _, pattern := range c.approval {
		if strings.Contains(lowered, pattern) || strings.Contains(unquoted, pattern) {
			return pawerr.New(pawerr.CodeSandboxCommandApprovalRequired,
				"sandbox: command requires approval; pattern '"+strings.TrimSpace(pattern)+"' matched",
				pawerr.Field("pattern", pattern))
		}
	}
	return nil
}

func blockedErr(word string) error {
	return pawerr.New(pawerr.CodeSandboxCommandDenied,
		"sandbox: command blocked; '"+word+"' is not allowed", pawerr.Field("blocked", word))
}

// unquote drops the characters a shell removes while joining a word, so
// r''eboot and re\boot read as reboot.
var unquote = strings.NewReplacer(`"`, "", `'`, "", `\`, "")

// commandWords splits an unquoted command line on whitespace and shell operators.
func commandWords(command string) []string {
	return strings.FieldsFunc(command, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ';', '|', '&', '(', ')', '`', '<', '>', '$', '{', '}':
			return true
		}
		return false
	})
}
