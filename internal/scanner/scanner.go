// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package scanner finds credentials in text produced by tools so they can be
// masked before reaching the model, conversation history, or audit records.
package scanner

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Severity indicates how confident a rule is that a match is a real secret.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Mode selects what happens to tool output that contains a match.
type Mode string

const (
	// ModeRedact replaces every match with Placeholder.
	ModeRedact Mode = "redact"
	// ModeFlag logs matches and passes the output through unchanged.
	ModeFlag Mode = "flag"
	// ModeBlock drops the output and reports a tool error instead.
	ModeBlock Mode = "block"
	// ModeOff disables scanning.
	ModeOff Mode = "off"
)

// Placeholder is written in place of every redacted region.
const Placeholder = "[REDACTED]"

// DefaultMaxContentLength bounds how much text a single Scan inspects.
const DefaultMaxContentLength = 1 << 20

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRedact, ModeFlag, ModeBlock, ModeOff:
		return m, nil
	default:
		return "", pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"invalid secret scan mode %q (want redact, flag, block or off)", s)
	}
}

// Rule is one named credential pattern.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Severity Severity
}

// Match is a single hit. Location and Length are byte offsets into
// Result.Content.
type Match struct {
	Rule     string
	Location int
	Length   int
	Severity Severity
}

// Result is the outcome of a Scan.
type Result struct {
	// Content is the normalized text that Match offsets refer to.
	Content string
	Matches []Match
	// Truncated is set when only the first MaxContentLength bytes were
	// inspected.
	Truncated bool
}

// Found reports whether any rule matched.
func (r Result) Found() bool { return len(r.Matches) > 0 }

// Rules lists the distinct rule names that matched, in first-hit order.
func (r Result) Rules() []string {
	var names []string
	for _, m := range r.Matches {
		if !slices.Contains(names, m.Rule) {
			names = append(names, m.Rule)
		}
	}
	return names
}

// Scanner matches text against a fixed rule set. It is safe for concurrent use.
type Scanner struct {
	rules            []Rule
	maxContentLength int
}

// New builds a scanner. With no rules it uses DefaultRules.
func New(rules ...Rule) (*Scanner, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		switch {
		case r.Name == "":
			return nil, pawerr.Errorf(pawerr.CodeScannerRuleInvalid, "rule %d has an empty name", i)
		case r.Pattern == nil:
			return nil, pawerr.Errorf(pawerr.CodeScannerRuleInvalid, "rule %s has no pattern", r.Name)
		case r.Severity != SeverityHigh && r.Severity != SeverityMedium:
			return nil, pawerr.Errorf(pawerr.CodeScannerRuleInvalid, "rule %s has invalid severity %q", r.Name, r.Severity)
		case seen[r.Name]:
			return nil, pawerr.Errorf(pawerr.CodeScannerRuleInvalid, "duplicate rule %s", r.Name)
		}
		seen[r.Name] = true
	}
	return &Scanner{rules: rules, maxContentLength: DefaultMaxContentLength}, nil
}

// invisible strips zero-width and formatting characters that would otherwise
// split a token so the patterns miss it.
var invisible = strings.NewReplacer(
	"\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "",
	"\u00ad", "", "\u034f", "", "\u061c", "", "\u180e", "",
	"\u2060", "", "\u2061", "", "\u2062", "", "\u2063", "", "\u2064", "",
)

func normalize(s string) string {
	return norm.NFKC.String(invisible.Replace(s))
}

// Scan normalizes content and returns every match. Content beyond the length
// limit is not inspected but is kept in Result.Content.
func (s *Scanner) Scan(content string) Result {
	content = normalize(content)
	res := Result{Content: content}

	inspect := content
	if len(inspect) > s.maxContentLength {
		inspect = inspect[:s.maxContentLength]
		res.Truncated = true
	}
	for _, r := range s.rules {
		for _, loc := range r.Pattern.FindAllStringIndex(inspect, -1) {
			res.Matches = append(res.Matches, Match{
				Rule:     r.Name,
				Location: loc[0],
				Length:   loc[1] - loc[0],
				Severity: r.Severity,
			})
		}
	}
	return res
}

// Redact scans content and returns it with every match replaced.
func (s *Scanner) Redact(content string) (string, Result) {
	res := s.Scan(content)
	return Mask(res.Content, res.Matches), res
}

// Mask replaces the matched regions of content with Placeholder. Overlapping
// and adjacent matches collapse into one placeholder.
func Mask(content string, matches []Match) string {
	spans := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Location >= 0 && m.Length > 0 && m.Location < len(content) {
			spans = append(spans, m)
		}
	}
	if len(spans) == 0 {
		return content
	}
	slices.SortFunc(spans, func(a, b Match) int { return a.Location - b.Location })

	var b strings.Builder
	b.Grow(len(content))
	pos, end := 0, -1
	for _, m := range spans {
		mEnd := min(m.Location+m.Length, len(content))
		if end >= 0 && m.Location <= end {
			end = max(end, mEnd)
			continue
		}
		if end >= 0 {
			pos = end
		}
		b.WriteString(content[pos:m.Location])
		b.WriteString(Placeholder)
		end = mEnd
	}
	b.WriteString(content[end:])
	return b.String()
}
