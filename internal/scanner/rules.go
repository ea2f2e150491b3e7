// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package scanner

import "regexp"

var defaultRules = []Rule{
	{Name: "aws_access_key", Pattern: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), Severity: SeverityHigh},
	{Name: "anthropic_api_key", Pattern: regexp.MustCompile(`sk-ant-(?:api|admin)\d{2}-[A-Za-z0-9_-]{20,}`), Severity: SeverityHigh},
	{Name: "openai_api_key", Pattern: regexp.MustCompile(`sk-(?:proj|svcacct)-[A-Za-z0-9_-]{20,}`), Severity: SeverityHigh},
	// Matches some non-secret sk- identifiers.
	{Name: "openai_legacy_key", Pattern: regexp.MustCompile(`sk-[A-Za-z0-9]{40,}`), Severity: SeverityMedium},
	{Name: "google_api_key", Pattern: regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`), Severity: SeverityHigh},
	{Name: "github_token", Pattern: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`), Severity: SeverityHigh},
	{Name: "github_fine_grained_pat", Pattern: regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`), Severity: SeverityHigh},
	{Name: "slack_token", Pattern: regexp.MustCompile(`xox[abprs]-[A-Za-z0-9-]{10,}`), Severity: SeverityHigh},
	{Name: "npm_token", Pattern: regexp.MustCompile(`npm_[A-Za-z0-9]{36}`), Severity: SeverityHigh},
	{Name: "vault_token", Pattern: regexp.MustCompile(`hvs\.[A-Za-z0-9_-]{24,}`), Severity: SeverityHigh},
	{Name: "digitalocean_pat", Pattern: regexp.MustCompile(`dop_v1_[a-f0-9]{64}`), Severity: SeverityHigh},
	{Name: "bearer_token", Pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.=]{20,}`), Severity: SeverityHigh},
	{Name: "pem_private_key", Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |ENCRYPTED )?PRIVATE KEY-----[\s\S]*?(?:-----END (?:RSA |EC |DSA |OPENSSH |ENCRYPTED )?PRIVATE KEY-----|$)`), Severity: SeverityHigh},
	{Name: "database_connection_string", Pattern: regexp.MustCompile(`(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp|jdbc:[a-z]+)://[^\s:@/]+:(?:[^@\s%]|%[0-9A-Fa-f]{2})+@[^\s]+`), Severity: SeverityHigh},
	{Name: "mssql_connection_string", Pattern: regexp.MustCompile(`(?i)(?:Server|Data Source)\s*=\s*[^;]+;[^\n]*?(?:Password|Pwd)\s*=\s*[^;\s]+`), Severity: SeverityHigh},
	{Name: "azure_account_key", Pattern: regexp.MustCompile(`(?i)AccountKey\s*=\s*[A-Za-z0-9+/=]{20,}`), Severity: SeverityHigh},
	// The ref is not the secret itself but names where one lives.
	{Name: "keyring_ref", Pattern: regexp.MustCompile(`keyring://[^\s"']+`), Severity: SeverityMedium},
}

// DefaultRules returns a copy of the built-in credential rules.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
