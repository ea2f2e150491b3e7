// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sandbox

import (
	"os"
	"strings"
)

// sensitiveEnvSuffixes hide credentials from spawned commands.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// alwaysPassEnv is forwarded even when it looks sensitive.
var alwaysPassEnv = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
}

func isSensitiveEnv(name string) bool {
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "PAW_") {
		return true
	}
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// filterEnv returns the process environment minus credentials, plus extra.
func filterEnv(extra map[string]string) []string {
	var env []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "PWD" || name == "OLDPWD" {
			continue
		}
		if alwaysPassEnv[name] || !isSensitiveEnv(name) {
			env = append(env, kv)
		}
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
