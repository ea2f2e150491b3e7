// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package agent

// NormalizeHistory exposes normalizeHistory for white-box testing.
var NormalizeHistory = normalizeHistory
