// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package anthropic

// ConvertMessages exposes convertMessages to the external test package.
var ConvertMessages = convertMessages
