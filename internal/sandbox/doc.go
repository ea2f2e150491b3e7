// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package sandbox enforces the boundary every tool execution runs inside.
//
// A Policy pins the allow-listed filesystem roots at construction time and
// canonicalizes requested paths against them, following symlinks on the path
// or its nearest existing ancestor so that traversal sequences and symlink
// indirection cannot escape. A CommandPolicy rejects blocklisted commands
// before anything is spawned and gates dangerous patterns behind an explicit
// approval flag. The Executor runs approved commands in their own process
// group with a hard wall-clock timeout, a filtered environment, and bounded
// output capture, optionally inside bubblewrap.
package sandbox
