// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package builtin provides the tools compiled into paw: files, shell,
// memory, and coder. Each tool enforces its sandbox class before touching
// the filesystem or spawning a process.
package builtin
