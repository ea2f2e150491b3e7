// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package builtin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/elemarin/paw/internal/sandbox"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

const (
	maxReadChars     = 50000
	maxListEntries   = 200
	maxSearchMatches = 100
)

type filesArgs struct {
	Action  string `json:"action" jsonschema:"description=The file action to perform.,enum=read,enum=write,enum=append,enum=list,enum=search,enum=exists,enum=delete"`
	Path    string `json:"path" jsonschema:"description=File or directory path. Relative paths resolve against the workspace."`
	Content string `json:"content,omitempty" jsonschema:"description=Content to write (for write and append)."`
	Pattern string `json:"pattern,omitempty" jsonschema:"description=Glob pattern for search; e.g. *.go"`
}

// Files reads and writes inside the sandbox roots.
type Files struct {
	paths *sandbox.Policy
	log   *slog.Logger
}

func NewFiles(paths *sandbox.Policy, log *slog.Logger) *Files {
	if log == nil {
		log = slog.Default()
	}
	return &Files{paths: paths, log: log}
}

func (f *Files) Definition() tool.Definition {
	return tool.Definition{
		Name: "files",
		Description: "Manage files in the workspace. Actions: " +
			"'read' (read a file), 'write' (create/overwrite a file), " +
			"'append' (append to a file), 'list' (list directory contents), " +
			"'search' (search for files by name pattern), 'exists' (check if path exists), " +
			"'delete' (delete a file).",
		Schema: tool.SchemaFor[filesArgs](),
		Owner:  tool.OwnerBuiltin,
		Class:  tool.ClassFile,
	}
}

func (f *Files) Execute(_ context.Context, call tool.Call) (string, error) {
	args, err := tool.DecodeArgs[filesArgs](call)
	if err != nil {
		return "", err
	}
	// Every action resolves first so a rejected path never reaches the
	// filesystem.
	abs, err := f.paths.Resolve(args.Path)
	if err != nil {
		return "", pawerr.With(err, pawerr.FieldTool("files"))
	}
	shown := args.Path
	if shown == "" {
		shown = "."
	}

	switch args.Action {
	case "read":
		return f.read(abs, shown)
	case "write":
		return f.write(abs, shown, args.Content, os.O_TRUNC)
	case "append":
		return f.write(abs, shown, args.Content, os.O_APPEND)
	case "list":
		return f.list(abs, shown)
	case "search":
		return f.search(abs, shown, args.Pattern)
	case "exists":
		return exists(abs, shown), nil
	case "delete":
		return f.remove(abs, shown)
	default:
		return "", pawerr.Errorf(pawerr.CodeToolInputInvalid, "unknown action %q", args.Action)
	}
}

func (f *Files) read(abs, shown string) (string, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return "", fileErr(err, shown)
	}
	if !info.Mode().IsRegular() {
		return "", pawerr.New(pawerr.CodeToolInputInvalid, "not a file: "+shown, pawerr.FieldPath(shown))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fileErr(err, shown)
	}
	text := strings.ToValidUTF8(string(data), string(utf8.RuneError))
	if n := utf8.RuneCountInString(text); n > maxReadChars {
		runes := []rune(text)
		text = string(runes[:maxReadChars]) + fmt.Sprintf("\n... (truncated, %d chars total)", n)
	}
	return text, nil
}

func (f *Files) write(abs, shown, content string, mode int) (string, error) {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fileErr(err, shown)
	}
	fh, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return "", fileErr(err, shown)
	}
	if _, err := fh.WriteString(content); err != nil {
		_ = fh.Close()
		return "", fileErr(err, shown)
	}
	if err := fh.Close(); err != nil {
		return "", fileErr(err, shown)
	}

	n := utf8.RuneCountInString(content)
	if mode == os.O_APPEND {
		f.log.Info("files append", "path", abs, "size", n)
		return fmt.Sprintf("Appended %d chars to %s", n, shown), nil
	}
	f.log.Info("files write", "path", abs, "size", n)
	return fmt.Sprintf("Written %d chars to %s", n, shown), nil
}

func (f *Files) list(abs, shown string) (string, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return "", fileErr(err, shown)
	}
	if !info.IsDir() {
		return "", pawerr.New(pawerr.CodeToolInputInvalid, "not a directory: "+shown, pawerr.FieldPath(shown))
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fileErr(err, shown)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of %s (%d items):", shown, len(entries))
	for i, e := range entries {
		if i == maxListEntries {
			break
		}
		if e.IsDir() {
			fmt.Fprintf(&sb, "\n  [dir] %s", e.Name())
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		fmt.Fprintf(&sb, "\n  [file] %s (%d bytes)", e.Name(), size)
	}
	return sb.String(), nil
}

func (f *Files) search(abs, shown, pattern string) (string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return "", pawerr.Wrapf(err, pawerr.CodeToolInputInvalid, "invalid pattern %q", pattern)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fileErr(err, shown)
	}
	if !info.IsDir() {
		return "", pawerr.New(pawerr.CodeToolInputInvalid, "not a directory: "+shown, pawerr.FieldPath(shown))
	}

	errLimit := errors.New("limit")
	var matches []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped.
			return nil
		}
		if p == abs {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			matches = append(matches, f.paths.Display(p))
			if len(matches) == maxSearchMatches {
				return errLimit
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return "", fileErr(err, shown)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files matching '%s' in %s", pattern, shown), nil
	}
	sort.Strings(matches)
	return fmt.Sprintf("Found %d matches:\n  %s", len(matches), strings.Join(matches, "\n  ")), nil
}

func exists(abs, shown string) string {
	info, err := os.Stat(abs)
	if err != nil {
		return "No: " + shown + " does not exist"
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("Yes: %s exists (%s)", shown, kind)
}

func (f *Files) remove(abs, shown string) (string, error) {
	info, err := os.Lstat(abs)
	if err != nil {
		return "", fileErr(err, shown)
	}
	if info.IsDir() {
		return "", pawerr.New(pawerr.CodeToolInputInvalid,
			"cannot delete a directory with the files tool; use shell: rm -r "+shown, pawerr.FieldPath(shown))
	}
	if err := os.Remove(abs); err != nil {
		return "", fileErr(err, shown)
	}
	f.log.Info("files delete", "path", abs)
	return "Deleted: " + shown, nil
}

func fileErr(err error, shown string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return pawerr.New(pawerr.CodeToolInputInvalid, "not found: "+shown, pawerr.FieldPath(shown))
	}
	return pawerr.Wrapf(err, pawerr.CodeToolExecuteFailure, "files %s", shown)
}
