/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repodigest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
)

const (
	// defaultMaxFileBytes caps how much of a single file enters the digest.
	defaultMaxFileBytes = 64 * 1024
	// defaultMaxTotalBytes caps the digest as a whole.
	defaultMaxTotalBytes = 2 * 1024 * 1024
)

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"dist":         true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
}

// Builder renders a repository tree into a single text digest: one fenced
// section per file, in path order, with binary and oversized content
// elided.
type Builder struct {
	maxFileBytes  int64
	maxTotalBytes int64
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMaxFileBytes caps the bytes taken from any single file.
func WithMaxFileBytes(n int64) BuilderOption {
	return func(b *Builder) { b.maxFileBytes = n }
}

// WithMaxTotalBytes caps the digest's total size.
func WithMaxTotalBytes(n int64) BuilderOption {
	return func(b *Builder) { b.maxTotalBytes = n }
}

// NewBuilder creates a Builder with default size caps.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		maxFileBytes:  defaultMaxFileBytes,
		maxTotalBytes: defaultMaxTotalBytes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build walks root and renders the digest. The digest opens with the file
// listing so evaluators see the full structure even when content is elided
// by the size caps.
func (b *Builder) Build(ctx context.Context, root string) (string, error) {
	log := clog.FromContext(ctx)

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking repository: %w", err)
	}
	sort.Strings(paths)

	var sb strings.Builder
	sb.WriteString("# Repository contents\n\n## File listing\n\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "- %s\n", p)
	}
	sb.WriteString("\n## Files\n")

	written := int64(sb.Len())
	included, elided := 0, 0
	for _, rel := range paths {
		if written >= b.maxTotalBytes {
			elided++
			continue
		}

		content, ok := b.readFile(filepath.Join(root, filepath.FromSlash(rel)), rel)
		if !ok {
			elided++
			continue
		}
		if remaining := b.maxTotalBytes - written; int64(len(content)) > remaining {
			content = content[:remaining]
		}

		section := fmt.Sprintf("\n### %s\n\n```\n%s\n```\n", rel, content)
		sb.WriteString(section)
		written += int64(len(section))
		included++
	}

	log.With("files", len(paths)).
		With("included", included).
		With("elided", elided).
		With("bytes", sb.Len()).
		Info("Built repository digest")
	return sb.String(), nil
}

// readFile returns the renderable content of one file, or ok=false when the
// file should be skipped (unreadable, binary, empty after conversion).
func (b *Builder) readFile(path, rel string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	limit := b.maxFileBytes
	if strings.HasSuffix(rel, ".ipynb") {
		// Notebooks are JSON envelopes much larger than their sources; read
		// whole so cell extraction works, then cap the extracted text.
		limit = 4 * b.maxFileBytes
	}
	data := make([]byte, limit)
	n, _ := f.Read(data)
	data = data[:n]

	if len(data) == 0 || bytes.IndexByte(data, 0) != -1 {
		return "", false
	}

	if strings.HasSuffix(rel, ".ipynb") {
		text, err := notebookSource(data)
		if err != nil || text == "" {
			return "", false
		}
		if int64(len(text)) > b.maxFileBytes {
			text = text[:b.maxFileBytes]
		}
		return text, true
	}

	return string(data), true
}

// notebookSource reduces a Jupyter notebook to its markdown and code cell
// sources.
func notebookSource(data []byte) (string, error) {
	var nb struct {
		Cells []struct {
			CellType string          `json:"cell_type"`
			Source   json.RawMessage `json:"source"`
		} `json:"cells"`
	}
	if err := json.Unmarshal(data, &nb); err != nil {
		return "", fmt.Errorf("parsing notebook: %w", err)
	}

	var sb strings.Builder
	for _, cell := range nb.Cells {
		switch cell.CellType {
		case "markdown", "code":
			sb.WriteString(cellSource(cell.Source))
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// cellSource handles both notebook source encodings: a list of lines or a
// single string.
func cellSource(raw json.RawMessage) string {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
