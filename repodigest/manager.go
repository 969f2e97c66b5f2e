/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package repodigest acquires a repository snapshot and renders it into a
// textual digest for the criterion evaluators.
package repodigest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const cloneDirPrefix = "reposcore-clone-"

var (
	sshURLPattern   = regexp.MustCompile(`^git@github\.com:([^/]+)/(.+?)(?:\.git)?$`)
	httpsURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:/tree/[^/]+)?(?:/(.+))?/?$`)
)

// Manager owns the temporary clones created during a run and removes them on
// Cleanup.
type Manager struct {
	token  string
	cloned []string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithToken authenticates clones of private repositories with an access
// token.
func WithToken(token string) ManagerOption {
	return func(m *Manager) { m.token = token }
}

// NewManager creates a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ParseURL normalizes the GitHub URL forms we accept into a canonical clone
// URL plus an optional subfolder path.
//
// Supported forms:
//
//	https://github.com/user/repo[.git]
//	https://github.com/user/repo/tree/branch[/path/to/folder]
//	git@github.com:user/repo[.git]
func ParseURL(url string) (cloneURL, subfolder string) {
	url = strings.TrimSpace(url)

	if m := sshURLPattern.FindStringSubmatch(url); m != nil {
		return fmt.Sprintf("https://github.com/%s/%s.git", m[1], m[2]), ""
	}

	if m := httpsURLPattern.FindStringSubmatch(url); m != nil {
		return fmt.Sprintf("https://github.com/%s/%s.git", m[1], m[2]), m[3]
	}

	// Unrecognized host: use as-is, normalizing the .git suffix.
	if strings.HasSuffix(url, ".git") {
		return url, ""
	}
	return strings.TrimRight(url, "/") + ".git", ""
}

// Acquire makes the repository available on the local filesystem and returns
// its root path. Local directory paths pass through untouched; anything else
// is shallow-cloned into a temp dir that Cleanup removes.
func (m *Manager) Acquire(ctx context.Context, repoURL string) (string, error) {
	log := clog.FromContext(ctx)

	if info, err := os.Stat(repoURL); err == nil && info.IsDir() {
		log.With("path", repoURL).Info("Using local repository")
		abs, err := filepath.Abs(repoURL)
		if err != nil {
			return "", fmt.Errorf("resolving local path: %w", err)
		}
		return abs, nil
	}

	cloneURL, subfolder := ParseURL(repoURL)

	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}

	log.With("url", cloneURL).With("dir", dir).Info("Cloning repository")

	opts := &git.CloneOptions{
		URL:          cloneURL,
		Depth:        1,
		SingleBranch: true,
	}
	if m.token != "" {
		opts.Auth = &githttp.BasicAuth{
			Username: "unused-when-using-access-tokens",
			Password: m.token,
		}
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("cloning %s: %w", cloneURL, err)
	}
	m.cloned = append(m.cloned, dir)

	if subfolder != "" {
		sub := filepath.Join(dir, filepath.FromSlash(subfolder))
		if info, err := os.Stat(sub); err != nil || !info.IsDir() {
			return "", fmt.Errorf("subfolder %q does not exist in repository", subfolder)
		}
		log.With("subfolder", subfolder).Info("Using repository subfolder")
		return sub, nil
	}

	return dir, nil
}

// Cleanup removes every clone this manager created.
func (m *Manager) Cleanup(ctx context.Context) {
	log := clog.FromContext(ctx)
	var errs []error
	for _, dir := range m.cloned {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		log.With("dir", dir).Debug("Removed clone")
	}
	if err := errors.Join(errs...); err != nil {
		log.With("error", err).Warn("Failed to clean up some clones")
	}
	m.cloned = nil
}
