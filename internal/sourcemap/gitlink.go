// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package sourcemap

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/dotandev/traploc/internal/logger"
)

// GitHubLinker maps a resolved (file, line) to a browse URL on the
// contract repository, using the remote and HEAD revision detected at
// construction. Links are best-effort: a repository without a GitHub
// remote yields no links and never an error.
type GitHubLinker struct {
	baseURL  string
	revision string
}

// NewGitHubLinker inspects the git repository at repoRoot and returns a
// linker, or nil when the remote or revision cannot be determined.
func NewGitHubLinker(repoRoot string) *GitHubLinker {
	remote, err := gitOutput(repoRoot, "config", "--get", "remote.origin.url")
	if err != nil {
		logger.Logger.Debug("No git remote detected, links disabled", "root", repoRoot, "error", err)
		return nil
	}
	rev, err := gitOutput(repoRoot, "rev-parse", "HEAD")
	if err != nil {
		logger.Logger.Debug("No git revision detected, links disabled", "root", repoRoot, "error", err)
		return nil
	}

	base := normalizeGitHubRemote(remote)
	if base == "" {
		logger.Logger.Debug("Remote is not a GitHub URL, links disabled", "remote", remote)
		return nil
	}
	return &GitHubLinker{baseURL: base, revision: rev}
}

// Link returns the blob URL for file at line, or "" when line is 0.
func (l *GitHubLinker) Link(file string, line uint32) string {
	if l == nil || line == 0 {
		return ""
	}
	return fmt.Sprintf("%s/blob/%s/%s#L%d", l.baseURL, l.revision, file, line)
}

// normalizeGitHubRemote converts the common remote forms
// (git@github.com:org/repo.git, https://github.com/org/repo.git) into a
// https://github.com/org/repo base, or "" for non-GitHub remotes.
func normalizeGitHubRemote(remote string) string {
	remote = strings.TrimSpace(remote)
	remote = strings.TrimSuffix(remote, ".git")

	if rest, ok := strings.CutPrefix(remote, "git@github.com:"); ok {
		return "https://github.com/" + rest
	}
	if strings.HasPrefix(remote, "https://github.com/") || strings.HasPrefix(remote, "http://github.com/") {
		return remote
	}
	if rest, ok := strings.CutPrefix(remote, "ssh://git@github.com/"); ok {
		return "https://github.com/" + rest
	}
	return ""
}

func gitOutput(root string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", root}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
