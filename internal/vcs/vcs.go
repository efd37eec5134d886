// Package vcs wraps the git CLI with the handful of operations the pipeline
// needs: status, commit, and rollback, scoped to a single project's
// checkout.
package vcs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// gitignoreContents excludes the pipeline's own bookkeeping paths from
// tracking, mirroring ignoredPaths.
const gitignoreContents = "node_modules\n.ralph/\nagents.md\nprogress.txt\n"

// initialCommitMessage is the message for the commit Init produces.
const initialCommitMessage = "initial-commit: Project initialized"

// ignoredPaths are never considered "user changes" by HasUncommittedChanges:
// the pipeline itself writes agents.md and progress.txt as it runs, and
// .ralph/ holds its own bookkeeping.
var ignoredPaths = []string{"agents.md", "progress.txt", ".ralph/"}

// VCS performs git operations against a single repository root.
type VCS struct {
	gitPath  string
	repoPath string
}

// New creates a VCS scoped to repoPath, verifying that git is on PATH and
// that `git version` runs. repoPath itself is not checked; Init creates the
// repository if needed.
func New(ctx context.Context, repoPath string) (*VCS, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &VCS{gitPath: gitPath, repoPath: repoPath}, nil
}

// Init initializes a git repository at repoPath if one does not already
// exist, writes .gitignore, and, if the resulting tree has anything to
// stage, produces the initial commit. Safe to call more than once: a
// repository that's already initialized and has nothing new to commit is
// left untouched.
func (v *VCS) Init(ctx context.Context) error {
	checkCmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "rev-parse", "--is-inside-work-tree")
	if err := checkCmd.Run(); err != nil {
		initCmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "init")
		if err := initCmd.Run(); err != nil {
			return fmt.Errorf("git init failed in %s: %w", v.repoPath, err)
		}
	}

	if err := v.writeGitignore(); err != nil {
		return fmt.Errorf("writing .gitignore in %s: %w", v.repoPath, err)
	}

	status, err := v.GetStatus(ctx)
	if err != nil {
		return err
	}
	if !status.HasChanges {
		return nil
	}

	return v.AddAndCommit(ctx, initialCommitMessage)
}

// writeGitignore writes .gitignore at repoPath, overwriting any prior
// contents so re-running Init keeps it in sync.
func (v *VCS) writeGitignore() error {
	path := filepath.Join(v.repoPath, ".gitignore")
	return os.WriteFile(path, []byte(gitignoreContents), 0644)
}

// Status is a parsed `git status --porcelain` result.
type Status struct {
	Modified   []string
	Untracked  []string
	Deleted    []string
	Added      []string
	Renamed    []string
	HasChanges bool
}

// GetStatus returns the working-tree status.
func (v *VCS) GetStatus(ctx context.Context) (*Status, error) {
	cmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", v.repoPath, err)
	}

	status := &Status{}
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		statusCode := line[0:2]
		filePath := line[3:]

		switch {
		case strings.HasPrefix(statusCode, "??"):
			status.Untracked = append(status.Untracked, filePath)
		case strings.HasPrefix(statusCode, "A "), strings.HasPrefix(statusCode, "AM"):
			status.Added = append(status.Added, filePath)
		case strings.HasPrefix(statusCode, "M "), strings.HasPrefix(statusCode, " M"), strings.HasPrefix(statusCode, "MM"):
			status.Modified = append(status.Modified, filePath)
		case strings.HasPrefix(statusCode, "D "), strings.HasPrefix(statusCode, " D"):
			status.Deleted = append(status.Deleted, filePath)
		case strings.HasPrefix(statusCode, "R "):
			status.Renamed = append(status.Renamed, filePath)
		default:
			status.Modified = append(status.Modified, filePath)
		}

		status.HasChanges = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}

	return status, nil
}

// ChangedFiles returns every file status reports as touched, excluding the
// pipeline's own bookkeeping paths.
func (s *Status) ChangedFiles() []string {
	var all []string
	all = append(all, s.Modified...)
	all = append(all, s.Untracked...)
	all = append(all, s.Deleted...)
	all = append(all, s.Added...)
	all = append(all, s.Renamed...)

	var filtered []string
	for _, f := range all {
		if isIgnoredPath(f) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}

func isIgnoredPath(path string) bool {
	for _, ignored := range ignoredPaths {
		if path == ignored || strings.HasPrefix(path, ignored) {
			return true
		}
	}
	return false
}

// HasUncommittedChanges reports whether anything outside the ignored paths
// is modified, added, deleted, renamed, or untracked.
func (v *VCS) HasUncommittedChanges(ctx context.Context) (bool, error) {
	status, err := v.GetStatus(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check uncommitted changes in %s: %w", v.repoPath, err)
	}
	return len(status.ChangedFiles()) > 0, nil
}

// CommitManualChanges stages and commits any changes it finds that the
// pipeline did not itself make, tagging the commit so downstream tooling can
// tell it apart from pipeline-authored commits.
func (v *VCS) CommitManualChanges(ctx context.Context) error {
	status, err := v.GetStatus(ctx)
	if err != nil {
		return err
	}

	changed := status.ChangedFiles()
	if len(changed) == 0 {
		return nil
	}

	message := fmt.Sprintf("[USER_MANUAL_CHANGE] Detected changes in: %s", strings.Join(changed, ", "))
	return v.AddAndCommit(ctx, message)
}

// AddAndCommit stages everything and commits with message.
func (v *VCS) AddAndCommit(ctx context.Context, message string) error {
	if message == "" {
		return fmt.Errorf("commit message is required")
	}

	addCmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "add", "-A")
	if err := addCmd.Run(); err != nil {
		return fmt.Errorf("git add failed in %s: %w", v.repoPath, err)
	}

	commitCmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "commit", "-m", message)
	if err := commitCmd.Run(); err != nil {
		return fmt.Errorf("git commit failed in %s: %w", v.repoPath, err)
	}

	return nil
}

// RollbackToLastCommit hard-resets to HEAD and removes untracked files,
// discarding every change since the last commit.
func (v *VCS) RollbackToLastCommit(ctx context.Context) error {
	resetCmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "reset", "--hard", "HEAD")
	if err := resetCmd.Run(); err != nil {
		return fmt.Errorf("git reset --hard failed in %s: %w", v.repoPath, err)
	}

	cleanCmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "clean", "-fd")
	if err := cleanCmd.Run(); err != nil {
		return fmt.Errorf("git clean failed in %s: %w", v.repoPath, err)
	}

	return nil
}

// HeadCommit returns the current HEAD commit hash.
func (v *VCS) HeadCommit(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, v.gitPath, "-C", v.repoPath, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", v.repoPath, err)
	}
	return strings.TrimSpace(string(output)), nil
}
