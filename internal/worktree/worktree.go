// Package worktree manages per-session git worktrees.
//
// Each Codex session gets its own branch and working directory under an
// agents base directory, so parallel sessions never edit the same checkout.
// The core consumes the resulting path only as an opaque workspace string.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BranchPrefix is prepended to session names to form branch names. The
// scheme is intentionally simple so users can interact with session
// branches directly via git.
const BranchPrefix = "pcx/"

// WorktreeError indicates a git worktree operation failed.
type WorktreeError struct {
	Msg string
	Err error
}

func (e *WorktreeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}

	return e.Msg
}

func (e *WorktreeError) Unwrap() error {
	return e.Err
}

// SessionWorktree describes a session-specific git worktree.
type SessionWorktree struct {
	SessionName string
	BranchName  string
	Path        string
}

// BranchName returns the branch name for a session.
func BranchName(sessionName string) string {
	return BranchPrefix + sessionName
}

// Ensure creates or reuses a git worktree for a Codex session.
//
// If the target directory already exists the worktree is assumed to be set
// up and git is left to manage the details; idempotence is preferred over
// strict erroring.
func Ensure(repoRoot, agentsBase, sessionName, branchName string) (SessionWorktree, error) {
	repoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return SessionWorktree{}, &WorktreeError{Msg: "resolve repo root", Err: err}
	}

	agentsBase, err = filepath.Abs(agentsBase)
	if err != nil {
		return SessionWorktree{}, &WorktreeError{Msg: "resolve agents base", Err: err}
	}

	if _, err := os.Stat(filepath.Join(repoRoot, ".git")); err != nil {
		return SessionWorktree{}, &WorktreeError{
			Msg: fmt.Sprintf("%s does not look like a git repository (no .git found); "+
				"point at the root of your git repo", repoRoot),
		}
	}

	targetDir := filepath.Join(agentsBase, sessionName)

	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return SessionWorktree{}, &WorktreeError{Msg: "create agents base directory", Err: err}
	}

	branch := branchName
	if branch == "" {
		branch = BranchName(sessionName)
	}

	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		if _, err := runGit(repoRoot, "worktree", "add", "-B", branch, targetDir); err != nil {
			return SessionWorktree{}, &WorktreeError{
				Msg: fmt.Sprintf("failed to create worktree for session %q in %s", sessionName, targetDir),
				Err: err,
			}
		}
	}

	return SessionWorktree{
		SessionName: sessionName,
		BranchName:  branch,
		Path:        targetDir,
	}, nil
}

// Remove deletes a session's worktree registration and directory.
func Remove(repoRoot string, wt SessionWorktree) error {
	repoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return &WorktreeError{Msg: "resolve repo root", Err: err}
	}

	if _, err := runGit(repoRoot, "worktree", "remove", "--force", wt.Path); err != nil {
		return &WorktreeError{
			Msg: fmt.Sprintf("failed to remove worktree for session %q", wt.SessionName),
			Err: err,
		}
	}

	return nil
}

// runGit executes git with the given args in cwd, returning stdout.
func runGit(cwd string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}

		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return string(out), nil
}
