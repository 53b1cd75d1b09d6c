package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// initRepo creates a throwaway git repository with one commit.
func initRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repo := t.TempDir()

	run := func(args ...string) {
		t.Helper()

		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)

		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	}

	run("init", "--initial-branch=main")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial")

	return repo
}

func TestBranchName(t *testing.T) {
	require.Equal(t, "pcx/session-1", BranchName("session-1"))
}

func TestEnsureCreatesWorktree(t *testing.T) {
	repo := initRepo(t)
	base := filepath.Join(t.TempDir(), "agents")

	wt, err := Ensure(repo, base, "session-1", "")
	require.NoError(t, err)
	require.Equal(t, "session-1", wt.SessionName)
	require.Equal(t, "pcx/session-1", wt.BranchName)
	require.DirExists(t, wt.Path)
	require.FileExists(t, filepath.Join(wt.Path, "README.md"))
}

func TestEnsureIsIdempotent(t *testing.T) {
	repo := initRepo(t)
	base := filepath.Join(t.TempDir(), "agents")

	first, err := Ensure(repo, base, "session-1", "")
	require.NoError(t, err)

	second, err := Ensure(repo, base, "session-1", "")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureCustomBranch(t *testing.T) {
	repo := initRepo(t)
	base := filepath.Join(t.TempDir(), "agents")

	wt, err := Ensure(repo, base, "session-1", "feature/custom")
	require.NoError(t, err)
	require.Equal(t, "feature/custom", wt.BranchName)
}

func TestEnsureRejectsNonRepo(t *testing.T) {
	notRepo := t.TempDir()

	_, err := Ensure(notRepo, t.TempDir(), "session-1", "")

	var wtErr *WorktreeError
	require.ErrorAs(t, err, &wtErr)
	require.Contains(t, wtErr.Error(), "git repository")
}

func TestRemove(t *testing.T) {
	repo := initRepo(t)
	base := filepath.Join(t.TempDir(), "agents")

	wt, err := Ensure(repo, base, "session-1", "")
	require.NoError(t, err)

	require.NoError(t, Remove(repo, wt))
	require.NoDirExists(t, wt.Path)
}

func TestParallelSessionsGetSeparateCheckouts(t *testing.T) {
	repo := initRepo(t)
	base := filepath.Join(t.TempDir(), "agents")

	one, err := Ensure(repo, base, "session-1", "")
	require.NoError(t, err)

	two, err := Ensure(repo, base, "session-2", "")
	require.NoError(t, err)

	require.NotEqual(t, one.Path, two.Path)
	require.NotEqual(t, one.BranchName, two.BranchName)
}
