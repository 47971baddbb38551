// Package testrepo builds throwaway git repositories for tests using the
// git binary.
package testrepo

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Repo is a temporary git repository.
type Repo struct {
	t    *testing.T
	path string
}

// New initialises an empty repository on branch "master" with a
// deterministic identity. The test is skipped when git is not installed.
func New(t *testing.T) *Repo {
	t.Helper()

	_, err := exec.LookPath("git")
	if err != nil {
		t.Skip("git binary not available")
	}

	r := &Repo{t: t, path: t.TempDir()}

	r.Git("init", "--quiet")
	r.Git("symbolic-ref", "HEAD", "refs/heads/master")
	r.Git("config", "user.name", "Test")
	r.Git("config", "user.email", "test@example.com")
	r.Git("config", "commit.gpgsign", "false")

	return r
}

// Path returns the repository root.
func (r *Repo) Path() string { return r.path }

// Git runs a git command in the repository and returns trimmed stdout.
func (r *Repo) Git(args ...string) string {
	r.t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = r.path
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE=2024-01-01T00:00:00Z",
		"GIT_COMMITTER_DATE=2024-01-01T00:00:00Z",
	)

	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}

		r.t.Fatalf("git %v: %v\n%s", args, err, stderr)
	}

	return strings.TrimSpace(string(out))
}

// Write creates or overwrites a file relative to the repository root.
func (r *Repo) Write(name, content string) {
	r.t.Helper()

	p := filepath.Join(r.path, name)

	err := os.MkdirAll(filepath.Dir(p), 0o755)
	if err != nil {
		r.t.Fatalf("MkdirAll: %v", err)
	}

	err = os.WriteFile(p, []byte(content), 0o644)
	if err != nil {
		r.t.Fatalf("WriteFile: %v", err)
	}
}

// Remove deletes a file from the working tree.
func (r *Repo) Remove(name string) {
	r.t.Helper()

	err := os.Remove(filepath.Join(r.path, name))
	if err != nil {
		r.t.Fatalf("Remove: %v", err)
	}
}

// Commit writes each file with content derived from message, stages
// everything and commits. It returns the new HEAD revision.
func (r *Repo) Commit(message string, files ...string) string {
	r.t.Helper()

	for _, f := range files {
		r.Write(f, message+"\n"+f+"\n")
	}

	r.Git("add", "--all")
	r.Git("commit", "--quiet", "--allow-empty", "-m", message)

	return r.Git("rev-parse", "HEAD")
}
