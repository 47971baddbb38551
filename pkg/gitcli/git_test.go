package gitcli_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/didiforget/internal/testrepo"
	"github.com/Sumatoshi-tech/didiforget/pkg/gitcli"
	"github.com/Sumatoshi-tech/didiforget/pkg/linestream"
)

func TestRevParse(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	head := repo.Commit("init", "a.txt")

	g := gitcli.New(repo.Path())

	rev, err := g.RevParse(context.Background(), "master")
	require.NoError(t, err)
	assert.Equal(t, head, rev)
}

func TestTopLevel_FromSubdirectory(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	repo.Commit("init", "sub/a.txt")

	top, err := gitcli.New(filepath.Join(repo.Path(), "sub")).TopLevel(context.Background())
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(repo.Path())
	require.NoError(t, err)

	got, err := filepath.EvalSymlinks(top)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRevParse_UnknownRef(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	repo.Commit("init", "a.txt")

	g := gitcli.New(repo.Path())

	_, err := g.RevParse(context.Background(), "origin/does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, gitcli.ErrInvocation)

	var invErr *gitcli.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.NotZero(t, invErr.ExitCode)
	assert.Contains(t, invErr.Error(), "rev-parse")
}

func TestDiffNameOnly(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	repo.Commit("init", "a.txt", "b.txt")
	repo.Git("branch", "base")
	repo.Commit("change a", "a.txt")
	repo.Write("c.txt", "uncommitted\n")
	repo.Git("add", "c.txt")
	repo.Write("b.txt", "dirty\n")

	g := gitcli.New(repo.Path())
	ctx := context.Background()

	committed, err := g.DiffNameOnly(ctx, "base...")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, committed)

	dirty, err := g.DiffNameOnly(ctx, "HEAD")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b.txt", "c.txt"}, dirty)
}

func TestLogNameOnly(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	repo.Commit("one", "a.txt", "b.txt")
	repo.Commit("two", "b.txt")

	g := gitcli.New(repo.Path())

	lines, err := linestream.Collect(g.LogNameOnly(context.Background(), "master"))
	require.NoError(t, err)

	var paths []string

	for _, l := range lines {
		if l != "" {
			paths = append(paths, l)
		}
	}

	assert.Equal(t, []string{"b.txt", "a.txt", "b.txt"}, paths)
}

func TestLogNameOnly_FailsOnBadRef(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	repo.Commit("one", "a.txt")

	g := gitcli.New(repo.Path())

	_, err := linestream.Collect(g.LogNameOnly(context.Background(), "no-such-branch"))
	require.Error(t, err)
	assert.ErrorIs(t, err, gitcli.ErrInvocation)
}

func TestStream_EarlyStopKillsProcess(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	for _, msg := range []string{"one", "two", "three"} {
		repo.Commit(msg, msg+".txt")
	}

	g := gitcli.New(repo.Path())

	count := 0

	for _, err := range g.LogNameOnly(context.Background(), "master") {
		require.NoError(t, err)

		count++

		break
	}

	assert.Equal(t, 1, count)
}

func TestStream_MissingBinary(t *testing.T) {
	t.Parallel()

	g := gitcli.New(t.TempDir(), gitcli.WithBinary("git-binary-that-does-not-exist"))

	_, err := linestream.Collect(g.Stream(context.Background(), "status"))
	require.Error(t, err)
	assert.ErrorIs(t, err, gitcli.ErrInvocation)

	var invErr *gitcli.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, -1, invErr.ExitCode)
}

func TestInvocationError_Message(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 128")
	err := &gitcli.InvocationError{
		Args:     []string{"rev-parse", "origin/master"},
		ExitCode: 128,
		Stderr:   "fatal: bad revision\n",
		Err:      cause,
	}

	assert.Equal(t, "git rev-parse origin/master: exit status 128: fatal: bad revision", err.Error())
	assert.ErrorIs(t, err, gitcli.ErrInvocation)
	assert.ErrorIs(t, err, cause)
}
