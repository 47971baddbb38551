package changeset_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/didiforget/internal/testrepo"
	"github.com/Sumatoshi-tech/didiforget/pkg/changeset"
	"github.com/Sumatoshi-tech/didiforget/pkg/gitcli"
)

type fakeDiffer struct {
	results map[string][]string
	errs    map[string]error
	calls   []string
}

func (f *fakeDiffer) DiffNameOnly(_ context.Context, revspec string) ([]string, error) {
	f.calls = append(f.calls, revspec)

	if err := f.errs[revspec]; err != nil {
		return nil, err
	}

	return f.results[revspec], nil
}

func TestNew_DedupesAndDropsEmpty(t *testing.T) {
	t.Parallel()

	s := changeset.New("b.txt", "", "a.txt", "b.txt")

	assert.Equal(t, []string{"a.txt", "b.txt"}, s.Paths())
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a.txt"))
	assert.False(t, s.Contains(""))
	assert.False(t, s.Contains("c.txt"))
}

func TestSet_PathsIsACopy(t *testing.T) {
	t.Parallel()

	s := changeset.New("a.txt")
	paths := s.Paths()
	paths[0] = "mutated"

	assert.Equal(t, []string{"a.txt"}, s.Paths())
}

func TestSet_NilIsEmpty(t *testing.T) {
	t.Parallel()

	var s *changeset.Set

	assert.Zero(t, s.Len())
	assert.False(t, s.Contains("a.txt"))
	assert.Nil(t, s.Paths())
}

func TestResolve_UnionsBranchAndWorkingTree(t *testing.T) {
	t.Parallel()

	d := &fakeDiffer{results: map[string][]string{
		"origin/master...": {"a.txt", "b.txt"},
		"HEAD":             {"b.txt", "c.txt", ""},
	}}

	s, err := changeset.Resolve(context.Background(), d, "origin/master")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, s.Paths())
	assert.Equal(t, []string{"origin/master...", "HEAD"}, d.calls)
}

func TestResolve_PropagatesFailure(t *testing.T) {
	t.Parallel()

	errGit := &gitcli.InvocationError{Args: []string{"diff"}, ExitCode: 128, Err: errors.New("exit status 128")}

	tests := []struct {
		name string
		errs map[string]error
	}{
		{name: "branch diff", errs: map[string]error{"main...": errGit}},
		{name: "working tree diff", errs: map[string]error{"HEAD": errGit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &fakeDiffer{errs: tt.errs}

			s, err := changeset.Resolve(context.Background(), d, "main")
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, gitcli.ErrInvocation)
		})
	}
}

func TestResolve_Git(t *testing.T) {
	t.Parallel()

	repo := testrepo.New(t)
	repo.Commit("init", "a.txt", "b.txt", "c.txt")
	repo.Git("branch", "base")
	repo.Commit("feature", "a.txt")
	repo.Write("b.txt", "dirty\n")
	repo.Remove("c.txt")

	s, err := changeset.Resolve(context.Background(), gitcli.New(repo.Path()), "base")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, s.Paths())
}
