// Package changeset holds the set of paths touched by the change under
// review and resolves it from git.
package changeset

import (
	"context"
	"fmt"
	"slices"
)

// Set is an immutable, sorted set of repository-relative paths.
type Set struct {
	index map[string]struct{}
	paths []string
}

// New builds a Set from paths, dropping empty entries and duplicates.
func New(paths ...string) *Set {
	s := &Set{index: make(map[string]struct{}, len(paths))}

	for _, p := range paths {
		if p == "" {
			continue
		}

		if _, dup := s.index[p]; dup {
			continue
		}

		s.index[p] = struct{}{}
		s.paths = append(s.paths, p)
	}

	slices.Sort(s.paths)

	return s
}

// Contains reports whether path is in the set.
func (s *Set) Contains(path string) bool {
	if s == nil {
		return false
	}

	_, ok := s.index[path]

	return ok
}

// Paths returns the members in lexicographic order. The slice is a copy.
func (s *Set) Paths() []string {
	if s == nil {
		return nil
	}

	return slices.Clone(s.paths)
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.paths)
}

// Differ lists paths that differ for a git revision spec.
type Differ interface {
	DiffNameOnly(ctx context.Context, revspec string) ([]string, error)
}

// Resolve returns the union of paths changed on the current branch since
// it forked from ref and paths with uncommitted changes against HEAD.
func Resolve(ctx context.Context, d Differ, ref string) (*Set, error) {
	branch, err := d.DiffNameOnly(ctx, ref+"...")
	if err != nil {
		return nil, fmt.Errorf("diff against %s: %w", ref, err)
	}

	local, err := d.DiffNameOnly(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("diff working tree: %w", err)
	}

	return New(append(branch, local...)...), nil
}
