// Package history turns the name-only git log into a lazy sequence of
// commits, each the set of paths it touched.
package history

import (
	"iter"
)

// Commit is the group of paths touched by one historical revision.
// Revision ids are not retained.
type Commit struct {
	Paths []string
}

// Filter yields the lines of seq for which keep returns true. Empty lines
// are commit delimiters and always pass.
func Filter(seq iter.Seq2[string, error], keep func(string) bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for line, err := range seq {
			if err != nil {
				yield("", err)

				return
			}

			if line != "" && !keep(line) {
				continue
			}

			if !yield(line, nil) {
				return
			}
		}
	}
}

// GroupByCommit groups consecutive non-empty lines into commits. An empty
// line closes the current group; groups with no paths are never yielded.
// A trailing group that is not followed by an empty line is still yielded.
// An upstream error is yielded as is and the pending group is dropped.
func GroupByCommit(seq iter.Seq2[string, error]) iter.Seq2[Commit, error] {
	return func(yield func(Commit, error) bool) {
		var paths []string

		for line, err := range seq {
			if err != nil {
				yield(Commit{}, err)

				return
			}

			if line != "" {
				paths = append(paths, line)

				continue
			}

			if len(paths) == 0 {
				continue
			}

			if !yield(Commit{Paths: paths}, nil) {
				return
			}

			paths = nil
		}

		if len(paths) > 0 {
			yield(Commit{Paths: paths}, nil)
		}
	}
}

// Commits filters raw log lines through f and groups them into commits.
func Commits(seq iter.Seq2[string, error], f *PathFilter) iter.Seq2[Commit, error] {
	return GroupByCommit(Filter(seq, f.Keep))
}
