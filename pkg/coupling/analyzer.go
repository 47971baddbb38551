// Package coupling accumulates per-file commit counts and co-occurrence
// counts between changed files and every other file in the same commit.
package coupling

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/didiforget/pkg/changeset"
	"github.com/Sumatoshi-tech/didiforget/pkg/history"
)

// DefaultProgressInterval is how many commits pass between progress records.
const DefaultProgressInterval = 1000

// Options configures an Analyzer.
type Options struct {
	// Logger receives progress records. Nil discards them.
	Logger *slog.Logger
	// ProgressInterval is the number of commits between progress records.
	// Zero uses DefaultProgressInterval.
	ProgressInterval int
	// MaxCommitSize skips commits touching more distinct paths than this.
	// Zero disables the limit.
	MaxCommitSize int
}

// Stats is the finished aggregate of one analysis run.
type Stats struct {
	// CommitCount maps every path seen to the number of commits touching it.
	CommitCount map[string]int
	// CoOccurrence maps changed paths to co-changed paths.
	CoOccurrence *CoOccurrence
	// Commits is the number of commits consumed.
	Commits int
	// Skipped is the number of commits dropped by MaxCommitSize.
	Skipped int
}

// Analyzer consumes a commit sequence once.
type Analyzer struct {
	logger           *slog.Logger
	progressInterval int
	maxCommitSize    int
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts Options) *Analyzer {
	a := &Analyzer{
		logger:           opts.Logger,
		progressInterval: opts.ProgressInterval,
		maxCommitSize:    opts.MaxCommitSize,
	}

	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}

	if a.progressInterval <= 0 {
		a.progressInterval = DefaultProgressInterval
	}

	return a
}

// Analyze streams commits and returns the complete statistics. It returns
// an error, and no partial statistics, if the sequence fails or ctx is
// cancelled.
func (a *Analyzer) Analyze(
	ctx context.Context, commits iter.Seq2[history.Commit, error], changed *changeset.Set,
) (*Stats, error) {
	stats := &Stats{
		CommitCount:  make(map[string]int),
		CoOccurrence: NewCoOccurrence(),
	}

	var (
		inChanged []string
		others    []string
		seen      = make(map[string]struct{})
	)

	for commit, err := range commits {
		if err != nil {
			return nil, fmt.Errorf("read commit history: %w", err)
		}

		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, ctxErr
		}

		stats.Commits++

		inChanged, others = partition(commit.Paths, changed, seen, inChanged[:0], others[:0])

		if a.maxCommitSize > 0 && len(inChanged)+len(others) > a.maxCommitSize {
			stats.Skipped++

			continue
		}

		for _, p := range inChanged {
			stats.CommitCount[p]++
		}

		for _, p := range others {
			stats.CommitCount[p]++
		}

		for _, c := range inChanged {
			for _, o := range others {
				stats.CoOccurrence.Add(c, o)
			}
		}

		if stats.Commits%a.progressInterval == 0 {
			a.logger.DebugContext(ctx, "analysing history", "commits", humanize.Comma(int64(stats.Commits)))
		}
	}

	a.logger.InfoContext(ctx, "history analysed",
		"commits", humanize.Comma(int64(stats.Commits)),
		"skipped", stats.Skipped,
		"paths", humanize.Comma(int64(len(stats.CommitCount))),
		"pairs", humanize.Comma(int64(stats.CoOccurrence.Len())))

	return stats, nil
}

// partition splits paths into changed-set members and the rest, dropping
// duplicates within the commit. seen is reset before returning.
func partition(
	paths []string, changed *changeset.Set, seen map[string]struct{}, inChanged, others []string,
) ([]string, []string) {
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}

		seen[p] = struct{}{}

		if changed.Contains(p) {
			inChanged = append(inChanged, p)
		} else {
			others = append(others, p)
		}
	}

	clear(seen)

	return inChanged, others
}
