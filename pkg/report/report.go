// Package report ranks co-change candidates per changed file and keeps the
// ones whose confidence clears a threshold.
package report

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/Sumatoshi-tech/didiforget/pkg/coupling"
)

// Normalization selects the denominator of the confidence score.
type Normalization string

const (
	// NormalizeCoupled divides by the coupled file's commit count: of the
	// times the other file changed, how often did it change with mine.
	NormalizeCoupled Normalization = "coupled"
	// NormalizeChanged divides by the changed file's commit count.
	NormalizeChanged Normalization = "changed"
)

// Defaults.
const (
	DefaultThreshold = 0.5
	DefaultTopN      = 1

	// strongConfidence is the summary cut-off for a strong coupling.
	strongConfidence = 0.5
)

// Validation errors.
var (
	ErrInvalidThreshold     = errors.New("threshold must be within [0, 1]")
	ErrInvalidTopN          = errors.New("top-N must be positive")
	ErrInvalidNormalization = errors.New("unknown normalization")
)

// Options configures Generate.
type Options struct {
	Normalization Normalization
	Threshold     float64
	TopN          int
}

// Validate checks the options.
func (o Options) Validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, o.Threshold)
	}

	if o.TopN <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTopN, o.TopN)
	}

	switch o.Normalization {
	case NormalizeCoupled, NormalizeChanged, "":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNormalization, o.Normalization)
	}

	return nil
}

// Record is one report row.
type Record struct {
	Path          string  `json:"path"           yaml:"path"`
	CoupledPath   string  `json:"coupled_path"   yaml:"coupled_path"`
	SharedCommits int     `json:"shared_commits" yaml:"shared_commits"`
	TotalCommits  int     `json:"total_commits"  yaml:"total_commits"`
	Confidence    float64 `json:"confidence"     yaml:"confidence"`
}

// Generate turns the statistics into records. Changed paths appear in
// lexicographic order; within a path, candidates are
// sorted by descending confidence with ties in first-seen order, and at
// most TopN survive. Paths with no surviving candidate are omitted.
func Generate(stats *coupling.Stats, opts Options) ([]Record, error) {
	err := opts.Validate()
	if err != nil {
		return nil, err
	}

	if opts.Normalization == "" {
		opts.Normalization = NormalizeCoupled
	}

	records := []Record{}

	if stats == nil {
		return records, nil
	}

	changed := stats.CoOccurrence.Changed()
	slices.Sort(changed)

	for _, path := range changed {
		candidates := rank(path, stats, opts)
		if len(candidates) > opts.TopN {
			candidates = candidates[:opts.TopN]
		}

		records = append(records, candidates...)
	}

	return records, nil
}

func rank(path string, stats *coupling.Stats, opts Options) []Record {
	var candidates []Record

	for _, pair := range stats.CoOccurrence.Row(path) {
		total := stats.CommitCount[pair.Path]
		if opts.Normalization == NormalizeChanged {
			total = stats.CommitCount[path]
		}

		if total <= 0 {
			continue
		}

		confidence := float64(pair.Count) / float64(total)
		if confidence < opts.Threshold {
			continue
		}

		candidates = append(candidates, Record{
			Path:          path,
			CoupledPath:   pair.Path,
			SharedCommits: pair.Count,
			TotalCommits:  total,
			Confidence:    confidence,
		})
	}

	slices.SortStableFunc(candidates, func(a, b Record) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})

	return candidates
}

// Round rounds a confidence to two decimals for display.
func Round(confidence float64) float64 {
	return math.Round(confidence*100) / 100
}

// Summary aggregates a report.
type Summary struct {
	Records         int     `json:"records"          yaml:"records"`
	ChangedPaths    int     `json:"changed_paths"    yaml:"changed_paths"`
	StrongCouplings int     `json:"strong_couplings" yaml:"strong_couplings"`
	MaxConfidence   float64 `json:"max_confidence"   yaml:"max_confidence"`
	AvgConfidence   float64 `json:"avg_confidence"   yaml:"avg_confidence"`
}

// Summarize computes summary statistics over records.
func Summarize(records []Record) Summary {
	s := Summary{Records: len(records)}
	if len(records) == 0 {
		return s
	}

	paths := make(map[string]struct{})

	var sum float64

	for _, r := range records {
		paths[r.Path] = struct{}{}
		sum += r.Confidence

		if r.Confidence > s.MaxConfidence {
			s.MaxConfidence = r.Confidence
		}

		if r.Confidence >= strongConfidence {
			s.StrongCouplings++
		}
	}

	s.ChangedPaths = len(paths)
	s.AvgConfidence = sum / float64(len(records))

	return s
}
