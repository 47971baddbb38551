package analysis_test

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/didiforget/internal/analysis"
	"github.com/Sumatoshi-tech/didiforget/internal/observability"
	"github.com/Sumatoshi-tech/didiforget/internal/testrepo"
	"github.com/Sumatoshi-tech/didiforget/pkg/gitcli"
	"github.com/Sumatoshi-tech/didiforget/pkg/historycache"
	"github.com/Sumatoshi-tech/didiforget/pkg/report"
)

const branch = "base"

var defaultReport = report.Options{Threshold: report.DefaultThreshold, TopN: report.DefaultTopN}

// scenarioRepo builds history {A,B} {A,B} {A,C} {B,C} on branch base and
// leaves A.txt modified in the working tree.
func scenarioRepo(t *testing.T) *testrepo.Repo {
	t.Helper()

	repo := testrepo.New(t)
	repo.Commit("one", "A.txt", "B.txt")
	repo.Commit("two", "A.txt", "B.txt")
	repo.Commit("three", "A.txt", "C.txt")
	repo.Commit("four", "B.txt", "C.txt")
	repo.Git("branch", branch)
	repo.Write("A.txt", "edited\n")

	return repo
}

func TestRun_Scenario(t *testing.T) {
	t.Parallel()

	repo := scenarioRepo(t)

	res, err := analysis.New(gitcli.New(repo.Path())).Run(context.Background(), analysis.Request{
		Branch: branch,
		Report: defaultReport,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A.txt"}, res.Changed.Paths())
	assert.False(t, res.CacheUsed)
	require.Len(t, res.Records, 1)

	r := res.Records[0]
	assert.Equal(t, "A.txt", r.Path)
	assert.Equal(t, "B.txt", r.CoupledPath)
	assert.Equal(t, 2, r.SharedCommits)
	assert.Equal(t, 3, r.TotalCommits)
	assert.InDelta(t, 2.0/3.0, r.Confidence, 1e-9)
	assert.Equal(t, 4, res.Stats.Commits)
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()

	repo := scenarioRepo(t)
	runner := analysis.New(gitcli.New(repo.Path()))
	req := analysis.Request{Branch: branch, Report: report.Options{Threshold: 0, TopN: 5}}

	first, err := runner.Run(context.Background(), req)
	require.NoError(t, err)

	second, err := runner.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
}

func TestRun_DeletedFilesAreIgnored(t *testing.T) {
	t.Parallel()

	repo := scenarioRepo(t)
	repo.Remove("B.txt")
	repo.Commit("drop B", "C.txt")
	repo.Git("branch", "-f", branch)
	repo.Write("A.txt", "edited again\n")

	res, err := analysis.New(gitcli.New(repo.Path())).Run(context.Background(), analysis.Request{
		Branch: branch,
		Report: report.Options{Threshold: 0, TopN: 5},
	})
	require.NoError(t, err)

	for _, r := range res.Records {
		assert.NotEqual(t, "B.txt", r.CoupledPath)
	}
}

func TestRun_QuotedPathsAreCoupled(t *testing.T) {
	t.Parallel()

	quoted := `say "hi".txt`

	repo := testrepo.New(t)
	repo.Commit("one", "A.txt", quoted)
	repo.Commit("two", "A.txt", quoted)
	repo.Git("branch", branch)
	repo.Write("A.txt", "edited\n")

	cache := historycache.New(filepath.Join(t.TempDir(), "history"), historycache.WithTempDir(t.TempDir()))
	runner := analysis.New(gitcli.New(repo.Path()))
	req := analysis.Request{Branch: branch, Report: defaultReport, Cache: cache}

	for _, wantHit := range []bool{false, true} {
		res, err := runner.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, wantHit, res.CacheHit)

		require.Len(t, res.Records, 1)
		assert.Equal(t, quoted, res.Records[0].CoupledPath)
		assert.Equal(t, 2, res.Records[0].SharedCommits)
		assert.InDelta(t, 1.0, res.Records[0].Confidence, 1e-9)
	}
}

func TestRun_QuotedChangedPath(t *testing.T) {
	t.Parallel()

	tabbed := "tab\there.txt"

	repo := testrepo.New(t)
	repo.Commit("one", tabbed, "B.txt")
	repo.Git("branch", branch)
	repo.Write(tabbed, "edited\n")

	res, err := analysis.New(gitcli.New(repo.Path())).Run(context.Background(), analysis.Request{
		Branch: branch,
		Report: defaultReport,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{tabbed}, res.Changed.Paths())
	require.Len(t, res.Records, 1)
	assert.Equal(t, tabbed, res.Records[0].Path)
	assert.Equal(t, "B.txt", res.Records[0].CoupledPath)
}

func TestRun_CacheRoundTrip(t *testing.T) {
	t.Parallel()

	repo := scenarioRepo(t)
	cache := historycache.New(filepath.Join(t.TempDir(), "history"), historycache.WithTempDir(t.TempDir()))
	runner := analysis.New(gitcli.New(repo.Path()))
	req := analysis.Request{Branch: branch, Report: defaultReport, Cache: cache}

	cold, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cold.CacheUsed)
	assert.False(t, cold.CacheHit)
	require.NoError(t, cold.CacheWriteErr)

	info, err := cache.Stat()
	require.NoError(t, err)
	assert.Equal(t, repo.Git("rev-parse", branch), info.Fingerprint)

	warm, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, warm.CacheHit)
	assert.False(t, warm.Restarted)
	assert.Equal(t, cold.Records, warm.Records)
	assert.Equal(t, cold.Stats.CommitCount, warm.Stats.CommitCount)
}

func TestRun_StaleCacheIsRebuilt(t *testing.T) {
	t.Parallel()

	repo := scenarioRepo(t)
	cache := historycache.New(filepath.Join(t.TempDir(), "history"), historycache.WithTempDir(t.TempDir()))
	runner := analysis.New(gitcli.New(repo.Path()))
	req := analysis.Request{Branch: branch, Report: defaultReport, Cache: cache}

	_, err := runner.Run(context.Background(), req)
	require.NoError(t, err)

	repo.Git("checkout", "--", "A.txt")
	repo.Commit("five", "A.txt", "C.txt")
	repo.Commit("six", "A.txt", "C.txt")
	repo.Git("branch", "-f", branch)
	repo.Write("A.txt", "edited\n")

	res, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "C.txt", res.Records[0].CoupledPath)

	info, err := cache.Stat()
	require.NoError(t, err)
	assert.Equal(t, repo.Git("rev-parse", branch), info.Fingerprint)
}

func TestRun_CorruptReplayRestartsLive(t *testing.T) {
	t.Parallel()

	repo := scenarioRepo(t)
	path := filepath.Join(t.TempDir(), "history")

	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(repo.Git("rev-parse", branch) + "\n\nA.txt\nZ.txt\n\nA.txt\nZ.txt\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	data := buf.Bytes()
	require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0o600))

	cache := historycache.New(path, historycache.WithTempDir(t.TempDir()))

	res, err := analysis.New(gitcli.New(repo.Path())).Run(context.Background(), analysis.Request{
		Branch: branch, Report: defaultReport, Cache: cache,
	})
	require.NoError(t, err)

	assert.True(t, res.Restarted)
	assert.False(t, res.CacheHit)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "B.txt", res.Records[0].CoupledPath)

	_, err = cache.Stat()
	assert.NoError(t, err, "cache is rebuilt by the live pass")
}

func TestRun_UnknownBranchIsFatal(t *testing.T) {
	t.Parallel()

	repo := scenarioRepo(t)
	path := filepath.Join(t.TempDir(), "history")

	_, err := analysis.New(gitcli.New(repo.Path())).Run(context.Background(), analysis.Request{
		Branch: "origin/missing", Report: defaultReport, Cache: historycache.New(path),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gitcli.ErrInvocation)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

// panicRepo fails the test on any git access.
type panicRepo struct{ t *testing.T }

func (p panicRepo) DiffNameOnly(context.Context, string) ([]string, error) {
	p.t.Fatal("git invoked")

	return nil, nil
}

func (p panicRepo) TopLevel(context.Context) (string, error) {
	p.t.Fatal("git invoked")

	return "", nil
}

func (p panicRepo) RevParse(context.Context, string) (string, error) {
	p.t.Fatal("git invoked")

	return "", nil
}

func (p panicRepo) LogNameOnly(context.Context, string) iter.Seq2[string, error] {
	p.t.Fatal("git invoked")

	return nil
}

func TestRun_InvalidOptionsFailBeforeGit(t *testing.T) {
	t.Parallel()

	_, err := analysis.New(panicRepo{t}).Run(context.Background(), analysis.Request{
		Branch: branch, Report: report.Options{Threshold: 2, TopN: 1},
	})
	assert.ErrorIs(t, err, report.ErrInvalidThreshold)
}

// cleanRepo reports no changes and fails on any history access.
type cleanRepo struct{ panicRepo }

func (cleanRepo) DiffNameOnly(context.Context, string) ([]string, error) { return nil, nil }

func TestRun_NoChangesSkipsHistory(t *testing.T) {
	t.Parallel()

	res, err := analysis.New(cleanRepo{panicRepo{t}}).Run(context.Background(), analysis.Request{
		Branch: branch, Report: defaultReport,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changed.Len())
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
}

func TestRun_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewAnalysisMetrics(mp.Meter("test"))
	require.NoError(t, err)

	repo := scenarioRepo(t)

	_, err = analysis.New(gitcli.New(repo.Path()), analysis.WithMetrics(metrics)).
		Run(context.Background(), analysis.Request{Branch: branch, Report: defaultReport})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var names []string

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}

	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "didiforget.analysis.commits.total")
	assert.Contains(t, joined, "didiforget.report.records.total")
	assert.NotContains(t, joined, "didiforget.cache.hits.total")
}
