// Package commands implements the didiforget CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/didiforget/internal/analysis"
	"github.com/Sumatoshi-tech/didiforget/internal/config"
	"github.com/Sumatoshi-tech/didiforget/internal/observability"
	"github.com/Sumatoshi-tech/didiforget/internal/render"
	"github.com/Sumatoshi-tech/didiforget/pkg/gitcli"
	"github.com/Sumatoshi-tech/didiforget/pkg/historycache"
	"github.com/Sumatoshi-tech/didiforget/pkg/version"
)

const longHelp = `didiforget looks at the files changed on the current branch and in the
working tree, and reports files that historically changed together with
them but are not part of the change.

Confidence is the share of the coupled file's commits that also touched
the changed file.`

// NewRootCommand builds the command tree. The root command runs the
// analysis.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "didiforget",
		Short:         "Find files you may have forgotten to change",
		Long:          longHelp,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAnalyze,
	}

	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newCacheCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// session is the per-invocation environment shared by all commands.
type session struct {
	cfg       *config.Config
	providers observability.Providers
	git       *gitcli.Git
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.LogOutput = cmd.ErrOrStderr()
	obsCfg.LogLevel = cfg.LogLevel()
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.MetricsTextfile = cfg.Telemetry.MetricsTextfile

	providers, err := observability.Init(cmd.Context(), obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &session{
		cfg:       cfg,
		providers: providers,
		git:       gitcli.New(cfg.Repo, gitcli.WithLogger(providers.Logger)),
	}, nil
}

// close flushes telemetry. A failed flush is logged, never returned.
func (s *session) close() {
	err := s.providers.Shutdown(context.Background())
	if err != nil {
		s.providers.Logger.Warn("telemetry shutdown", "error", err)
	}
}

func (s *session) cache() *historycache.Cache {
	return historycache.New(s.cfg.Cache.File,
		historycache.WithTempDir(s.cfg.Cache.TempDir),
		historycache.WithCompressionLevel(s.cfg.Cache.Level),
		historycache.WithLogger(s.providers.Logger),
	)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	req := analysis.Request{
		Branch:        s.cfg.Branch,
		Report:        s.cfg.ReportOptions(),
		MaxCommitSize: s.cfg.MaxCommitSize,

		ExistenceCacheSize: s.cfg.Tuning.ExistenceCacheSize,
	}

	if s.cfg.Cache.Enabled {
		req.Cache = s.cache()
	}

	runner := analysis.New(s.git,
		analysis.WithLogger(s.providers.Logger),
		analysis.WithTracer(s.providers.Tracer),
		analysis.WithMetrics(s.providers.Metrics),
		analysis.WithProgressInterval(s.cfg.Tuning.ProgressInterval),
	)

	res, err := runner.Run(cmd.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted: %w", err)
		}

		return err
	}

	return render.Render(cmd.OutOrStdout(), res.Records, s.cfg.RenderOptions())
}
