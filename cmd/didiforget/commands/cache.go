package commands

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/didiforget/pkg/historycache"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the history cache",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the cache file and whether it matches the reference branch",
		Args:  cobra.NoArgs,
		RunE:  runCacheStatus,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the cache file",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	})

	return cmd
}

func runCacheStatus(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	cache := s.cache()

	info, err := cache.Stat()
	if errors.Is(err, historycache.ErrNoCache) {
		_, err = fmt.Fprintf(out, "no history cache at %s\n", cache.Path())

		return err
	}

	if err != nil {
		return err
	}

	state := "fresh"

	current, revErr := s.git.RevParse(cmd.Context(), s.cfg.Branch)

	switch {
	case revErr != nil:
		state = "unknown (" + s.cfg.Branch + " does not resolve)"
	case current != info.Fingerprint:
		state = "stale (" + s.cfg.Branch + " is at " + current + ")"
	}

	_, err = fmt.Fprintf(out, "path:        %s\nfingerprint: %s\nsize:        %s\nwritten:     %s\nstate:       %s\n",
		info.Path, info.Fingerprint, humanize.Bytes(uint64(info.Size)), humanize.Time(info.ModTime), state) //nolint:gosec // file sizes are non-negative.

	return err
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	cache := s.cache()

	err = cache.Remove()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cache.Path())

	return err
}
