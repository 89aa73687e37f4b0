package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AJMSD/raga/download"
	"github.com/AJMSD/raga/download/config"
	"github.com/AJMSD/raga/download/history"
	"github.com/AJMSD/raga/download/maintenance"
)

// destFlag registers --dest and returns an override applying it.
func destFlag(cmd *cobra.Command) func(*config.Config) {
	var dest string
	cmd.Flags().StringVar(&dest, "dest", "", "Destination library folder")
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("dest") {
			cfg.Download.Destination = dest
		}
	}
}

// openLocked loads a credential-free config, locks the destination and opens
// it without providers. release undoes both.
func openLocked(c *commandContext, override func(*config.Config)) (svc *download.Service, release func(), err error) {
	cfg, err := c.loadConfig(true, override)
	if err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(cfg.Download.Destination); err != nil {
		return nil, nil, exitWith(ExitFilesystem, fmt.Errorf("destination: %w", err))
	}
	lock, err := lockDestination(cfg.Download.Destination)
	if err != nil {
		return nil, nil, err
	}
	svc, err = download.OpenLibrary(cfg)
	if err != nil {
		lock.Release()
		return nil, nil, exitWith(ExitFilesystem, err)
	}
	return svc, func() {
		svc.Close()
		lock.Release()
	}, nil
}

func newPruneCommand(c *commandContext) *cobra.Command {
	var opts maintenance.Options
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Tidy the destination and drop stale cache entries",
		Long: `Renames album_art.* to cover.*, removes audio files by the given artists
(matched on ID3 artist tags, then file and folder names), deletes empty or
cover-only folders and prunes hash cache entries for files that are gone.`,
		Args: cobra.NoArgs,
	}
	override := destFlag(cmd)
	cmd.Flags().StringArrayVar(&opts.Artists, "artist", nil, "Remove files by this artist (repeatable)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would change without touching anything")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		svc, release, err := openLocked(c, override)
		if err != nil {
			return err
		}
		defer release()

		report, err := svc.Prune(cmd.Context(), opts)
		if report != nil {
			printPruneReport(cmd.OutOrStdout(), report)
		}
		if err != nil {
			if errors.Is(err, cmd.Context().Err()) {
				return exitWith(ExitInterrupted, err)
			}
			return exitWith(ExitFilesystem, err)
		}
		if len(report.Errors) > 0 {
			return exitWith(ExitPartial, nil)
		}
		return nil
	}
	return cmd
}

func newRebuildCacheCommand(c *commandContext) *cobra.Command {
	var incremental bool
	cmd := &cobra.Command{
		Use:   "rebuild-cache",
		Short: "Rehash every audio file under the destination",
		Args:  cobra.NoArgs,
	}
	override := destFlag(cmd)
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Reuse entries whose size and modification time are unchanged")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		svc, release, err := openLocked(c, override)
		if err != nil {
			return err
		}
		defer release()

		stats, err := svc.RebuildCache(cmd.Context(), !incremental)
		if err != nil {
			if errors.Is(err, cmd.Context().Err()) {
				return exitWith(ExitInterrupted, err)
			}
			return exitWith(ExitFilesystem, err)
		}
		printCacheStats(cmd.OutOrStdout(), svc.Config().Download.Destination, stats)
		return nil
	}
	return cmd
}

func newHistoryCommand(c *commandContext) *cobra.Command {
	var limit int
	var runID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs, or the references of one run",
		Args:  cobra.NoArgs,
	}
	override := destFlag(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the references of this run (ID or unique prefix)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := c.loadConfig(true, override)
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfg.UI.HistoryPath); err != nil {
			return exitWith(ExitFilesystem, fmt.Errorf("no history at %s: %w", cfg.UI.HistoryPath, err))
		}
		store, err := history.Open(cfg.UI.HistoryPath)
		if err != nil {
			return exitWith(ExitFilesystem, err)
		}
		defer store.Close()

		ctx := cmd.Context()
		if runID == "" {
			runs, err := store.Runs(ctx, limit)
			if err != nil {
				return exitWith(ExitFilesystem, err)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		}

		id, err := store.FindRun(ctx, runID)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		units, err := store.Units(ctx, id)
		if err != nil {
			return exitWith(ExitFilesystem, err)
		}
		printUnits(cmd.OutOrStdout(), units)
		return nil
	}
	return cmd
}
