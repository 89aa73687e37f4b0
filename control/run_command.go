package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AJMSD/raga/download"
	"github.com/AJMSD/raga/download/config"
	"github.com/AJMSD/raga/download/logging"
	"github.com/AJMSD/raga/download/orchestrator"
	"github.com/AJMSD/raga/download/reference"
)

type runOptions struct {
	inputDir string
	dest     string
	market   string
	policy   string
	threads  int
	noTUI    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve the input file and add every track to the library",
		Long: `Reads exactly one of songs.txt, album.txt, playlist.txt or artist.txt from the
input directory, resolves each reference against Spotify, acquires audio with
yt-dlp and places new tracks in the destination. Content already in the
library is never downloaded twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, ctx, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.inputDir, "input-dir", "", "Directory holding the input file")
	flags.StringVar(&opts.dest, "dest", "", "Destination library folder")
	flags.StringVar(&opts.market, "market", "", "Two letter market code for searches")
	flags.StringVar(&opts.policy, "policy", "", "Name search tie-break: top, qualified or similar")
	flags.IntVar(&opts.threads, "threads", 0, "Parallel track acquisitions per album or playlist (1-8)")
	flags.BoolVar(&opts.noTUI, "no-tui", false, "Disable the interactive progress view")
	return cmd
}

// applyRunFlags overlays flags the user actually set.
func applyRunFlags(cmd *cobra.Command, opts *runOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input-dir") {
		cfg.Download.InputDir = opts.inputDir
	}
	if flags.Changed("dest") {
		cfg.Download.Destination = opts.dest
	}
	if flags.Changed("market") {
		cfg.Download.Market = opts.market
	}
	if flags.Changed("policy") {
		cfg.Download.MatchPolicy = opts.policy
	}
	if flags.Changed("threads") {
		cfg.Download.Threads = opts.threads
	}
}

func runCommand(cmd *cobra.Command, c *commandContext, opts *runOptions) error {
	cfg, err := c.loadConfig(false, func(cfg *config.Config) { applyRunFlags(cmd, opts, cfg) })
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()

	input, err := reference.ResolveInput(cfg.Download.InputDir)
	if errors.Is(err, reference.ErrNoInput) {
		return exitWith(ExitNoInput, fmt.Errorf("%w in %s", err, cfg.Download.InputDir))
	}
	if err != nil {
		return exitWith(ExitFilesystem, err)
	}
	if len(input.Shadowed) > 0 {
		fmt.Fprintf(stderr, "Warning: using %s; ignoring %s\n", filepath.Base(input.Path), strings.Join(input.Shadowed, ", "))
	}

	if err := os.MkdirAll(cfg.Download.Destination, 0755); err != nil {
		return exitWith(ExitFilesystem, fmt.Errorf("create destination: %w", err))
	}
	lock, err := lockDestination(cfg.Download.Destination)
	if err != nil {
		return err
	}
	defer lock.Release()

	runDir, logPath, err := CreateRunDir(cfg.UI.LogDir)
	if err != nil {
		return exitWith(ExitFilesystem, err)
	}
	tui := WantTUI(opts.noTUI)
	var alerts chan string
	if tui {
		alerts = make(chan string, 64)
	}
	tee, err := NewLogTeeWriter(logPath, alerts)
	if err != nil {
		return exitWith(ExitFilesystem, fmt.Errorf("open log file: %w", err))
	}
	defer tee.Close()
	var out io.Writer = tee
	if !tui {
		out = io.MultiWriter(tee, stderr)
	}
	restore := RedirectLogToFile(out)
	defer restore()

	log.Printf("INFO: run_start input=%q mode=%s destination=%q policy=%s threads=%d config=%q",
		input.Path, input.Mode, cfg.Download.Destination, cfg.Download.MatchPolicy, cfg.Download.Threads, cfg.Source)

	var observers []orchestrator.Observer
	journal, err := logging.NewLogger(filepath.Join(runDir, eventsLogName), filepath.Base(runDir))
	if err != nil {
		log.Printf("WARN: journal_unavailable error=%v", err)
	} else {
		defer journal.Close()
		observers = append(observers, journalObserver(journal))
	}

	svc, err := download.NewService(cfg)
	if err != nil {
		return exitWith(ExitConfigError, fmt.Errorf("failed to initialize: %w", err))
	}
	defer svc.Close()

	run := func(ctx context.Context, observers ...orchestrator.Observer) (*orchestrator.Summary, error) {
		return svc.Run(ctx, input, observers...)
	}
	var summary *orchestrator.Summary
	var runErr error
	if tui {
		summary, runErr = RunWithTUI(cmd.Context(), logPath, alerts, run, observers...)
	} else {
		summary, runErr = run(cmd.Context(), observers...)
	}

	stats := svc.GetCacheStats()
	logging.Debugf("cache_stats spotify_hits=%d spotify_misses=%d audio_hits=%d audio_misses=%d content_index=%d",
		stats.Spotify.Hits, stats.Spotify.Misses, stats.AudioSearch.Hits, stats.AudioSearch.Misses, stats.ContentIndex)

	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary, logPath)
	}
	return runExit(summary, runErr)
}

// runExit maps a run outcome to an exit code.
func runExit(summary *orchestrator.Summary, runErr error) error {
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return exitWith(ExitInterrupted, errors.New("interrupted"))
	case runErr != nil:
		return exitWith(ExitFilesystem, runErr)
	case summary != nil && !summary.OK():
		return exitWith(ExitPartial, nil)
	}
	return nil
}
