// cmd.go wires the siteaudit CLI's cobra command tree. The signal-handling
// and graceful-shutdown shape in runAudit is adapted from the teacher
// crawler's cmd/crawler/main.go: a cancellable context, SIGINT/SIGTERM
// caught via os/signal, and a bounded grace period before a forced exit.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cametumbling/siteaudit/internal/audit"
	"github.com/cametumbling/siteaudit/internal/canonical"
	"github.com/cametumbling/siteaudit/internal/config"
	"github.com/cametumbling/siteaudit/internal/crawler"
	"github.com/cametumbling/siteaudit/internal/extractor"
	"github.com/cametumbling/siteaudit/internal/httpclient"
	"github.com/cametumbling/siteaudit/internal/metrics"
	"github.com/cametumbling/siteaudit/internal/pagedata"
	"github.com/cametumbling/siteaudit/internal/statestore"
)

// usageError marks a problem with the invocation itself (exit code 1) as
// opposed to an operational failure during a run (exit code 2).
type usageError struct{ error }

func exitCodeFor(err error) int {
	if _, ok := err.(usageError); ok {
		return 1
	}
	return 2
}

var configPath string

func newRootCmd(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "siteaudit",
		Short:         "Crawl and audit a single web domain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newAuditCmd(logger),
		newListCmd(),
		newStatsCmd(),
		newCleanupCmd(),
		newMigrateCmd(),
		newMigrateAllCmd(),
	)
	// Wrong argument counts and bad flags are invocation problems (exit 1).
	for _, c := range root.Commands() {
		if validate := c.Args; validate != nil {
			c.Args = func(cmd *cobra.Command, args []string) error {
				if err := validate(cmd, args); err != nil {
					return usageError{err}
				}
				return nil
			}
		}
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	return root
}

func loadConfig() (config.Options, error) {
	opts, err := config.Load(configPath)
	if err != nil {
		return opts, usageError{err}
	}
	return opts, nil
}

func newAuditCmd(logger *zap.Logger) *cobra.Command {
	var (
		maxPages    int
		workers     int
		forceNew    bool
		probeLinks  bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Crawl a domain, creating a new audit or resuming the latest in-progress one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadConfig()
			if err != nil {
				return err
			}
			if maxPages != 0 {
				opts.MaxInternalLinks = maxPages
			}
			if workers > 0 {
				opts.Workers = workers
			}
			if probeLinks {
				opts.ProbeExternalLinks = true
			}
			if metricsAddr != "" {
				opts.MetricsAddr = metricsAddr
			}
			return runAudit(cmd.Context(), logger, args[0], opts, forceNew)
		},
	}

	cmd.Flags().IntVar(&maxPages, "max", 0, "maximum internal pages to visit (0 = keep the config file's maxInternalLinks, unlimited by default; a zero budget that disables fetching can only be set there)")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent fetch workers (0 = use config default)")
	cmd.Flags().BoolVar(&forceNew, "new", false, "start a fresh audit even if one is already in progress")
	cmd.Flags().BoolVar(&probeLinks, "probe-external", false, "probe external links for liveness")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (empty disables)")
	return cmd
}

func runAudit(ctx context.Context, logger *zap.Logger, rawURL string, opts config.Options, forceNew bool) error {
	seed, ok := canonical.Canonicalize(rawURL, nil)
	if !ok {
		return usageError{fmt.Errorf("invalid seed url %q", rawURL)}
	}
	parsed, err := url.Parse(seed)
	if err != nil || parsed.Host == "" {
		return usageError{fmt.Errorf("invalid seed url %q", rawURL)}
	}

	mgr := audit.New(opts.AuditsRoot)
	handle, state, err := mgr.CreateOrResume(parsed.Host, forceNew)
	if err != nil {
		return fmt.Errorf("creating or resuming audit: %w", err)
	}
	if len(state.Queue) == 0 && len(state.Visited) == 0 {
		state.Queue[seed] = true
	}

	httpClient := httpclient.New(httpclient.Config{
		Timeout:     time.Duration(opts.Timeout),
		UserAgent:   opts.UserAgent,
		MaxBodySize: opts.MaxBodySize,
		RateLimit:   time.Duration(opts.RateLimit),
	})

	var collector *metrics.Collector
	if opts.MetricsAddr != "" {
		collector = metrics.New(handle.AuditID)
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: collector.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	} else {
		collector = metrics.NewNop()
	}

	engine, err := crawler.New(crawler.Options{
		SeedURL:            seed,
		Workers:            opts.Workers,
		MaxInternalLinks:   opts.MaxInternalLinks,
		CheckpointEvery:    opts.CheckpointInterval,
		ProbeExternalLinks: opts.ProbeExternalLinks,
		ProbeWorkers:       opts.ProbeWorkers,
		Fetcher:            httpClient,
		Prober:             httpClient,
		Pipeline:           extractor.NewDefaultPipeline(),
		PageStore:          handle.PageStore,
		StatePath:          handle.StatePath,
		Logger:             logger,
		Metrics:            collector,
	}, state)
	if err != nil {
		return usageError{fmt.Errorf("configuring engine: %w", err)}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	type runResult struct {
		reason crawler.TerminationReason
		err    error
	}
	doneCh := make(chan runResult, 1)
	go func() {
		reason, err := engine.Run(runCtx)
		doneCh <- runResult{reason, err}
	}()

	var result runResult
	select {
	case result = <-doneCh:
	case sig := <-sigCh:
		logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
		cancel()
		select {
		case result = <-doneCh:
		case <-time.After(5 * time.Second):
			logger.Warn("shutdown timeout exceeded, forcing exit")
			mgr.Fail(handle, "shutdown timeout exceeded")
			return fmt.Errorf("forced exit after shutdown timeout")
		}
	}

	if result.err != nil {
		mgr.Fail(handle, result.err.Error())
		return fmt.Errorf("running crawl: %w", result.err)
	}

	if result.reason == crawler.Cancelled {
		logger.Info("audit paused; resume with the same command", zap.String("auditId", handle.AuditID))
		return nil
	}

	if err := mgr.Complete(handle); err != nil {
		return fmt.Errorf("marking audit complete: %w", err)
	}
	logger.Info("audit complete",
		zap.String("auditId", handle.AuditID),
		zap.String("reason", result.reason.String()),
		zap.Int("pagesVisited", len(engine.State().Visited)),
	)
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <host>",
		Short: "List every audit recorded for a domain, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadConfig()
			if err != nil {
				return err
			}
			mgr := audit.New(opts.AuditsRoot)
			summaries, err := mgr.List(args[0])
			if err != nil {
				return fmt.Errorf("listing audits: %w", err)
			}
			for _, s := range summaries {
				fmt.Printf("%s\t%s\tpages=%d\tinternal=%d\texternal=%d\n",
					s.AuditID, s.Status, s.PageCount, s.InternalLink, s.ExternalLink)
			}
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <host>",
		Short: "Summarize a domain's audit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadConfig()
			if err != nil {
				return err
			}
			mgr := audit.New(opts.AuditsRoot)
			st, err := mgr.Stats(args[0])
			if err != nil {
				return fmt.Errorf("computing stats: %w", err)
			}
			fmt.Printf("audits: %d  completed: %d  failed: %d  avgPages: %.1f\n",
				st.AuditCount, st.CompletedCount, st.FailedCount, st.AveragePages)
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	keep := 10
	cmd := &cobra.Command{
		Use:   "cleanup <host>",
		Short: "Delete old completed/failed audits, keeping the newest N",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadConfig()
			if err != nil {
				return err
			}
			mgr := audit.New(opts.AuditsRoot)
			result, err := mgr.Cleanup(args[0], keep)
			if err != nil {
				return fmt.Errorf("cleaning up: %w", err)
			}
			fmt.Printf("kept %d, deleted %d\n", result.Kept, result.Deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "number of newest audits to keep")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <host>",
		Short: "Compress oversized snapshots and page records for one domain's audits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadConfig()
			if err != nil {
				return err
			}
			domainDir := filepath.Join(opts.AuditsRoot, audit.DomainSlug(args[0]))
			stateResult := statestore.Migrate(domainDir)
			pageResult := pagedata.Migrate(domainDir)
			fmt.Printf("migrated %d snapshots (%d errors), %d page records (%d errors)\n",
				stateResult.Migrated, stateResult.Errors, pageResult.Migrated, pageResult.Errors)
			return nil
		},
	}
}

func newMigrateAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-all",
		Short: "Compress oversized snapshots and page records across every domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadConfig()
			if err != nil {
				return err
			}
			stateResult := statestore.Migrate(opts.AuditsRoot)
			pageResult := pagedata.Migrate(opts.AuditsRoot)
			fmt.Printf("migrated %d snapshots (%d errors), %d page records (%d errors)\n",
				stateResult.Migrated, stateResult.Errors, pageResult.Migrated, pageResult.Errors)
			return nil
		},
	}
}
