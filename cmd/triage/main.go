package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"prtriage/internal/config"
	gh "prtriage/internal/github"
	"prtriage/internal/logging"
	"prtriage/internal/store"
	"prtriage/internal/triage"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dryRun     = flag.Bool("dry-run", false, "simulate mutating actions (default)")
		live       = flag.Bool("live", false, "perform mutating actions for real")
		configPath = flag.String("config", "", "path to YAML triage policy")
		outputPath = flag.String("output", "", "write machine-readable run results (JSON)")
		reportPath = flag.String("report-file", "", "write markdown report")
		repo       = flag.String("repo", "", "repository as owner/name (overrides policy)")
	)
	flag.Parse()

	if *dryRun && *live {
		fmt.Fprintln(os.Stderr, "--dry-run and --live are mutually exclusive")
		return 1
	}
	mode := triage.ModeDryRun
	if *live {
		mode = triage.ModeLive
	}

	cfg := config.Load()
	log, err := logging.NewLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		return 1
	}
	defer log.Sync()

	policy, err := config.LoadPolicy(*configPath)
	if err != nil {
		log.Error("policy load failed", zap.Error(err))
		return 1
	}
	if *repo != "" {
		policy.Repository = *repo
	}
	if policy.Repository == "" {
		policy.Repository = cfg.DefaultRepo
	}
	if err := policy.Validate(); err != nil {
		log.Error("policy invalid", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retry := gh.DefaultRetryPolicy()
	retry.MaxAttempts = policy.Retry.MaxAttempts
	retry.BaseDelay = time.Duration(policy.Retry.BaseDelayMillis) * time.Millisecond
	retry.DefaultRateLimitWait = time.Duration(policy.Retry.RateLimitWaitSecs) * time.Second

	gw, err := gh.NewClient(gh.Options{
		Repository: policy.Repository,
		Token:      gh.ResolveToken(cfg.GitHubToken, cfg.GitHubTokenCommand),
		BaseAPI:    cfg.GitHubAPIBase,
		DryRun:     mode == triage.ModeDryRun,
		Retry:      retry,
		Cache:      gh.NewPRCache(),
		Logger:     log,
	})
	if err != nil {
		log.Error("gateway init failed", zap.Error(err))
		return 1
	}

	runResult := triage.New(gw, policy, log).Run(ctx, mode)

	if *outputPath != "" {
		if err := store.NewResultsFile(*outputPath).Write(runResult); err != nil {
			log.Error("results write failed", zap.Error(err))
			return 1
		}
	}
	if *reportPath != "" {
		if err := store.WriteReport(*reportPath, runResult); err != nil {
			log.Error("report write failed", zap.Error(err))
			return 1
		}
	} else {
		fmt.Println(triage.MarkdownReport(runResult))
	}

	if runResult.HasBlockingIssues() {
		return 1
	}
	return 0
}
