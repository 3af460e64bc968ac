// Command acx-batch-patch lists the metadata records created inside a time
// window and applies the configured patch to each of them with bounded
// concurrency and retries.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/beacx/acx-api-client/pkg/api"
	"github.com/beacx/acx-api-client/pkg/auth"
	"github.com/beacx/acx-api-client/pkg/backoff"
	"github.com/beacx/acx-api-client/pkg/config"
	"github.com/beacx/acx-api-client/pkg/dispatch"
	"github.com/beacx/acx-api-client/pkg/logging"
	"github.com/beacx/acx-api-client/pkg/notify"
	"github.com/beacx/acx-api-client/pkg/retry"
	"github.com/beacx/acx-api-client/pkg/runner"
	"github.com/beacx/acx-api-client/pkg/store"
)

// Exit codes: 0 clean run, 1 some records exhausted retries, 2 fatal error.
const (
	exitOK        = 0
	exitExhausted = 1
	exitFatal     = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	window := flag.Duration("window", 24*time.Hour, "Patch records created within this window ending now")
	dryRun := flag.Bool("dry-run", false, "List matching records without patching")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Local development credentials; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitFatal
	}

	level := logging.LogLevel(cfg.App.LogLevel)
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.App.PrettyLogs,
		Output: os.Stderr,
	})

	ctx := context.Background()

	source, err := auth.NewSource(ctx, auth.Config{
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Scopes:       cfg.Auth.Scopes,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Auth setup failed")
		return exitFatal
	}

	httpClient := source.Client(ctx)
	httpClient.Timeout = cfg.API.Timeout

	client, err := api.New(api.Config{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: httpClient,
		UserAgent:  cfg.API.UserAgent,
		PageSize:   cfg.API.PageSize,
	})
	if err != nil {
		logger.Error().Err(err).Msg("API client setup failed")
		return exitFatal
	}

	windowEnd := time.Now()
	windowStart := windowEnd.Add(-*window)

	if *dryRun {
		ids, err := client.ListRecordIDs(ctx, windowStart, windowEnd)
		if err != nil {
			logger.Error().Err(err).Msg("Listing failed")
			return exitFatal
		}
		fmt.Printf("dry run: %d records would be patched\n", len(ids))
		for _, id := range ids {
			fmt.Println(id)
		}
		return exitOK
	}

	var recorder runner.Recorder
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis connection failed")
			return exitFatal
		}
		defer rdb.Close()
		recorder = store.New(rdb)
	}

	sink := notify.NewWriterSink(os.Stdout)

	executor := retry.NewExecutor(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Policy: backoff.Policy{
			Base: cfg.Retry.BaseBackoff,
			Max:  cfg.Retry.MaxBackoff,
		},
		Slots: cfg.Retry.Slots,
	}, sink)

	dispatcher := dispatch.New(dispatch.Config{
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
	}, sink)

	coordinator, err := runner.New(runner.Config{
		Lister:     client,
		Patcher:    client,
		Dispatcher: dispatcher,
		Executor:   executor,
		Recorder:   recorder,
		Patch:      cfg.PatchBody(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Coordinator setup failed")
		return exitFatal
	}

	report, err := coordinator.Run(ctx, windowStart, windowEnd)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return exitFatal
	}

	fmt.Println(report.Summary())
	if !report.Clean() {
		return exitExhausted
	}
	return exitOK
}
