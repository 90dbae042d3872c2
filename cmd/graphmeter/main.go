// Command graphmeter executes a GraphQL query document against a metered
// storefront API and reports the observed usage.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/storelane/graphmeter/internal/cache"
	"github.com/storelane/graphmeter/internal/client"
	"github.com/storelane/graphmeter/internal/config"
	"github.com/storelane/graphmeter/internal/incontext"
	"github.com/storelane/graphmeter/internal/usage"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config")
		queryPath  = flag.String("query", "-", "query document file, or - for stdin")
		country    = flag.String("country", "", "country enum for @inContext")
		language   = flag.String("language", "", "language enum for @inContext")
		skipCache  = flag.Bool("skip-cache", false, "bypass the response cache")
		statsOnly  = flag.Bool("stats", false, "print the persisted usage summary and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphmeter: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logger)

	if *statsOnly {
		if err := printPersistedSummary(cfg); err != nil {
			log.Fatal().Err(err).Msg("loading usage summary")
		}
		return
	}

	document, err := readQuery(*queryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("reading query document")
	}

	monitor := usage.NewMonitor(cfg.Usage.MaxHistory)
	var store *usage.Store
	if cfg.Usage.Persist {
		store, err = usage.OpenStore(cfg.Usage.DBPath)
		if err != nil {
			log.Fatal().Err(err).Msg("opening usage store")
		}
		defer func() { _ = store.Close() }()
		if records, err := store.Load(); err == nil {
			monitor.Restore(records)
		} else {
			log.Warn().Err(err).Msg("could not restore usage history")
		}
	}

	opts := []client.ClientOption{
		client.WithTimeout(cfg.API.Timeout),
		client.WithRetryPolicy(cfg.RetryPolicy()),
		client.WithUsageMonitor(monitor),
		client.WithApproachingThreshold(cfg.API.ApproachingThreshold),
		client.WithCallbacks(client.Callbacks{
			OnRateLimitApproaching: func(s usage.ThrottleStatus) {
				log.Warn().Float64("used_pct", s.UsedPercentage()).Msg("approaching rate limit")
			},
			OnThrottled: func(s usage.ThrottleStatus) {
				log.Warn().Float64("currently_available", s.CurrentlyAvailable).Msg("throttled by upstream")
			},
			OnError: func(err error) {
				log.Error().Err(err).Msg("api error")
			},
		}),
	}
	if cfg.API.TokenHeader != "" {
		opts = append(opts, client.WithTokenHeader(cfg.API.TokenHeader))
	}
	if cfg.Cache.Enabled {
		c := cache.New(cfg.Cache.CleanupInterval)
		defer c.Close()
		opts = append(opts, client.WithCache(c), client.WithDefaultCacheTTL(cfg.Cache.TTL))
	}

	cl := client.New(cfg.API.Domain, cfg.API.Version, cfg.API.AccessToken, opts...)

	if *country != "" || *language != "" {
		cl.SetRequestContext(&incontext.RequestContext{
			Country:  strings.ToUpper(*country),
			Language: strings.ToUpper(*language),
		})
	}

	resp, err := cl.Request(context.Background(), document, nil, &client.RequestOptions{SkipCache: *skipCache})
	if err != nil {
		log.Fatal().Err(err).Msg("request failed")
	}

	if store != nil {
		if err := store.Save(monitor.Snapshot()); err != nil {
			log.Warn().Err(err).Msg("could not persist usage history")
		}
	}

	printResult(resp, monitor)
}

func setupLogging(cfg config.LoggerConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func readQuery(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func printResult(resp *client.Response, monitor *usage.Monitor) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	out := struct {
		Data      json.RawMessage       `json:"data,omitempty"`
		Errors    []client.GraphQLError `json:"errors,omitempty"`
		FromCache bool                  `json:"from_cache"`
		Usage     usage.Summary         `json:"usage"`
	}{
		Data:      resp.Data,
		Errors:    resp.Errors,
		FromCache: resp.FromCache,
		Usage:     monitor.Summary(),
	}
	_ = enc.Encode(out)
}

func printPersistedSummary(cfg config.Config) error {
	store, err := usage.OpenStore(cfg.Usage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.Load()
	if err != nil {
		return err
	}
	monitor := usage.NewMonitor(cfg.Usage.MaxHistory)
	monitor.Restore(records)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(monitor.Summary())
}
