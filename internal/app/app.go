package app

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"asnwall/internal/aggregate"
	"asnwall/internal/asnlist"
	"asnwall/internal/collector"
	"asnwall/internal/config"
	"asnwall/internal/geolite"
	"asnwall/internal/render"
	"asnwall/internal/sources"
	"asnwall/internal/support"
)

type options struct {
	configPath  string
	asnList     string
	outDir      string
	concurrency int
	dryRun      bool
}

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	return run(context.Background(), os.Args[1:])
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("asnwall", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.DefaultSettingsPath, "Path to the JSON settings file")
	fs.StringVar(&opts.asnList, "asn-list", "", "ASN list file or URL (overrides settings)")
	fs.StringVar(&opts.outDir, "out", "", "Output directory for artifacts (overrides settings)")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "Number of ASNs collected in parallel (overrides settings)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Collect and merge without writing artifacts")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// apply lays the command line over the settings file and environment.
func (o options) apply(cfg *config.Config) {
	if o.asnList != "" {
		cfg.ASNList = o.asnList
	}
	if o.outDir != "" {
		cfg.OutputDir = o.outDir
	}
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.ReadSettings(opts.configPath, opts.apply)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	concurrency := resolveConcurrency("ASNWALL_CONCURRENCY", opts.concurrency, int(cfg.Concurrency))

	if level, err := log.ParseLevel(cfg.LogLevelOrDefault()); err == nil {
		log.SetLevel(level)
	}

	entries, err := asnlist.Load(ctx, cfg.ASNList)
	if err != nil {
		return fmt.Errorf("failed to load ASN list: %w", err)
	}
	log.Info("ASN list loaded", "location", cfg.ASNList, "asns", len(entries))

	redisClient := connectCache(ctx, cfg)
	if redisClient != nil {
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
	}

	prepareGeoLite(ctx, cfg)

	aggOpts := []aggregate.Option{
		aggregate.WithCollector(collector.New(cfg.BarePolicy())),
		aggregate.WithIndex(cfg.IndexKind()),
		aggregate.WithFetchTimeout(cfg.FetchTimeoutDuration()),
		aggregate.WithConcurrency(concurrency),
	}
	if cfg.Audit.Enabled {
		auditor, err := geolite.Open(cfg.Audit.Path)
		if err != nil {
			log.Warn("GeoLite audit disabled", "error", err)
		} else {
			defer auditor.Close()
			aggOpts = append(aggOpts, aggregate.WithAuditor(auditor))
		}
	}

	result, err := aggregate.New(sources.Build(cfg, redisClient), aggOpts...).Run(ctx, asnlist.ASNs(entries))
	if err != nil {
		return fmt.Errorf("aggregation interrupted: %w", err)
	}

	if opts.dryRun {
		log.Info("Dry run, no artifacts written", "networks", result.Global.Len())
		return nil
	}

	artifacts, err := render.Write(cfg.OutputDir, result, render.Options{
		PerASN: cfg.WritePerASN,
		UFW:    render.UFWRule{Proto: cfg.UFW.Proto, Ports: cfg.UFW.Ports},
	})
	if err != nil {
		return fmt.Errorf("failed to write artifacts: %w", err)
	}

	log.Info("Artifacts written", "dir", cfg.OutputDir, "files", len(artifacts), "networks", result.Global.Len())
	return nil
}

// connectCache returns nil when caching is off or Redis is unreachable.
func connectCache(ctx context.Context, cfg config.Config) *redis.Client {
	if !cfg.Cache.Enabled {
		return nil
	}
	client, err := support.GetRedisClient(ctx, cfg.Cache.RedisURL)
	if err != nil {
		log.Warn("Prefix cache disabled", "error", err)
		return nil
	}
	return client
}

// prepareGeoLite downloads the ASN database for the features that read it.
func prepareGeoLite(ctx context.Context, cfg config.Config) {
	paths := map[string]struct{}{}
	if cfg.Sources.GeoLite.Enabled {
		paths[cfg.Sources.GeoLite.Path] = struct{}{}
	}
	if cfg.Audit.Enabled {
		paths[cfg.Audit.Path] = struct{}{}
	}

	for path := range paths {
		updated, err := geolite.EnsureDatabase(ctx, path, cfg.GeoLite.DownloadURL, cfg.GeoLite.LicenseKey)
		if err != nil {
			log.Warn("GeoLite database unavailable", "path", path, "error", err)
			continue
		}
		if updated {
			log.Info("GeoLite database ready", "path", path)
		}
	}
}

func resolveConcurrency(envKey string, flagValue, fallback int) int {
	if flagValue > 0 {
		return flagValue
	}
	if n := readPositiveInt(envKey); n != 0 {
		return n
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

func readPositiveInt(envKey string) int {
	raw := support.GetEnv(envKey, "")
	if raw == "" {
		return 0
	}
	n := support.GetEnvInt(envKey, 0)
	if n <= 0 {
		log.Warn("invalid numeric override", "env", envKey, "value", raw)
		return 0
	}
	return n
}
