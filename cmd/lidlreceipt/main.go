package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/lidlreceipt/internal/app"
)

// listFlag collects repeated or comma-separated values.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	if opts.version {
		fmt.Println(app.VersionString())
		return
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(exitCode(err))
	}
}

type runOptions struct {
	listArchive bool
	version     bool
}

// parseFlags resolves configuration with precedence flags > env > config file.
func parseFlags(fs *flag.FlagSet, args []string) (app.Config, runOptions, error) {
	var (
		cfg         app.Config
		opts        runOptions
		inputs      listFlag
		configPath  string
		envFiles    listFlag
		cacheMaxAge time.Duration
	)
	fs.StringVar(&configPath, "config", os.Getenv("RECEIPT_CONFIG"), "Path to YAML or JSON config file")
	fs.Var(&envFiles, "env", "Dotenv file(s) to load before reading the environment (repeatable)")
	fs.Var(&inputs, "input", "Receipt HTML file or http(s) URL (repeatable, comma-separated)")
	fs.StringVar(&cfg.OutputPath, "output", app.DefaultOutput, "Path to write JSON output ('-' for stdout)")
	fs.StringVar(&cfg.PDFPath, "pdf", "", "Optional path to render the receipts as PDF")
	fs.StringVar(&cfg.Date, "date", "", "Purchase date passed through to the receipt (default: now)")
	fs.StringVar(&cfg.Token, "token", "", "Bearer token for remote receipt pages")
	fs.StringVar(&cfg.UserAgent, "ua", app.DefaultUserAgent, "User-Agent for remote receipt pages")
	fs.StringVar(&cfg.AcceptLanguage, "lang", "", "Accept-Language for remote receipt pages, e.g. 'fr-FR'")
	fs.DurationVar(&cfg.Timeout, "timeout", app.DefaultTimeout, "Per-request timeout for remote receipt pages")
	fs.StringVar(&cfg.CacheDir, "cache.dir", app.DefaultCacheDir, "Page cache directory path")
	fs.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Max age for cached pages before purge (e.g. 72h); 0 disables")
	fs.BoolVar(&cfg.CacheClear, "cache.clear", false, "Clear the page cache before the run")
	fs.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.StringVar(&cfg.ArchivePath, "archive", "", "Optional bbolt file to archive extracted receipts")
	fs.BoolVar(&opts.listArchive, "archive.list", false, "Print archived receipts instead of extracting")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version information and exit")
	if err := fs.Parse(args); err != nil {
		return cfg, opts, err
	}
	if opts.version {
		return cfg, opts, nil
	}
	cfg.Inputs = append(inputs, fs.Args()...)
	cfg.CacheMaxAge = cacheMaxAge

	if err := app.LoadEnvFiles(envFiles...); err != nil {
		return cfg, opts, fmt.Errorf("load env: %w", err)
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	explicit := cfg
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return cfg, opts, fmt.Errorf("load config: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	restoreExplicit(&cfg, explicit, set)

	if opts.listArchive {
		if cfg.ArchivePath == "" {
			return cfg, opts, errors.New("config: -archive.list requires -archive")
		}
		return cfg, opts, nil
	}
	return cfg, opts, app.ValidateConfig(cfg)
}

// restoreExplicit re-applies values given on the command line after file and
// env layers ran, so flags keep the highest precedence.
func restoreExplicit(cfg *app.Config, explicit app.Config, set map[string]bool) {
	if set["input"] || len(explicit.Inputs) > 0 {
		cfg.Inputs = explicit.Inputs
	}
	if set["output"] {
		cfg.OutputPath = explicit.OutputPath
	}
	if set["pdf"] {
		cfg.PDFPath = explicit.PDFPath
	}
	if set["date"] {
		cfg.Date = explicit.Date
	}
	if set["token"] {
		cfg.Token = explicit.Token
	}
	if set["ua"] {
		cfg.UserAgent = explicit.UserAgent
	}
	if set["lang"] {
		cfg.AcceptLanguage = explicit.AcceptLanguage
	}
	if set["timeout"] {
		cfg.Timeout = explicit.Timeout
	}
	if set["cache.dir"] {
		cfg.CacheDir = explicit.CacheDir
	}
	if set["cache.maxAge"] {
		cfg.CacheMaxAge = explicit.CacheMaxAge
	}
	if set["cache.clear"] {
		cfg.CacheClear = explicit.CacheClear
	}
	if set["cache.strictPerms"] {
		cfg.CacheStrictPerms = explicit.CacheStrictPerms
	}
	if set["archive"] {
		cfg.ArchivePath = explicit.ArchivePath
	}
	if set["v"] {
		cfg.Verbose = explicit.Verbose
	}
}

// exitCode maps ErrNoReceipts to 2 and every other failure to 1.
func exitCode(err error) int {
	if errors.Is(err, app.ErrNoReceipts) {
		return 2
	}
	return 1
}

func run(ctx context.Context, cfg app.Config, opts runOptions) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if opts.listArchive {
		return a.ListArchive()
	}
	return a.Run(ctx)
}
