package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"iconcal/internal/asset"
	"iconcal/internal/catalog"
	"iconcal/internal/config"
	"iconcal/internal/ics"
	appLog "iconcal/internal/log"
	"iconcal/internal/metrics"
	"iconcal/internal/schedule"
	"iconcal/internal/special"
	"iconcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	verifyDates bool
	verbose     bool
	year        int
}

func main() {
	flags := parseFlags()
	appLog.SetVerbose(flags.verbose)

	appLog.Info("iconcal starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"icons_dir", conf.IconsDir,
		"special_cases_dir", conf.SpecialCasesDir,
		"schedule", conf.Schedule,
		"output_path", conf.OutputPath,
		"once", flags.once,
		"verify_dates", flags.verifyDates,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	specials, err := special.Discover(conf.SpecialCasesDir, special.Deps{
		Fetcher: ics.NewFetcher(conf.CacheDir, 0),
	})
	if err != nil {
		appLog.Error("failed to load special cases", err, "dir", conf.SpecialCasesDir)
		os.Exit(1)
	}

	cat := catalog.New(asset.NewResolver(specials), catalog.Options{
		Dir:            conf.IconsDir,
		Ignored:        conf.IgnoredFiles,
		ResolveTimeout: conf.ResolveTimeout,
		MaxConcurrency: conf.MaxConcurrency,
		Metrics:        m,
	})

	if flags.verifyDates {
		year := flags.year
		if year == 0 {
			year = time.Now().In(conf.Location()).Year()
		}
		os.Exit(verify(ctx, cat, []int{year, year + 1}, os.Stdout))
	}

	var applier schedule.Applier = schedule.LogApplier{}
	if conf.OutputPath != "" {
		applier = schedule.FileApplier{Dest: conf.OutputPath}
	}

	job := &schedule.Job{
		Catalog:     cat,
		Applier:     applier,
		Location:    conf.Location(),
		DefaultIcon: conf.DefaultIconPath(),
		Metrics:     m,
	}

	if flags.once {
		if err := job.Run(ctx); err != nil {
			appLog.Error("icon run failed", err)
			os.Exit(1)
		}
		return
	}

	sched, err := schedule.NewScheduler(conf.Schedule, conf.Location(), job)
	if err != nil {
		appLog.Error("failed to create scheduler", err)
		os.Exit(1)
	}

	// Apply today's icon right away instead of waiting for the first tick.
	if err := job.Run(ctx); err != nil {
		appLog.Error("initial icon run failed", err)
	}
	sched.Start(ctx)

	srv := web.NewServer(conf, cat, registry)
	if err := web.ListenAndServe(ctx, conf.Listen, srv.Handler()); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		cancel()
	}

	sched.Stop()
	appLog.Info("iconcal exiting")
}

// verify validates every asset for each year, prints every failure to out,
// and returns the process exit code.
func verify(ctx context.Context, b schedule.Builder, years []int, out io.Writer) int {
	code := 0
	for _, year := range years {
		report, err := b.Build(ctx, year)
		if err != nil {
			fmt.Fprintf(out, "%d: %v\n", year, err)
			code = 1
			continue
		}
		for _, f := range report.Failures {
			fmt.Fprintf(out, "%d: %s: %v\n", year, filepath.Base(f.File), f.Err)
		}
		if !report.OK() {
			code = 1
		}
		fmt.Fprintf(out, "%d: %d valid, %d invalid\n", year, len(report.Entries), len(report.Failures))
	}
	return code
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/iconcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Apply today's icon once and exit")
	flag.BoolVar(&cfg.verifyDates, "verify-dates", false, "Validate every asset for this year and the next, then exit")
	flag.BoolVar(&cfg.verbose, "verbose", false, "Enable debug logging")
	flag.IntVar(&cfg.year, "year", 0, "First year checked by --verify-dates (default: current year)")

	flag.Parse()

	return cfg
}
