package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"nettop/internal/api"
	"nettop/internal/config"
	"nettop/internal/display"
	"nettop/internal/engine/manager"
	"nettop/internal/logging"
	"nettop/internal/metrics"
	"nettop/internal/model"
	"nettop/internal/probe"
	"nettop/internal/storage"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const usage = `Usage: nettop -i <interface> [-s b|p] [-t seconds] [-c config.yaml] [-plain]

Shows the busiest conversations on a network interface, refreshed every interval.

  -i <interface>  interface to capture on (required)
  -s b|p          sort by bytes (b, default) or packets (p)
  -t <seconds>    refresh interval in whole seconds (default 1)
  -c <file>       YAML config file
  -plain          print reports as text instead of the full-screen table
  -h, --help      show this help
`

type options struct {
	configPath string
	iface      string
	sort       string
	interval   string
	plain      bool
	set        map[string]bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("nettop", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	fs.StringVar(&opts.iface, "i", "", "interface to capture on")
	fs.StringVar(&opts.sort, "s", "b", "sort by bytes (b) or packets (p)")
	fs.StringVar(&opts.interval, "t", "1", "refresh interval in seconds")
	fs.StringVar(&opts.configPath, "c", "", "YAML config file")
	fs.BoolVar(&opts.plain, "plain", false, "print reports as text")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("%w: unexpected argument %q", config.ErrConfig, fs.Arg(0))
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// loadConfig layers defaults, the config file, the environment and the command line.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if opts.set["i"] {
		cfg.Capture.Interface = opts.iface
	}
	if opts.set["s"] {
		cfg.Window.Sort = opts.sort
	}
	if opts.set["t"] {
		n, err := strconv.Atoi(opts.interval)
		if err != nil {
			return nil, fmt.Errorf("%w: -t must be a whole number of seconds, got %q", config.ErrConfig, opts.interval)
		}
		cfg.Window.Interval = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "nettop: %v\n\n%s", err, usage)
		return 1
	}

	// The full-screen table owns the terminal, so logs go to the configured file or nowhere.
	var fallback io.Writer = io.Discard
	if opts.plain {
		fallback = stderr
	}
	log, logCloser, err := logging.New(cfg.Logging, fallback)
	if err != nil {
		fmt.Fprintf(stderr, "nettop: %v\n", err)
		return 1
	}
	defer logCloser.Close()

	readTimeout, _ := cfg.ReadTimeout()
	capture, err := probe.Open(probe.Options{
		Interface:   cfg.Capture.Interface,
		SnapshotLen: cfg.Capture.SnapshotLen,
		Promiscuous: cfg.Capture.Promiscuous,
		ReadTimeout: readTimeout,
	}, log)
	if err != nil {
		fmt.Fprintf(stderr, "nettop: %v\n", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var writers []model.Writer
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, reg, historyQuerier(cfg, log), log)
		if err := apiServer.Start(); err != nil {
			capture.Close()
			fmt.Fprintf(stderr, "nettop: %v\n", err)
			return 1
		}
		writers = append(writers, apiServer)
	}

	var term *display.Terminal
	if opts.plain {
		writers = append(writers, display.NewTextWriter(stdout))
	} else {
		term, err = display.NewTerminal(cfg.Capture.Interface, cfg.Interval())
		if err != nil {
			closeWriters(writers)
			capture.Close()
			fmt.Fprintf(stderr, "nettop: %v\n", err)
			return 1
		}
		writers = append(writers, term)
	}

	runID := uuid.NewString()
	mgr, err := manager.NewManager(cfg, runID, writers, log.WithField("run_id", runID), m)
	if err != nil {
		closeWriters(writers)
		capture.Close()
		fmt.Fprintf(stderr, "nettop: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgr.Start()
	if apiServer != nil {
		apiServer.SetServing(true)
	}

	var captureErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		captureErr = capture.Run(ctx, mgr)
		cancel()
	}()

	if term != nil {
		term.Run(ctx)
	} else {
		<-ctx.Done()
	}
	log.Info("Shutdown signal received, cleaning up...")

	cancel()
	wg.Wait()
	capture.Close()
	if apiServer != nil {
		apiServer.SetServing(false)
	}
	mgr.Stop()

	if captureErr != nil {
		log.WithError(captureErr).Error("Capture failed")
		fmt.Fprintf(stderr, "nettop: %v\n", captureErr)
		return 1
	}
	return 0
}

// historyQuerier connects to the first enabled ClickHouse exporter's database, if any.
func historyQuerier(cfg *config.Config, log logrus.FieldLogger) storage.Querier {
	for _, def := range cfg.Exporters {
		if !def.Enabled || def.Type != "clickhouse" {
			continue
		}
		q, err := storage.NewClickHouseQuerier(def.ClickHouse)
		if err != nil {
			log.WithError(err).Warn("History queries disabled")
			return nil
		}
		return q
	}
	return nil
}

func closeWriters(writers []model.Writer) {
	for _, w := range writers {
		w.Close()
	}
}
