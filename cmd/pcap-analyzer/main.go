package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"nettop/internal/config"
	"nettop/internal/display"
	"nettop/internal/engine/window"
	"nettop/internal/logging"
	"nettop/internal/model"
	"nettop/pkg/pcap"

	"github.com/google/uuid"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pcap-analyzer", flag.ContinueOnError)
	configPath := fs.String("c", "", "Path to a YAML config file")
	sortFlag := fs.String("s", "", "Sort by bytes (b) or packets (p)")
	interval := fs.Int("t", 0, "Report interval in seconds")
	topN := fs.Int("n", 0, "Number of flows per report")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pcap-analyzer [-c config.yaml] [-s b|p] [-t seconds] [-n count] <file.pcap>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	pcapFilePath := fs.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to apply environment: %v\n", err)
		return 1
	}
	// Offline replays have no live interface; the file name stands in for it.
	cfg.Capture.Interface = pcapFilePath
	if *sortFlag != "" {
		cfg.Window.Sort = *sortFlag
	}
	if *interval != 0 {
		cfg.Window.Interval = *interval
	}
	if *topN != 0 {
		cfg.Window.TopN = *topN
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return 1
	}

	log, closer, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closer.Close()

	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.WithError(err).Error("Failed to open pcap file")
		return 1
	}
	defer reader.Close()

	out := display.NewTextWriter(os.Stdout)
	ctrl := window.New(window.Options{
		RunID:      uuid.NewString(),
		Interface:  pcapFilePath,
		Interval:   cfg.Interval(),
		Mode:       cfg.SortMode(),
		TopN:       cfg.Window.TopN,
		NumShards:  cfg.Aggregator.NumShards,
		NumWorkers: 1,
	}, []model.Writer{out}, log, nil)

	log.WithField("file", pcapFilePath).Info("Reading packets from pcap file")
	n, err := reader.Replay(ctrl)
	if err != nil {
		log.WithError(err).Error("Replay failed")
		return 1
	}
	log.WithField("frames", n).Info("Finished reading all packets from pcap file")
	return 0
}
