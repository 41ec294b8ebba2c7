package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"nettop/internal/config"
	"nettop/internal/display"
	"nettop/internal/model"
	"nettop/internal/probe"

	"github.com/sirupsen/logrus"
)

// nettop-watch prints the reports another nettop instance publishes to NATS.
func main() {
	configPath := flag.String("c", "", "Path to a YAML config file; the first nats exporter supplies the defaults")
	url := flag.String("url", "", "NATS server URL")
	subject := flag.String("subject", "", "Subject the reports are published on")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Failed to apply environment: %v", err)
	}

	var natsCfg config.NATSConfig
	for _, def := range cfg.Exporters {
		if def.Type == "nats" {
			natsCfg = def.NATS
			break
		}
	}
	if *url != "" {
		natsCfg.URL = *url
	}
	if *subject != "" {
		natsCfg.Subject = *subject
	}

	sub, err := probe.NewSubscriber(natsCfg, log)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	out := display.NewTextWriter(os.Stdout)
	handler := func(r *model.Report) {
		if err := out.Write(r); err != nil {
			log.WithError(err).Warn("Failed to print report")
		}
	}
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received, cleaning up...")
}
