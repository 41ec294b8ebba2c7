package manager

import (
	"fmt"

	"nettop/internal/config"
	"nettop/internal/engine/window"
	"nettop/internal/factory"
	"nettop/internal/metrics"
	"nettop/internal/model"
	_ "nettop/internal/probe"   // Registers the nats exporter
	_ "nettop/internal/storage" // Registers the clickhouse exporter

	"github.com/sirupsen/logrus"
)

// Manager owns the window controller and every writer it reports to.
type Manager struct {
	ctrl    *window.Controller
	writers []model.Writer
	log     logrus.FieldLogger
}

// NewManager builds the configured exporters and a controller that reports to them and to
// the extra writers (terminal, API). Validate cfg first.
func NewManager(cfg *config.Config, runID string, extra []model.Writer, log logrus.FieldLogger, m *metrics.Metrics) (*Manager, error) {
	exporters, err := factory.Create(cfg, log)
	if err != nil {
		return nil, err
	}

	poll, err := cfg.PollInterval()
	if err != nil {
		closeAll(exporters, log)
		return nil, fmt.Errorf("invalid window config: %w", err)
	}

	writers := append(append([]model.Writer{}, extra...), exporters...)
	ctrl := window.New(window.Options{
		RunID:        runID,
		Interface:    cfg.Capture.Interface,
		Interval:     cfg.Interval(),
		PollInterval: poll,
		Mode:         cfg.SortMode(),
		TopN:         cfg.Window.TopN,
		NumShards:    cfg.Aggregator.NumShards,
		NumWorkers:   cfg.Aggregator.NumWorkers,
		QueueSize:    cfg.Aggregator.SizeOfPacketChannel,
	}, writers, log, m)

	return &Manager{ctrl: ctrl, writers: writers, log: log}, nil
}

// Start begins processing. The first window starts now.
func (m *Manager) Start() {
	m.ctrl.Start()
	m.log.WithField("writers", len(m.writers)).Info("Manager started")
}

// Enqueue hands a captured frame to the controller.
func (m *Manager) Enqueue(f model.Frame) bool {
	return m.ctrl.Enqueue(f)
}

// Controller exposes the window controller.
func (m *Manager) Controller() *window.Controller {
	return m.ctrl
}

// Stop drains the controller, then closes every writer.
func (m *Manager) Stop() {
	m.log.Info("Manager stopping...")
	m.ctrl.Stop()
	closeAll(m.writers, m.log)
	m.log.Info("Manager stopped")
}

func closeAll(writers []model.Writer, log logrus.FieldLogger) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.WithError(err).WithField("writer", w.Name()).Warn("Failed to close writer")
		}
	}
}
