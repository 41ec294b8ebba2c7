package probe

import (
	"fmt"

	v1 "nettop/api/v1"
	"nettop/internal/config"
	"nettop/internal/factory"
	"nettop/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubject is used when the exporter definition names none.
const DefaultSubject = "nettop.reports"

func init() {
	factory.RegisterWriter("nats", func(def config.ExporterDef, log logrus.FieldLogger) (model.Writer, error) {
		return NewPublisher(def.NATS, log)
	})
}

// Publisher is responsible for publishing reports to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     logrus.FieldLogger
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig, log logrus.FieldLogger) (*Publisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url, nats.Name("nettop"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.WithFields(logrus.Fields{"url": url, "subject": subject}).Info("Connected to NATS server")
	return &Publisher{nc: nc, subject: subject, log: log}, nil
}

func (p *Publisher) Name() string { return "nats" }

// Write serializes the report to Protobuf and publishes it to the configured subject.
func (p *Publisher) Write(r *model.Report) error {
	data, err := v1.MarshalReport(r)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return err
	}
	p.log.Info("NATS connection drained and closed")
	return nil
}
