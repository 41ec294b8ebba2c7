package probe

import (
	"fmt"

	v1 "nettop/api/v1"
	"nettop/internal/config"
	"nettop/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ReportHandler is a function that processes a received report.
type ReportHandler func(r *model.Report)

// Subscriber receives reports published by a Publisher.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	log     logrus.FieldLogger
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig, log logrus.FieldLogger) (*Subscriber, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url, nats.Name("nettop-watch"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.WithField("url", url).Info("Connected to NATS server")
	return &Subscriber{nc: nc, subject: subject, log: log}, nil
}

// Start subscribes to the subject and hands every decoded report to handler.
func (s *Subscriber) Start(handler ReportHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		r, err := v1.UnmarshalReport(msg.Data)
		if err != nil {
			s.log.WithError(err).Warn("Dropping undecodable report")
			return
		}
		handler(r)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.WithField("subject", s.subject).Info("Subscribed, waiting for reports")
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.log.Info("NATS connection closed")
	}
}
