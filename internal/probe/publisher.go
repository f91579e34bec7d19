package probe

import (
	"fmt"

	"ConnSpectra/internal/config"
	"ConnSpectra/internal/model"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher is responsible for publishing connection results to NATS.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish sends every result of report on <subject>.<run_id>, then the end-of-run totals.
func (p *Publisher) Publish(report *model.Report) error {
	subject := RunSubject(p.subject, report.RunID)
	for _, res := range report.Results {
		data, err := EncodeResult(report.RunID, res)
		if err != nil {
			return err
		}
		if err := p.nc.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish result: %w", err)
		}
	}

	data, err := EncodeEnd(report)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish end of run: %w", err)
	}
	return p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
