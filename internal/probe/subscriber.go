package probe

import (
	"ConnSpectra/internal/config"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// MessageHandler is a function that processes a received message.
type MessageHandler func(msg Message)

// Subscriber is responsible for subscribing to published runs and decoding their messages.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to every run below the configured subject.
func (s *Subscriber) Start(handler MessageHandler) error {
	sub, err := s.nc.Subscribe(s.subject+".>", func(m *nats.Msg) {
		msg, err := Decode(m.Data)
		if err != nil {
			log.Printf("Error decoding message on '%s': %v", m.Subject, err)
			return
		}
		handler(msg)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s.>'. Waiting for messages...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
