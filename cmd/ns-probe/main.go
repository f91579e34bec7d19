package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ConnSpectra/internal/config"
	"ConnSpectra/internal/logging"
	"ConnSpectra/internal/probe"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	natsURL := flag.String("nats", "", "NATS server URL, overrides nats.url from the config")
	verbose := flag.Bool("v", false, "Log every received connection, not only end-of-run totals")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	if *natsURL != "" {
		cfg.NATS.URL = *natsURL
	}

	log.Println("Starting ns-probe in SUBSCRIBER mode...")
	sub, err := probe.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(msg probe.Message) {
		switch {
		case msg.End != nil:
			log.WithFields(log.Fields{
				"run":          msg.End.RunID,
				"source":       msg.End.Source,
				"connections":  msg.End.Connections,
				"unterminated": msg.End.Unterminated,
				"packets":      msg.End.TotalPackets,
				"bytes":        msg.End.TotalBytes,
			}).Info("Run finished.")
		case msg.Result != nil && *verbose:
			log.Printf("[%s] %s start=%.6f duration=%.6f", msg.RunID, msg.Result.Key, msg.Result.StartOffset, msg.Result.Duration)
		}
	}

	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	// Set up a channel to handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
