package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ConnSpectra/internal/alerter"
	"ConnSpectra/internal/analysis"
	"ConnSpectra/internal/config"
	_ "ConnSpectra/internal/engine/impl/lifetime" // Registers the result writers
	"ConnSpectra/internal/engine/manager"
	"ConnSpectra/internal/factory"
	"ConnSpectra/internal/logging"
	"ConnSpectra/internal/notification"
	"ConnSpectra/internal/probe"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file (built-in defaults when empty)")
	attackBegin := flag.Float64("attack-begin", -1, "Attack start in seconds since the first TCP packet, overrides the config")
	attackFinish := flag.Float64("attack-finish", -1, "Attack end in seconds since the first TCP packet, overrides the config")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <capture.pcap> [capture.pcap...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// 1. Get capture paths from command-line arguments
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	// 2. Load configuration
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *attackBegin >= 0 {
		cfg.Analysis.AttackBegin = *attackBegin
	}
	if *attackFinish >= 0 {
		cfg.Analysis.AttackFinish = *attackFinish
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	if err := run(cfg, flag.Args()); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	log.Println("Analysis complete.")
}

func run(cfg *config.Config, paths []string) error {
	window := analysis.Window{Begin: cfg.Analysis.AttackBegin, Finish: cfg.Analysis.AttackFinish}

	// 3. Initialize modules
	writers, err := factory.CreateWriters(cfg)
	if err != nil {
		return fmt.Errorf("failed to create writers: %w", err)
	}

	var opts []manager.Option
	if cfg.NATS.Enabled {
		pub, err := probe.NewPublisher(cfg.NATS)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer pub.Close()
		opts = append(opts, manager.WithPublisher(pub))
	}
	if cfg.Alerter.Enabled {
		a, err := alerter.NewAlerter(&cfg.Alerter, window, notification.New(cfg.SMTP))
		if err != nil {
			return fmt.Errorf("failed to create alerter: %w", err)
		}
		opts = append(opts, manager.WithChecker(a))
		log.Println("Alerter enabled and initialized.")
	}

	managerImpl, err := manager.NewManager(cfg, writers, opts...)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer func() {
		if err := managerImpl.Close(); err != nil {
			log.Printf("Error closing writers: %v", err)
		}
	}()
	log.Println("Manager initialized.")

	// 4. Run until every capture is reconstructed or a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports, err := managerImpl.Run(ctx, paths)
	for _, report := range reports {
		summary := analysis.Analyze(report, window)
		log.Printf("Run '%s': %d connections, %d unterminated, %d packets, %d bytes.",
			report.RunID, len(report.Results), report.Unterminated(), report.TotalPackets, report.TotalBytes)
		for _, p := range analysis.Phases {
			s := summary.Phases[p]
			log.Printf("  %-6s connections=%d unterminated=%d disorder=%d mean=%.3fs median=%.3fs max=%.3fs",
				p, s.Connections, s.Unterminated, s.Disorder, s.MeanDuration, s.MedianDuration, s.MaxDuration)
		}
	}
	return err
}
