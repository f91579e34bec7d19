package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"time"

	"ConnSpectra/internal/synth"

	log "github.com/sirupsen/logrus"
)

func main() {
	outputFile := flag.String("o", "synflood.pcap", "Output pcap file path")
	duration := flag.Float64("duration", 140, "Capture length in seconds")
	attackBegin := flag.Float64("attack-begin", 20, "Flood start in seconds")
	attackFinish := flag.Float64("attack-finish", 120, "Flood end in seconds")
	benignRate := flag.Float64("benign-rate", 5, "Benign connections per second")
	floodRate := flag.Float64("flood-rate", 200, "Flood SYNs per second inside the attack window")
	resetShare := flag.Float64("reset-share", 0.1, "Share of benign connections closed with RST")
	seed := flag.Uint64("seed", 1, "Random seed")
	flag.Parse()

	if *attackFinish < *attackBegin || *duration <= 0 {
		log.Fatalf("Invalid timing: duration=%v attack=[%v, %v]", *duration, *attackBegin, *attackFinish)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	server := netip.MustParseAddr("10.0.0.100")
	at := func(sec float64) time.Time { return start.Add(time.Duration(sec * float64(time.Second))) }

	var conns []synth.Conn
	port := uint16(1024)
	nextPort := func() uint16 {
		port++
		if port == 0 {
			port = 1024
		}
		return port
	}

	// Benign clients: short connections all along the capture.
	for t := 0.0; t < *duration; t += rng.ExpFloat64() / *benignRate {
		c := synth.Conn{
			Client:     netip.AddrFrom4([4]byte{10, 0, 1, byte(1 + rng.IntN(50))}),
			Server:     server,
			ClientPort: nextPort(),
			ServerPort: 80,
			Open:       at(t),
			Duration:   time.Duration((0.05 + rng.Float64()*2) * float64(time.Second)),
			Close:      synth.CloseGraceful,
		}
		if rng.Float64() < *resetShare {
			c.Close = synth.CloseReset
		}
		conns = append(conns, c)
	}

	// Attacker: lone SYNs from spoofed sources inside the window.
	for t := *attackBegin; t < *attackFinish; t += rng.ExpFloat64() / *floodRate {
		conns = append(conns, synth.Conn{
			Client:     netip.AddrFrom4([4]byte{172, 16, byte(rng.IntN(256)), byte(1 + rng.IntN(254))}),
			Server:     server,
			ClientPort: uint16(1024 + rng.IntN(64511)),
			ServerPort: 80,
			Open:       at(t),
			Close:      synth.CloseNone,
		})
	}

	segs := synth.Interleave(conns)
	log.Printf("Generating %d packets for %d connections into %s...", len(segs), len(conns), *outputFile)
	if err := synth.WriteFile(*outputFile, segs); err != nil {
		log.Fatalf("Failed to write capture: %v", err)
	}
	fmt.Printf("Wrote %s: %d connections, %d packets.\n", *outputFile, len(conns), len(segs))
}
