package main

import (
	"fmt"
	"os"

	"ConnSpectra/internal/engine/impl/lifetime"
	"ConnSpectra/internal/model"

	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <results.dat>")
		os.Exit(1)
	}

	results, err := lifetime.ReadResults(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to decode gob data: %v", err)
	}

	fmt.Printf("Decoded %d connections:\n", len(results))
	for _, res := range results {
		fmt.Printf("%-50s start=%10.6f duration=%10.6f %s\n",
			res.Key, res.StartOffset, res.Duration, model.ClassifyResult(res))
	}
}
