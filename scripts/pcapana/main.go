package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"ConnSpectra/pkg/pcap"

	log "github.com/sirupsen/logrus"
)

func main() {
	count := flag.Int("n", 5, "Number of records to print, 0 for all")
	tcpOnly := flag.Bool("tcp", false, "Print TCP records only")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go [-n 5] [-tcp] <path_to_pcap_file>")
		os.Exit(1)
	}

	reader, err := pcap.NewReader(flag.Arg(0), pcap.WithProgressEvery(0))
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	printed := 0
	for *count == 0 || printed < *count {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("Parse error: %v", err)
		}
		if *tcpOnly && !rec.IsTCP() {
			continue
		}
		printed++
		if !rec.IsTCP() {
			fmt.Printf("[%s] %s/%s len=%d\n",
				rec.Timestamp.Format("15:04:05.000000"), rec.Network, rec.Transport, rec.Length)
			continue
		}
		fmt.Printf("[%s] %s flags=%s len=%d\n",
			rec.Timestamp.Format("15:04:05.000000"), rec.Key(), rec.Flags, rec.Length)
	}
	fmt.Printf("%d of %d records printed (link type %s).\n", printed, reader.Count(), reader.LinkType())
}
