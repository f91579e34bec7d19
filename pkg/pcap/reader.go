package pcap

import (
	"ConnSpectra/internal/engine/protocol"
	"ConnSpectra/internal/model"
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

const defaultProgressEvery = 100000

// pcapngMagic is the block type of a pcapng Section Header Block.
const pcapngMagic = 0x0A0D0D0A

type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader reads packets from a pcap or pcapng file.
type Reader struct {
	path          string
	file          *os.File
	source        packetDataSource
	linkType      layers.LinkType
	progressEvery uint64
	read          uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithProgressEvery logs a progress line every n packets. Zero disables it.
func WithProgressEvery(n int) Option {
	return func(r *Reader) {
		if n < 0 {
			n = 0
		}
		r.progressEvery = uint64(n)
	}
}

// NewReader opens the capture at filePath. The file format is detected from its
// magic number.
func NewReader(filePath string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	r := &Reader{path: filePath, file: file, progressEvery: defaultProgressEvery}
	for _, opt := range opts {
		opt(r)
	}

	br := bufio.NewReader(file)
	magic, err := br.Peek(4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read capture header of '%s': %w", filePath, err)
	}

	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to open pcapng '%s': %w", filePath, err)
		}
		r.source, r.linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to open pcap '%s': %w", filePath, err)
		}
		r.source, r.linkType = pr, pr.LinkType()
	}

	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// LinkType returns the link type of the capture.
func (r *Reader) LinkType() layers.LinkType {
	return r.linkType
}

// Count returns the number of packets read so far.
func (r *Reader) Count() uint64 {
	return r.read
}

// Next returns the next packet record, or io.EOF at the end of the capture.
// A capture cut off in the middle of a packet ends cleanly at the last complete one.
func (r *Reader) Next() (*model.PacketRecord, error) {
	data, ci, err := r.source.ReadPacketData()
	if err == io.EOF {
		return nil, io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		log.Warnf("Capture '%s' is truncated after %d packets, ignoring the partial packet.", r.path, r.read)
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read packet %d of '%s': %w", r.read+1, r.path, err)
	}

	r.read++
	if r.progressEvery > 0 && r.read%r.progressEvery == 0 {
		log.Printf("%d packets read from '%s'...", r.read, r.path)
	}

	return protocol.ParseData(data, r.linkType, ci)
}

// ReadPackets reads all packets from the capture and sends the parsed records to
// the provided channel. It closes the channel when done.
func (r *Reader) ReadPackets(out chan<- *model.PacketRecord) error {
	defer close(out)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		out <- rec
	}
}
