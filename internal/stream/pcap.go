package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPReplay replays recorded UDP sensor traffic from a pcap capture into
// a sample sink. Only UDP packets addressed to Port are considered; their
// payloads are decoded as sample datagrams.
type PCAPReplay struct {
	r     io.Reader
	c     io.Closer
	sink  SampleSink
	stats StatsInterface

	// Port filters which UDP destination port carries sensor datagrams.
	Port int
	// Rate scales capture time: 1.0 replays in real time, 0 or below
	// replays as fast as possible.
	Rate float64
}

// OpenPCAPReplay opens a capture file for replay.
func OpenPCAPReplay(path string, port int, sink SampleSink, stats StatsInterface) (*PCAPReplay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pcap file: %w", err)
	}
	pr := NewPCAPReplay(f, port, sink, stats)
	pr.c = f
	return pr, nil
}

// NewPCAPReplay creates a replayer reading capture data from r.
func NewPCAPReplay(r io.Reader, port int, sink SampleSink, stats StatsInterface) *PCAPReplay {
	if stats == nil {
		stats = &noopStats{}
	}
	return &PCAPReplay{r: r, sink: sink, stats: stats, Port: port}
}

// Run replays the capture until EOF or ctx cancellation.
func (p *PCAPReplay) Run(ctx context.Context) error {
	if p.c != nil {
		defer p.c.Close()
	}

	reader, err := pcapgo.NewReader(p.r)
	if err != nil {
		return fmt.Errorf("reading pcap header: %w", err)
	}

	var lastCapture time.Time
	var lastWall time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading pcap packet: %w", err)
		}

		payload, ok := p.sensorPayload(data, reader.LinkType())
		if !ok {
			continue
		}

		// Rate control: sleep to match capture timing.
		if p.Rate > 0 && !lastCapture.IsZero() && ci.Timestamp.After(lastCapture) {
			captureDelta := time.Duration(float64(ci.Timestamp.Sub(lastCapture)) / p.Rate)
			wallDelta := time.Since(lastWall)
			if captureDelta > wallDelta {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(captureDelta - wallDelta):
				}
			}
		}
		lastCapture = ci.Timestamp
		lastWall = time.Now()

		p.handlePayload(payload)
	}
}

// sensorPayload extracts the UDP payload when the packet is addressed to
// the sensor port.
func (p *PCAPReplay) sensorPayload(data []byte, linkType layers.LinkType) ([]byte, bool) {
	packet := gopacket.NewPacket(data, linkType, gopacket.Default)
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp := udpLayer.(*layers.UDP)
	if p.Port != 0 && int(udp.DstPort) != p.Port {
		return nil, false
	}
	return udp.Payload, true
}

func (p *PCAPReplay) handlePayload(payload []byte) {
	p.stats.AddPacket(len(payload))

	var d datagram
	if err := json.Unmarshal(payload, &d); err != nil {
		p.stats.AddMalformed()
		return
	}
	accepted, known := dispatch(p.sink, d)
	if !known {
		p.stats.AddMalformed()
		return
	}
	if !accepted {
		p.stats.AddDropped()
		return
	}
	p.stats.AddSample()
}
