package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/rotation.report/internal/monitoring"
)

// UDPListener receives sensor sample datagrams and pushes them into a
// sample sink. Each datagram is one JSON object in the shared wire form.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       StatsInterface
	sink        SampleSink
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       StatsInterface
	Sink        SampleSink
}

// NewUDPListener creates a new UDP listener with the provided
// configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil pointer dereferences in the datagram handling and logging paths.
	var stats StatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		sink:        config.Sink,
	}
}

// Start begins listening for sample datagrams and pushing them to the
// sink. It blocks until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP sample listener started on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	// Sample datagrams are small JSON objects; 512 bytes leaves margin.
	buffer := make([]byte, 512)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP sample listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			if err := l.handleDatagram(buffer[:n]); err != nil {
				monitoring.Logf("Error handling datagram from %v: %v", addr, err)
			}
		}
	}
}

// LocalAddr returns the bound address once Start has opened the socket,
// useful when listening on port 0.
func (l *UDPListener) LocalAddr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *UDPListener) handleDatagram(payload []byte) error {
	l.stats.AddPacket(len(payload))

	var d datagram
	if err := json.Unmarshal(payload, &d); err != nil {
		l.stats.AddMalformed()
		return fmt.Errorf("decoding sample datagram: %w", err)
	}

	accepted, known := dispatch(l.sink, d)
	if !known {
		l.stats.AddMalformed()
		return fmt.Errorf("unknown sample type %q", d.Type)
	}
	if !accepted {
		l.stats.AddDropped()
		return nil
	}
	l.stats.AddSample()
	return nil
}

// startStatsLogging periodically logs ingestion statistics. An initial
// report fires shortly after startup to avoid a long silence on first
// run.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
