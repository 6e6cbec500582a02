package stream

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// SerialReader ingests samples from a sensor board speaking a simple line
// protocol over a serial port:
//
//	MAG,12.5,-3.1,44.0,1699999999000000000
//	GYR,0.01,0.00,-0.02,1699999999000000000
//	ACC,0.1,0.2,9.8,1699999999000000000
type SerialReader struct {
	port  serial.Port
	sink  SampleSink
	stats StatsInterface
}

// OpenSerialReader opens portName at the given baud rate and wraps it in a
// SerialReader delivering to sink.
func OpenSerialReader(portName string, baudRate int, sink SampleSink, stats StatsInterface) (*SerialReader, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", portName, err)
	}
	return NewSerialReader(port, sink, stats), nil
}

// NewSerialReader wraps an already-open port. Tests pass a mock port here.
func NewSerialReader(port serial.Port, sink SampleSink, stats StatsInterface) *SerialReader {
	if stats == nil {
		stats = &noopStats{}
	}
	return &SerialReader{port: port, sink: sink, stats: stats}
}

// Monitor reads lines from the serial port and pushes parsed samples to
// the sink until the port closes or ctx is cancelled.
func (r *SerialReader) Monitor(ctx context.Context) error {
	defer r.port.Close()
	scan := bufio.NewScanner(r.port)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if !scan.Scan() {
				return scan.Err()
			}
			line := strings.TrimSpace(scan.Text())
			if line == "" {
				continue
			}
			r.stats.AddPacket(len(line))
			if err := r.handleLine(line); err != nil {
				r.stats.AddMalformed()
			}
		}
	}
}

// Close closes the serial port.
func (r *SerialReader) Close() error {
	return r.port.Close()
}

func (r *SerialReader) handleLine(line string) error {
	d, err := parseSampleLine(line)
	if err != nil {
		return err
	}
	accepted, known := dispatch(r.sink, d)
	if !known {
		return fmt.Errorf("unknown sample tag %q", d.Type)
	}
	if !accepted {
		r.stats.AddDropped()
		return nil
	}
	r.stats.AddSample()
	return nil
}

// parseSampleLine parses one protocol line into the shared datagram form.
func parseSampleLine(line string) (datagram, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return datagram{}, fmt.Errorf("expected 5 fields, got %d in %q", len(fields), line)
	}

	var d datagram
	switch fields[0] {
	case "MAG":
		d.Type = SampleField
	case "GYR":
		d.Type = SampleGyro
	case "ACC":
		d.Type = SampleAccel
	default:
		return datagram{}, fmt.Errorf("unknown sample tag %q", fields[0])
	}

	var axes [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return datagram{}, fmt.Errorf("parsing axis %d of %q: %w", i, line, err)
		}
		axes[i] = v
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil {
		return datagram{}, fmt.Errorf("parsing timestamp of %q: %w", line, err)
	}

	d.X, d.Y, d.Z = axes[0], axes[1], axes[2]
	d.UnixNanos = ts
	return d, nil
}
