package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

// MaglogExtension is the conventional file extension for sample logs.
const MaglogExtension = ".maglog"

// LogRecorder writes samples to a .maglog stream: one JSON object per
// line, in the shared wire form, in arrival order. It satisfies SampleSink
// so it can be teed next to the live feed.
type LogRecorder struct {
	mu  sync.Mutex
	w   *bufio.Writer
	c   io.Closer
	enc *json.Encoder
}

// NewLogRecorder creates a recorder writing to w. If w is also an
// io.Closer, Close closes it after flushing.
func NewLogRecorder(w io.Writer) *LogRecorder {
	bw := bufio.NewWriter(w)
	r := &LogRecorder{w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		r.c = c
	}
	return r
}

// PushField records a magnetometer sample.
func (r *LogRecorder) PushField(s magrev.Sample) bool { return r.record(SampleField, s) }

// PushGyro records a gyroscope sample.
func (r *LogRecorder) PushGyro(s magrev.Sample) bool { return r.record(SampleGyro, s) }

// PushAccel records an accelerometer sample.
func (r *LogRecorder) PushAccel(s magrev.Sample) bool { return r.record(SampleAccel, s) }

func (r *LogRecorder) record(kind string, s magrev.Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(datagram{Type: kind, Sample: s}) == nil
}

// Flush writes any buffered lines to the underlying writer.
func (r *LogRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Flush()
}

// Close flushes and closes the underlying writer when it is closable.
func (r *LogRecorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}

// LogReplay replays a .maglog stream into a sink, optionally paced by the
// recorded timestamps.
type LogReplay struct {
	r     io.Reader
	sink  SampleSink
	stats StatsInterface

	// Rate scales recorded time: 1.0 replays in real time, 2.0 at double
	// speed, and 0 or below replays as fast as possible.
	Rate float64
}

// NewLogReplay creates a replayer reading from r.
func NewLogReplay(r io.Reader, sink SampleSink, stats StatsInterface) *LogReplay {
	if stats == nil {
		stats = &noopStats{}
	}
	return &LogReplay{r: r, sink: sink, stats: stats}
}

// Run replays the log until EOF or ctx cancellation. Malformed lines are
// counted and skipped so a truncated recording still replays.
func (lr *LogReplay) Run(ctx context.Context) error {
	scan := bufio.NewScanner(lr.r)

	var lastSampleNs int64
	var lastWall time.Time

	for scan.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}
		lr.stats.AddPacket(len(line))

		var d datagram
		if err := json.Unmarshal(line, &d); err != nil {
			lr.stats.AddMalformed()
			continue
		}

		// Rate control: sleep to match recorded timing.
		if lr.Rate > 0 && lastSampleNs > 0 && d.UnixNanos > lastSampleNs {
			sampleDelta := time.Duration(float64(d.UnixNanos-lastSampleNs) / lr.Rate)
			wallDelta := time.Since(lastWall)
			if sampleDelta > wallDelta {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(sampleDelta - wallDelta):
				}
			}
		}
		lastSampleNs = d.UnixNanos
		lastWall = time.Now()

		accepted, known := dispatch(lr.sink, d)
		if !known {
			lr.stats.AddMalformed()
			continue
		}
		if !accepted {
			lr.stats.AddDropped()
			continue
		}
		lr.stats.AddSample()
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("reading sample log: %w", err)
	}
	return nil
}
