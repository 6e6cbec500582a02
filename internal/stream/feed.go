package stream

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

// queuedSample pairs a sample with the stream it arrived on so a single
// queue preserves arrival order across streams.
type queuedSample struct {
	kind   string
	sample magrev.Sample
}

// Feed decouples concurrent sample producers (sockets, serial readers,
// replay tools) from the single-threaded detector pipeline. Push methods
// enqueue without blocking; when the queue is full the oldest sample is
// discarded so a stalled consumer sheds backlog instead of stalling the
// transport. One Run goroutine dequeues in arrival order and forwards to
// the consumer.
type Feed struct {
	queue    chan queuedSample
	consumer Consumer
	dropped  atomic.Int64
}

// DefaultFeedCapacity buffers one second of the reference sample rates
// across all three streams with margin.
const DefaultFeedCapacity = 256

// NewFeed creates a feed delivering to consumer. A capacity below one
// falls back to DefaultFeedCapacity.
func NewFeed(consumer Consumer, capacity int) *Feed {
	if capacity < 1 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{
		queue:    make(chan queuedSample, capacity),
		consumer: consumer,
	}
}

// PushField enqueues a magnetometer sample. Returns false if a sample had
// to be discarded to make room.
func (f *Feed) PushField(s magrev.Sample) bool { return f.push(SampleField, s) }

// PushGyro enqueues a gyroscope sample.
func (f *Feed) PushGyro(s magrev.Sample) bool { return f.push(SampleGyro, s) }

// PushAccel enqueues an accelerometer sample.
func (f *Feed) PushAccel(s magrev.Sample) bool { return f.push(SampleAccel, s) }

func (f *Feed) push(kind string, s magrev.Sample) bool {
	item := queuedSample{kind: kind, sample: s}
	select {
	case f.queue <- item:
		return true
	default:
	}

	// Queue full: drop the oldest queued sample, then retry once. The
	// retry can still lose the race against another producer, in which
	// case the new sample is the one dropped.
	select {
	case <-f.queue:
	default:
	}
	f.dropped.Add(1)
	select {
	case f.queue <- item:
	default:
	}
	return false
}

// Dropped returns the total number of samples discarded on overflow.
func (f *Feed) Dropped() int64 { return f.dropped.Load() }

// Run dequeues samples and forwards them to the consumer until ctx is
// cancelled. It is the only goroutine that touches the consumer, so the
// pipeline never sees interleaved calls.
func (f *Feed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-f.queue:
			switch item.kind {
			case SampleField:
				f.consumer.FeedField(item.sample)
			case SampleGyro:
				f.consumer.FeedGyro(item.sample)
			case SampleAccel:
				f.consumer.FeedAccel(item.sample)
			}
		}
	}
}
