// Package stream ingests sensor samples from the transports the counter
// supports (UDP datagrams, serial lines, pcap captures, sample logs) and
// funnels them through a bounded queue into the single-threaded detection
// pipeline.
package stream

import "github.com/banshee-data/rotation.report/internal/magrev"

// SampleSink accepts samples from an ingestion source. Push methods report
// false when the sample was dropped.
type SampleSink interface {
	PushField(s magrev.Sample) bool
	PushGyro(s magrev.Sample) bool
	PushAccel(s magrev.Sample) bool
}

// Consumer is the downstream pipeline fed by a Feed. *magrev.Manager
// satisfies it.
type Consumer interface {
	FeedField(s magrev.Sample)
	FeedGyro(s magrev.Sample)
	FeedAccel(s magrev.Sample)
}

// Tee fans each pushed sample out to every sink, typically the live feed
// plus a log recorder. Its result is false if any sink dropped the sample.
type Tee []SampleSink

func (t Tee) PushField(s magrev.Sample) bool { return t.push(s, SampleField) }
func (t Tee) PushGyro(s magrev.Sample) bool  { return t.push(s, SampleGyro) }
func (t Tee) PushAccel(s magrev.Sample) bool { return t.push(s, SampleAccel) }

func (t Tee) push(s magrev.Sample, kind string) bool {
	ok := true
	for _, sink := range t {
		var accepted bool
		switch kind {
		case SampleField:
			accepted = sink.PushField(s)
		case SampleGyro:
			accepted = sink.PushGyro(s)
		case SampleAccel:
			accepted = sink.PushAccel(s)
		}
		ok = ok && accepted
	}
	return ok
}

// Sample kind tags used on the wire and in sample logs.
const (
	SampleField = "mag"
	SampleGyro  = "gyr"
	SampleAccel = "acc"
)

// datagram is the wire form shared by UDP payloads and .maglog lines:
// {"t":"mag","x":12.5,"y":-3.1,"z":44.0,"ts":1699999999000000000}
type datagram struct {
	Type string `json:"t"`
	magrev.Sample
}

// dispatch routes a decoded datagram to the matching sink method. Unknown
// types report an error so callers can count them.
func dispatch(sink SampleSink, d datagram) (accepted bool, known bool) {
	switch d.Type {
	case SampleField:
		return sink.PushField(d.Sample), true
	case SampleGyro:
		return sink.PushGyro(d.Sample), true
	case SampleAccel:
		return sink.PushAccel(d.Sample), true
	}
	return false, false
}
