package stream

import (
	"context"
	"net"
	"testing"
	"time"
)

// startTestListener runs a listener on an ephemeral loopback port and
// returns its bound address.
func startTestListener(t *testing.T, sink SampleSink, stats StatsInterface) (net.Addr, context.CancelFunc) {
	t.Helper()
	l := NewUDPListener(UDPListenerConfig{
		Address: "127.0.0.1:0",
		Stats:   stats,
		Sink:    sink,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go l.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := l.LocalAddr(); addr != nil {
			return addr, cancel
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	t.Fatal("listener did not bind in time")
	return nil, nil
}

func sendDatagram(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
}

func TestUDPListenerDeliversSamples(t *testing.T) {
	sink := &collectSink{}
	addr, cancel := startTestListener(t, sink, nil)
	defer cancel()

	sendDatagram(t, addr, `{"t":"mag","x":12.5,"y":-3.1,"z":44.0,"ts":1000}`)
	sendDatagram(t, addr, `{"t":"gyr","x":0.01,"y":0,"z":-0.02,"ts":2000}`)
	sendDatagram(t, addr, `{"t":"acc","x":0.1,"y":0.2,"z":9.8,"ts":3000}`)

	sink.waitFor(t, 3)
	kinds, samples := sink.snapshot()

	if kinds[0] != SampleField || kinds[1] != SampleGyro || kinds[2] != SampleAccel {
		t.Errorf("kinds = %v", kinds)
	}
	if samples[0].X != 12.5 || samples[0].UnixNanos != 1000 {
		t.Errorf("field sample = %+v", samples[0])
	}
	if samples[2].Z != 9.8 {
		t.Errorf("accel sample = %+v", samples[2])
	}
}

func TestUDPListenerCountsMalformed(t *testing.T) {
	sink := &collectSink{}
	stats := NewSampleStats()
	addr, cancel := startTestListener(t, sink, stats)
	defer cancel()

	sendDatagram(t, addr, `not json at all`)
	sendDatagram(t, addr, `{"t":"tmp","x":1,"y":2,"z":3,"ts":4}`)
	sendDatagram(t, addr, `{"t":"mag","x":1,"y":2,"z":3,"ts":4}`)

	sink.waitFor(t, 1)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats.mu.Lock()
		malformed := stats.malformedCount
		stats.mu.Unlock()
		if malformed == 2 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("malformed datagrams were not counted")
}

func TestUDPListenerStopsOnCancel(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{Address: "127.0.0.1:0", Sink: &collectSink{}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancellation")
	}
}
