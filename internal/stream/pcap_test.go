package stream

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type capturedDatagram struct {
	payload string
	dstPort int
	at      time.Time
}

// writeSensorCapture builds an in-memory pcap of UDP datagrams.
func writeSensorCapture(t *testing.T, datagrams []capturedDatagram) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}

	for _, d := range datagrams {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
			DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 10),
			DstIP:    net.IPv4(192, 168, 1, 20),
		}
		udp := &layers.UDP{
			SrcPort: 40000,
			DstPort: layers.UDPPort(d.dstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatal(err)
		}

		sbuf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(sbuf, opts, eth, ip, udp, gopacket.Payload(d.payload)); err != nil {
			t.Fatal(err)
		}

		data := sbuf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: d.at, CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	return buf
}

func TestPCAPReplayDeliversSensorDatagrams(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	capture := writeSensorCapture(t, []capturedDatagram{
		{`{"t":"mag","x":12.5,"y":-3.1,"z":44.0,"ts":1000}`, 6868, t0},
		{`{"t":"gyr","x":0.01,"y":0,"z":-0.02,"ts":2000}`, 6868, t0.Add(20 * time.Millisecond)},
		{`{"t":"mag","x":13.0,"y":-3.0,"z":43.5,"ts":3000}`, 6868, t0.Add(40 * time.Millisecond)},
	})

	sink := &collectSink{}
	replay := NewPCAPReplay(capture, 6868, sink, nil)
	if err := replay.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	kinds, samples := sink.snapshot()
	if len(samples) != 3 {
		t.Fatalf("replayed %d samples, want 3", len(samples))
	}
	if kinds[0] != SampleField || samples[0].X != 12.5 {
		t.Errorf("first sample = %s %+v", kinds[0], samples[0])
	}
	if kinds[1] != SampleGyro || samples[1].UnixNanos != 2000 {
		t.Errorf("second sample = %s %+v", kinds[1], samples[1])
	}
}

func TestPCAPReplayFiltersByPort(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	capture := writeSensorCapture(t, []capturedDatagram{
		{`{"t":"mag","x":1,"y":0,"z":0,"ts":1}`, 6868, t0},
		{`{"t":"mag","x":2,"y":0,"z":0,"ts":2}`, 9999, t0},
		{`{"t":"mag","x":3,"y":0,"z":0,"ts":3}`, 6868, t0},
	})

	sink := &collectSink{}
	replay := NewPCAPReplay(capture, 6868, sink, nil)
	if err := replay.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, samples := sink.snapshot()
	if len(samples) != 2 {
		t.Fatalf("replayed %d samples, want 2", len(samples))
	}
	if samples[0].X != 1 || samples[1].X != 3 {
		t.Errorf("wrong datagrams survived the port filter: %+v", samples)
	}
}

func TestPCAPReplayCountsMalformedPayloads(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	capture := writeSensorCapture(t, []capturedDatagram{
		{`corrupt payload`, 6868, t0},
		{`{"t":"mag","x":1,"y":0,"z":0,"ts":1}`, 6868, t0},
	})

	stats := NewSampleStats()
	sink := &collectSink{}
	replay := NewPCAPReplay(capture, 6868, sink, stats)
	if err := replay.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, samples := sink.snapshot()
	if len(samples) != 1 {
		t.Fatalf("replayed %d samples, want 1", len(samples))
	}
	stats.mu.Lock()
	malformed := stats.malformedCount
	stats.mu.Unlock()
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
}

func TestPCAPReplayPacedByCaptureTime(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	capture := writeSensorCapture(t, []capturedDatagram{
		{`{"t":"mag","x":1,"y":0,"z":0,"ts":1}`, 6868, t0},
		{`{"t":"mag","x":2,"y":0,"z":0,"ts":2}`, 6868, t0.Add(100 * time.Millisecond)},
	})

	replay := NewPCAPReplay(capture, 6868, &collectSink{}, nil)
	replay.Rate = 1.0
	start := time.Now()
	if err := replay.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("paced replay finished in %v, want >= ~100ms", elapsed)
	}
}
