package stats

import (
	"testing"
	"time"

	"netwatch/internal/model"
)

func packet(t time.Time, src, dst string, srcPort, dstPort uint16, proto model.Protocol, length int, malformed bool) *model.PacketRecord {
	return &model.PacketRecord{
		Timestamp:          t,
		Protocol:           proto,
		SourceAddress:      src,
		DestinationAddress: dst,
		SourcePort:         srcPort,
		DestinationPort:    dstPort,
		Length:             length,
		IsMalformed:        malformed,
	}
}

func TestUpdateTotalsMatchProtocolSums(t *testing.T) {
	e := New()
	now := time.Now()
	e.Update(packet(now, "10.0.0.1", "10.0.0.2", 1, 80, model.HTTP, 100, false))
	e.Update(packet(now, "10.0.0.1", "10.0.0.3", 2, 53, model.DNS, 60, false))
	e.Update(packet(now, "10.0.0.1", "10.0.0.3", 2, 53, model.IPv4, 10, true))

	packets, bytes, errs := e.Totals()
	if packets != 3 {
		t.Fatalf("expected 3 packets, got %d", packets)
	}
	if bytes != 170 {
		t.Fatalf("expected 170 bytes, got %d", bytes)
	}
	if errs != 1 {
		t.Fatalf("expected 1 error, got %d", errs)
	}

	var sumPkts, sumBytes uint64
	for _, p := range []model.Protocol{model.HTTP, model.DNS, model.IPv4} {
		c := e.ProtocolStat(p)
		sumPkts += c.PacketCount
		sumBytes += c.ByteCount
	}
	if sumPkts != packets || sumBytes != bytes {
		t.Fatalf("protocol sums diverge from totals: pkts=%d bytes=%d", sumPkts, sumBytes)
	}
}

func TestFlowCanonicalizationIsSymmetric(t *testing.T) {
	now := time.Now()
	a := packet(now, "10.0.0.1", "10.0.0.2", 5000, 80, model.TCP, 100, false)
	b := packet(now, "10.0.0.2", "10.0.0.1", 80, 5000, model.TCP, 100, false)
	if model.FlowID(a) != model.FlowID(b) {
		t.Fatalf("expected symmetric flow ids, got %q vs %q", model.FlowID(a), model.FlowID(b))
	}
}

func TestRetransmissionDetection(t *testing.T) {
	e := New()
	now := time.Now()
	p1 := packet(now, "10.0.0.1", "10.0.0.2", 5000, 80, model.TCP, 60, false)
	p1.SequenceNumber = 42
	p2 := packet(now.Add(time.Millisecond), "10.0.0.1", "10.0.0.2", 5000, 80, model.TCP, 60, false)
	p2.SequenceNumber = 42

	e.Update(p1)
	e.Update(p2)

	c := e.ConnectionStat(model.FlowID(p1))
	if c.RetransmissionCount != 1 {
		t.Fatalf("expected retransmission count 1, got %d", c.RetransmissionCount)
	}
}

func TestConnectionEvictedAfterIdleTimeout(t *testing.T) {
	e := New()
	start := time.Now()
	p := packet(start, "10.0.0.1", "10.0.0.2", 5000, 80, model.TCP, 60, false)
	for i := 0; i < sweepEvery; i++ {
		e.Update(p)
	}

	flowID := model.FlowID(p)
	if len(e.ActiveConnections()) != 1 {
		t.Fatalf("expected flow to be active before timeout")
	}

	late := packet(start.Add(ConnectionTimeout+time.Minute), "10.0.0.3", "10.0.0.4", 1, 2, model.UDP, 10, false)
	for i := 0; i < sweepEvery; i++ {
		e.Update(late)
	}

	for _, id := range e.ActiveConnections() {
		if id == flowID {
			t.Fatalf("expected idle flow %s to be evicted", flowID)
		}
	}
}

func TestBandwidthHistoryBoundedAndSpaced(t *testing.T) {
	e := New()
	start := time.Now()

	for i := 0; i < 3601; i++ {
		for j := 0; j < 1000; j++ {
			e.Update(packet(start.Add(time.Duration(i)*time.Second), "10.0.0.1", "10.0.0.2", 1, 2, model.UDP, 100, false))
		}
	}

	hist := e.BandwidthHistory()
	if len(hist) != MaxBandwidthHistory {
		t.Fatalf("expected history length %d, got %d", MaxBandwidthHistory, len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].At.Sub(hist[i-1].At) < time.Second {
			t.Fatalf("samples %d and %d are less than 1s apart", i-1, i)
		}
	}

	first := hist[0].Bits
	if first != 800000 {
		t.Fatalf("expected 800000 bits in a 1000x100-byte window, got %v", first)
	}
}

func TestAverageBandwidthEqualsMean(t *testing.T) {
	e := New()
	start := time.Now()
	for i := 0; i < 5; i++ {
		for j := 0; j < 10; j++ {
			e.Update(packet(start.Add(time.Duration(i)*time.Second), "10.0.0.1", "10.0.0.2", 1, 2, model.UDP, 50, false))
		}
	}

	hist := e.BandwidthHistory()
	var sum float64
	for _, s := range hist {
		sum += s.Bits
	}
	want := sum / float64(len(hist))
	got := e.AverageBandwidth()
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("average bandwidth %v does not match mean %v", got, want)
	}
}

func TestResetClearsEverything(t *testing.T) {
	e := New()
	now := time.Now()
	e.Update(packet(now, "10.0.0.1", "10.0.0.2", 1, 80, model.HTTP, 100, false))
	e.Reset()

	packets, bytes, errs := e.Totals()
	if packets != 0 || bytes != 0 || errs != 0 {
		t.Fatalf("expected zeroed totals after reset, got %d/%d/%d", packets, bytes, errs)
	}
	if len(e.BandwidthHistory()) != 0 {
		t.Fatalf("expected empty bandwidth history after reset")
	}
	if len(e.ActiveConnections()) != 0 {
		t.Fatalf("expected no active connections after reset")
	}
}

func TestTopProtocolsRanksDNSAfterUDPQuery(t *testing.T) {
	e := New()
	now := time.Now()
	e.Update(packet(now, "10.0.0.1", "8.8.8.8", 40000, 53, model.DNS, 70, false))

	top := e.TopProtocols(5)
	if len(top) != 1 || top[0].Protocol != model.DNS {
		t.Fatalf("expected DNS to surface in top protocols, got %+v", top)
	}
}

func TestTopErrorsRanksByErrorCount(t *testing.T) {
	e := New()
	now := time.Now()
	e.Update(packet(now, "10.0.0.1", "10.0.0.2", 1, 80, model.HTTP, 100, false))
	e.Update(packet(now, "10.0.0.1", "10.0.0.3", 2, 53, model.IPv4, 10, true))
	e.Update(packet(now, "10.0.0.1", "10.0.0.3", 2, 53, model.IPv4, 10, true))
	e.Update(packet(now, "10.0.0.1", "10.0.0.4", 3, 443, model.TCP, 10, true))

	top := e.TopErrors(5)
	if len(top) != 2 {
		t.Fatalf("expected 2 protocols with errors, got %+v", top)
	}
	if top[0].Protocol != model.IPv4 || top[0].Count != 2 {
		t.Fatalf("expected IPv4 with 2 errors first, got %+v", top[0])
	}
	if top[1].Protocol != model.TCP || top[1].Count != 1 {
		t.Fatalf("expected TCP with 1 error second, got %+v", top[1])
	}

	for _, entry := range top {
		if entry.Protocol == model.HTTP {
			t.Fatalf("protocol with zero errors must not appear in TopErrors")
		}
	}
}
