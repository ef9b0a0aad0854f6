package decoder

import (
	"testing"
	"time"

	"netwatch/internal/model"
)

// buildEthIPv4TCP builds a minimal Ethernet/IPv4/TCP frame with no
// options and no payload beyond the header chain, plus whatever trailing
// bytes are requested.
func buildEthIPv4TCP(srcPort, dstPort uint16, seq uint32, payload []byte) []byte {
	buf := make([]byte, 0, 14+20+20+len(payload))
	buf = append(buf, make([]byte, 12)...) // dst+src MAC
	buf = append(buf, 0x08, 0x00)          // ethertype IPv4

	ipHeader := make([]byte, 20)
	ipHeader[0] = 0x45 // version 4, IHL 5
	put16(ipHeader[2:4], uint16(20+20+len(payload)))
	ipHeader[8] = 64   // TTL
	ipHeader[9] = 6    // TCP
	copy(ipHeader[12:16], []byte{10, 0, 0, 1})
	copy(ipHeader[16:20], []byte{10, 0, 0, 2})
	buf = append(buf, ipHeader...)

	tcpHeader := make([]byte, 20)
	put16(tcpHeader[0:2], srcPort)
	put16(tcpHeader[2:4], dstPort)
	put32(tcpHeader[4:8], seq)
	tcpHeader[12] = 5 << 4 // data offset 5 words = 20 bytes
	buf = append(buf, tcpHeader...)

	buf = append(buf, payload...)
	return buf
}

func put16(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func put32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func TestDecodeHTTPPortRefinement(t *testing.T) {
	raw := buildEthIPv4TCP(55000, 80, 1, nil)
	rec := Decode(raw, len(raw), time.Now())

	if rec.Protocol != model.HTTP {
		t.Fatalf("expected HTTP, got %s", rec.Protocol)
	}
	if rec.IsMalformed {
		t.Fatalf("expected well-formed record")
	}
	if rec.SourceAddress != "10.0.0.1" || rec.DestinationAddress != "10.0.0.2" {
		t.Fatalf("unexpected addresses: %s -> %s", rec.SourceAddress, rec.DestinationAddress)
	}
	if rec.PayloadOffset+rec.PayloadLength > len(rec.Raw) {
		t.Fatalf("payload bounds exceed raw: offset=%d length=%d raw=%d",
			rec.PayloadOffset, rec.PayloadLength, len(rec.Raw))
	}
}

func TestDecodeTruncatedIPv4IsMalformed(t *testing.T) {
	raw := buildEthIPv4TCP(1234, 80, 1, nil)
	truncated := raw[:14+10] // stop mid IPv4 header

	rec := Decode(truncated, len(truncated), time.Now())
	if !rec.IsMalformed {
		t.Fatalf("expected malformed record")
	}
	if rec.Protocol != model.IPv4 {
		t.Fatalf("expected protocol recorded as IPv4, got %s", rec.Protocol)
	}
}

func TestDecodeUDPDNS(t *testing.T) {
	buf := make([]byte, 0, 14+20+8)
	buf = append(buf, make([]byte, 12)...)
	buf = append(buf, 0x08, 0x00)

	ipHeader := make([]byte, 20)
	ipHeader[0] = 0x45
	put16(ipHeader[2:4], 20+8)
	ipHeader[8] = 64
	ipHeader[9] = 17 // UDP
	copy(ipHeader[12:16], []byte{192, 168, 0, 5})
	copy(ipHeader[16:20], []byte{192, 168, 0, 53})
	buf = append(buf, ipHeader...)

	udpHeader := make([]byte, 8)
	put16(udpHeader[0:2], 40000)
	put16(udpHeader[2:4], 53)
	buf = append(buf, udpHeader...)

	rec := Decode(buf, len(buf), time.Now())
	if rec.Protocol != model.DNS {
		t.Fatalf("expected DNS, got %s", rec.Protocol)
	}
}

func TestDecodeNeverFails(t *testing.T) {
	for _, n := range []int{0, 1, 5, 13, 14, 20} {
		raw := make([]byte, n)
		rec := Decode(raw, n, time.Now())
		if rec == nil {
			t.Fatalf("decode returned nil for length %d", n)
		}
		if rec.PayloadOffset+rec.PayloadLength > len(rec.Raw) {
			t.Fatalf("payload bounds violated for length %d", n)
		}
	}
}

func TestDecodeUnrecognizedEtherTypeIsUnknownNotMalformed(t *testing.T) {
	buf := make([]byte, 0, 14)
	buf = append(buf, make([]byte, 12)...)
	buf = append(buf, 0x12, 0x34) // ethertype not IPv4/IPv6/ARP

	rec := Decode(buf, len(buf), time.Now())
	if rec.Protocol != model.Unknown {
		t.Fatalf("expected UNKNOWN protocol, got %s", rec.Protocol)
	}
	if rec.IsMalformed {
		t.Fatalf("unrecognized ethertype is a successful decode, not malformed")
	}
}

func TestDecodeIPv6TransportOffsetNotHardcodedToIPv4(t *testing.T) {
	buf := make([]byte, 0, 14+40+20)
	buf = append(buf, make([]byte, 12)...)
	buf = append(buf, 0x86, 0xDD) // ethertype IPv6

	ipv6 := make([]byte, 40)
	ipv6[0] = 0x60 // version 6
	put16(ipv6[4:6], 20)
	ipv6[6] = 6 // next header TCP
	ipv6[7] = 64
	copy(ipv6[8:24], []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	copy(ipv6[24:40], []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2})
	buf = append(buf, ipv6...)

	tcpHeader := make([]byte, 20)
	put16(tcpHeader[0:2], 1111)
	put16(tcpHeader[2:4], 80)
	tcpHeader[12] = 5 << 4
	buf = append(buf, tcpHeader...)

	rec := Decode(buf, len(buf), time.Now())
	if rec.IsMalformed {
		t.Fatalf("expected well-formed IPv6/TCP record")
	}
	if rec.Protocol != model.HTTP {
		t.Fatalf("expected HTTP after port refinement, got %s", rec.Protocol)
	}
	if rec.DestinationPort != 80 {
		t.Fatalf("expected destination port 80, got %d", rec.DestinationPort)
	}
}
