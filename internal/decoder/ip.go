package decoder

import (
	"encoding/binary"
	"net/netip"

	"netwatch/internal/model"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40

	protocolTCP  = 6
	protocolUDP  = 17
	protocolICMP = 1
)

// fragmentMask matches the More-Fragments flag and the 13-bit fragment
// offset in the IPv4 flags/fragment-offset field.
const fragmentMask = 0x3FFF

// decodeIPv4 extracts the IPv4 header starting at data[offset:]. On a
// length violation it marks the record malformed and stops; otherwise it
// dispatches to the transport layer with the actual IPv4 header length,
// never a hardcoded one.
func decodeIPv4(rec *model.PacketRecord, data, rest []byte, offset int) {
	if len(rest) < ipv4HeaderMinLen {
		rec.Protocol = model.IPv4
		rec.IsMalformed = true
		return
	}

	ihl := int(rest[0] & 0x0F)
	headerLen := ihl * 4
	if headerLen < ipv4HeaderMinLen || len(rest) < headerLen {
		rec.Protocol = model.IPv4
		rec.IsMalformed = true
		return
	}

	rec.Protocol = model.IPv4
	rec.SetIPVersion(4)
	rec.TOS = rest[1]
	rec.TTL = rest[8]
	nextProto := rest[9]

	flagsOffset := binary.BigEndian.Uint16(rest[6:8])
	rec.IsFragmented = flagsOffset&fragmentMask != 0

	srcAddr, ok := netip.AddrFromSlice(rest[12:16])
	if !ok {
		rec.IsMalformed = true
		return
	}
	dstAddr, ok := netip.AddrFromSlice(rest[16:20])
	if !ok {
		rec.IsMalformed = true
		return
	}
	rec.SourceAddress = srcAddr.String()
	rec.DestinationAddress = dstAddr.String()

	transportOffset := offset + headerLen
	decodeTransport(rec, data, rest[headerLen:], transportOffset, nextProto)
}

// decodeIPv6 extracts the fixed 40-byte IPv6 header. Extension headers are
// not walked; the next-header value is treated directly as the transport
// protocol, matching the decoder's no-deep-reassembly contract.
func decodeIPv6(rec *model.PacketRecord, data, rest []byte, offset int) {
	if len(rest) < ipv6HeaderLen {
		rec.Protocol = model.IPv6
		rec.IsMalformed = true
		return
	}

	rec.Protocol = model.IPv6
	rec.SetIPVersion(6)
	nextHeader := rest[6]
	rec.TTL = rest[7]

	srcAddr, ok := netip.AddrFromSlice(rest[8:24])
	if !ok {
		rec.IsMalformed = true
		return
	}
	dstAddr, ok := netip.AddrFromSlice(rest[24:40])
	if !ok {
		rec.IsMalformed = true
		return
	}
	rec.SourceAddress = srcAddr.String()
	rec.DestinationAddress = dstAddr.String()

	// Unlike the source implementation this offset is the real IPv6
	// header length, not a borrowed sizeof(IPv4 header) constant.
	transportOffset := offset + ipv6HeaderLen
	decodeTransport(rec, data, rest[ipv6HeaderLen:], transportOffset, nextHeader)
}
