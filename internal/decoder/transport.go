package decoder

import (
	"encoding/binary"

	"netwatch/internal/model"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
)

// decodeTransport dispatches on the IP next-protocol discriminator.
// transportOffset is the absolute offset of rest within data, always the
// real outer-header length, whichever IP version produced it.
func decodeTransport(rec *model.PacketRecord, data, rest []byte, transportOffset int, protocol byte) {
	switch protocol {
	case protocolTCP:
		decodeTCP(rec, data, rest, transportOffset)
	case protocolUDP:
		decodeUDP(rec, data, rest, transportOffset)
	case protocolICMP:
		rec.Protocol = model.ICMP
	default:
		// No further fields required for unrecognized transport protocols.
	}
}

func decodeUDP(rec *model.PacketRecord, data, rest []byte, transportOffset int) {
	if len(rest) < udpHeaderLen {
		rec.IsMalformed = true
		return
	}
	rec.Protocol = model.UDP
	rec.SourcePort = binary.BigEndian.Uint16(rest[0:2])
	rec.DestinationPort = binary.BigEndian.Uint16(rest[2:4])

	setPayload(rec, data, transportOffset+udpHeaderLen)
	refineApplicationProtocol(rec)
}

func decodeTCP(rec *model.PacketRecord, data, rest []byte, transportOffset int) {
	if len(rest) < tcpHeaderMinLen {
		rec.IsMalformed = true
		return
	}

	dataOffset := int(rest[12]>>4) * 4
	if dataOffset < tcpHeaderMinLen || len(rest) < dataOffset {
		rec.IsMalformed = true
		return
	}

	rec.Protocol = model.TCP
	rec.SourcePort = binary.BigEndian.Uint16(rest[0:2])
	rec.DestinationPort = binary.BigEndian.Uint16(rest[2:4])
	rec.SequenceNumber = binary.BigEndian.Uint32(rest[4:8])
	rec.AcknowledgmentNum = binary.BigEndian.Uint32(rest[8:12])
	rec.WindowSize = binary.BigEndian.Uint16(rest[14:16])

	setPayload(rec, data, transportOffset+dataOffset)
	refineApplicationProtocol(rec)
}

// setPayload bounds the payload into the original raw slice, never
// copying. payloadStart is an absolute offset into data.
func setPayload(rec *model.PacketRecord, data []byte, payloadStart int) {
	if payloadStart > len(data) {
		payloadStart = len(data)
	}
	rec.PayloadOffset = payloadStart
	rec.PayloadLength = len(data) - payloadStart
}

// refineApplicationProtocol overwrites the transport tag once a
// recognized application port is seen. TCP 80/443 and UDP 53/67/68 only;
// anything else is left at the transport-layer tag.
func refineApplicationProtocol(rec *model.PacketRecord) {
	switch rec.Protocol {
	case model.TCP:
		if rec.SourcePort == 80 || rec.DestinationPort == 80 {
			rec.Protocol = model.HTTP
		} else if rec.SourcePort == 443 || rec.DestinationPort == 443 {
			rec.Protocol = model.HTTPS
		}
	case model.UDP:
		if rec.SourcePort == 53 || rec.DestinationPort == 53 {
			rec.Protocol = model.DNS
		} else if rec.SourcePort == 67 || rec.DestinationPort == 67 ||
			rec.SourcePort == 68 || rec.DestinationPort == 68 {
			rec.Protocol = model.DHCP
		}
	}
}
