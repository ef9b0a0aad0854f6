// Package decoder turns raw captured frames into model.PacketRecord values
// by walking the link, network, transport, and application layers in
// order, bailing out to is_malformed on the first length violation.
package decoder

import (
	"time"

	"netwatch/internal/model"
)

// Decode is a pure function: it allocates nothing beyond the returned
// record, and the record's payload is a sub-slice of raw rather than a
// copy. It never returns an error: every frame, however short or
// malformed, yields a record.
func Decode(raw []byte, captureLength int, timestamp time.Time) *model.PacketRecord {
	rec := &model.PacketRecord{
		Raw:       raw,
		Length:    captureLength,
		Timestamp: timestamp,
		Protocol:  model.Unknown,
	}

	etherType, rest, offset, ok := decodeEthernet(raw)
	if !ok {
		rec.IsMalformed = true
		return rec
	}
	rec.Protocol = model.Ethernet

	switch etherType {
	case etherTypeIPv4:
		decodeIPv4(rec, raw, rest, offset)
	case etherTypeIPv6:
		decodeIPv6(rec, raw, rest, offset)
	case etherTypeARP:
		rec.Protocol = model.ARP
	default:
		// Unrecognized ethertype: a successful decode with an UNKNOWN tag,
		// not malformed.
		rec.Protocol = model.Unknown
	}

	return rec
}
