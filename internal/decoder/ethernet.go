package decoder

import "encoding/binary"

const (
	ethernetHeaderLen = 14

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeARP  = 0x0806
)

// decodeEthernet reads the 14-byte Ethernet II header. It reports ok=false
// only when the frame is too short to hold the fixed header; an
// unrecognized ethertype is a successful decode with an UNKNOWN protocol
// tag, per contract.
func decodeEthernet(data []byte) (etherType uint16, payload []byte, offset int, ok bool) {
	if len(data) < ethernetHeaderLen {
		return 0, nil, 0, false
	}
	etherType = binary.BigEndian.Uint16(data[12:14])
	return etherType, data[ethernetHeaderLen:], ethernetHeaderLen, true
}
