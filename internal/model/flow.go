package model

import "fmt"

// FlowID canonicalizes a TCP/UDP 4-tuple so that both directions of a
// conversation map to the same string: the lexicographically smaller
// endpoint is written first.
func FlowID(p *PacketRecord) string {
	src := fmt.Sprintf("%s:%d", p.SourceAddress, p.SourcePort)
	dst := fmt.Sprintf("%s:%d", p.DestinationAddress, p.DestinationPort)
	if src < dst {
		return src + "-" + dst
	}
	return dst + "-" + src
}
