// Package model holds the data types shared across the capture, decoder,
// statistics, and persistence layers.
package model

import "time"

// Protocol tags a PacketRecord with the most specific layer the decoder
// managed to recognize. Later layers overwrite earlier ones.
type Protocol uint8

const (
	Unknown Protocol = iota
	Ethernet
	IPv4
	IPv6
	TCP
	UDP
	ICMP
	HTTP
	HTTPS
	DNS
	DHCP
	ARP
)

var protocolNames = map[Protocol]string{
	Unknown:  "UNKNOWN",
	Ethernet: "ETHERNET",
	IPv4:     "IPv4",
	IPv6:     "IPv6",
	TCP:      "TCP",
	UDP:      "UDP",
	ICMP:     "ICMP",
	HTTP:     "HTTP",
	HTTPS:    "HTTPS",
	DNS:      "DNS",
	DHCP:     "DHCP",
	ARP:      "ARP",
}

// String renders the protocol using the same labels the persisted store
// and the statistics snapshots use.
func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseProtocol is the inverse of String, used when reconstructing a
// PacketRecord from a persisted row.
func ParseProtocol(s string) Protocol {
	for p, name := range protocolNames {
		if name == s {
			return p
		}
	}
	return Unknown
}

// PacketRecord is the immutable decoded form of one captured frame. It is
// constructed once by the decoder from borrowed capture bytes and never
// mutated afterward.
type PacketRecord struct {
	Raw       []byte
	Length    int
	Timestamp time.Time
	Protocol  Protocol

	SourceAddress      string
	DestinationAddress string
	SourcePort         uint16
	DestinationPort    uint16

	SequenceNumber     uint32
	AcknowledgmentNum  uint32
	WindowSize         uint16
	TTL                uint8
	TOS                uint8

	IsFragmented bool
	IsMalformed  bool

	PayloadOffset int
	PayloadLength int

	// ipVersion records which network layer was parsed (4, 6, or 0 if
	// none). It is set only by the decoder.
	ipVersion uint8
}

// SetIPVersion is used by the decoder package to record which network
// layer produced SourceAddress/DestinationAddress. It is not meant for
// use outside a decode call.
func (p *PacketRecord) SetIPVersion(v uint8) { p.ipVersion = v }

// Payload returns the slice of Raw covered by PayloadOffset/PayloadLength.
// It is always a valid sub-slice of Raw by construction.
func (p *PacketRecord) Payload() []byte {
	if p.PayloadLength == 0 {
		return nil
	}
	return p.Raw[p.PayloadOffset : p.PayloadOffset+p.PayloadLength]
}

func (p *PacketRecord) IsTCP() bool   { return p.Protocol == TCP || p.Protocol == HTTP || p.Protocol == HTTPS }
func (p *PacketRecord) IsUDP() bool   { return p.Protocol == UDP || p.Protocol == DNS || p.Protocol == DHCP }
func (p *PacketRecord) IsICMP() bool  { return p.Protocol == ICMP }
func (p *PacketRecord) IsARP() bool   { return p.Protocol == ARP }
func (p *PacketRecord) IsHTTP() bool  { return p.Protocol == HTTP }
func (p *PacketRecord) IsHTTPS() bool { return p.Protocol == HTTPS }
func (p *PacketRecord) IsDNS() bool   { return p.Protocol == DNS }

// IsIPv4 and IsIPv6 report the network layer the record was decoded from.
// They read the version the decoder recorded through SetIPVersion, since
// Protocol itself may have been refined past IPV4/IPV6 by a transport or
// application tag.
func (p *PacketRecord) IsIPv4() bool { return p.ipVersion == 4 }
func (p *PacketRecord) IsIPv6() bool { return p.ipVersion == 6 }
