package capture

import (
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

type linkInfo struct {
	// headerLen is the fixed link header size; -1 means variable.
	headerLen int
	decoder   gopacket.Decoder
}

// linkTable lists the link types a capture can run on.
var linkTable = map[layers.LinkType]linkInfo{
	layers.LinkTypeEthernet:       {headerLen: 14, decoder: layers.LinkTypeEthernet},
	layers.LinkTypeNull:           {headerLen: 4, decoder: layers.LinkTypeNull},
	layers.LinkTypeLoop:           {headerLen: 4, decoder: layers.LinkTypeLoop},
	layers.LinkTypeRaw:            {headerLen: 0, decoder: layers.LinkTypeRaw},
	12:                            {headerLen: 0, decoder: layers.LinkTypeRaw},
	14:                            {headerLen: 0, decoder: layers.LinkTypeRaw},
	layers.LinkTypeIPv4:           {headerLen: 0, decoder: layers.LayerTypeIPv4},
	layers.LinkTypeIPv6:           {headerLen: 0, decoder: layers.LayerTypeIPv6},
	layers.LinkTypeLinuxSLL:       {headerLen: 16, decoder: layers.LinkTypeLinuxSLL},
	layers.LinkTypeFDDI:           {headerLen: 13, decoder: layers.LinkTypeFDDI},
	layers.LinkTypeIEEE802_11:     {headerLen: 24, decoder: layers.LinkTypeIEEE802_11},
	layers.LinkTypePPP:            {headerLen: 2, decoder: layers.LinkTypePPP},
	226 /*DLT_IPNET*/ :            {headerLen: 24, decoder: gopacket.DecodePayload},
	layers.LinkTypeIEEE80211Radio: {headerLen: -1, decoder: layers.LinkTypeIEEE80211Radio},
}

func lookupLinkType(lt layers.LinkType) (linkInfo, bool) {
	info, ok := linkTable[lt]
	return info, ok
}

// ResolveLinkType accepts a DLT number or a DLT name such as EN10MB.
func ResolveLinkType(s string) (layers.LinkType, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return layers.LinkType(n), nil
	}
	v := pcap.DatalinkNameToVal(strings.ToUpper(s))
	if v < 0 {
		return 0, errors.Errorf("unknown link type %q", s)
	}
	return layers.LinkType(v), nil
}

// Counters tallies captured packets by protocol.
type Counters struct {
	Total int64
	TCP   int64
	UDP   int64
	SCTP  int64
	ICMP  int64
	OSPF  int64
	GRE   int64
	ARP   int64
	Other int64
}

func (c *Counters) count(info linkInfo, data []byte) {
	c.Total++
	if len(data) < info.headerLen {
		// truncated inside the link header, nothing to decode
		c.Other++
		return
	}
	pkt := gopacket.NewPacket(data, info.decoder, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	for _, l := range pkt.Layers() {
		switch l.LayerType() {
		case layers.LayerTypeTCP:
			c.TCP++
		case layers.LayerTypeUDP:
			c.UDP++
		case layers.LayerTypeSCTP:
			c.SCTP++
		case layers.LayerTypeICMPv4, layers.LayerTypeICMPv6:
			c.ICMP++
		case layers.LayerTypeOSPF:
			c.OSPF++
		case layers.LayerTypeGRE:
			c.GRE++
		case layers.LayerTypeARP:
			c.ARP++
		default:
			continue
		}
		return
	}
	c.Other++
}
