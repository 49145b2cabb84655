package capture

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...)
	assert.Nil(t, err)
	return buf.Bytes()
}

func TestCounters(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2}}
	tcp := &layers.TCP{SrcPort: 4242, DstPort: 80, DataOffset: 5}
	tcpPkt := serialize(t, eth, ip, tcp)

	udpIP := *ip
	udpIP.Protocol = layers.IPProtocolUDP
	udpPkt := serialize(t, eth, &udpIP, &layers.UDP{SrcPort: 53, DstPort: 5353})

	arpEth := *eth
	arpEth.EthernetType = layers.EthernetTypeARP
	arpPkt := serialize(t, &arpEth, &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: []byte{0, 1, 2, 3, 4, 5}, SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress: []byte{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{10, 0, 0, 2},
	})

	info, ok := lookupLinkType(layers.LinkTypeEthernet)
	assert.True(t, ok)
	var c Counters
	c.count(info, tcpPkt)
	c.count(info, tcpPkt)
	c.count(info, udpPkt)
	c.count(info, arpPkt)
	c.count(info, []byte{1, 2, 3})
	assert.Equal(t, Counters{Total: 5, TCP: 2, UDP: 1, ARP: 1, Other: 1}, c)
}

func TestCountersShortLinkHeader(t *testing.T) {
	sll, ok := lookupLinkType(layers.LinkTypeLinuxSLL)
	assert.True(t, ok)
	radio, ok := lookupLinkType(layers.LinkTypeIEEE80211Radio)
	assert.True(t, ok)

	var c Counters
	// shorter than the 16 byte cooked header
	c.count(sll, make([]byte, 15))
	// a variable length header is left to the decoder
	c.count(radio, nil)
	assert.Equal(t, Counters{Total: 2, Other: 2}, c)
}

func TestLinkTable(t *testing.T) {
	info, ok := lookupLinkType(layers.LinkTypeEthernet)
	assert.True(t, ok)
	assert.Equal(t, 14, info.headerLen)
	info, ok = lookupLinkType(layers.LinkTypeLinuxSLL)
	assert.True(t, ok)
	assert.Equal(t, 16, info.headerLen)
	_, ok = lookupLinkType(layers.LinkType(4242))
	assert.False(t, ok)

	lt, err := ResolveLinkType("1")
	assert.Nil(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, lt)
	lt, err = ResolveLinkType("en10mb")
	assert.Nil(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, lt)
	_, err = ResolveLinkType("NOT_A_DLT")
	assert.NotNil(t, err)
}

func TestLooksLikeDisplayFilter(t *testing.T) {
	cases := map[string]bool{
		"ip.addr == 10.0.0.1":       true,
		"tcp.port eq 80":            true,
		"http.request":              true,
		"frame.len > 100":           true,
		"tcp port 80":               false,
		"host 10.0.0.1 and not arp": false,
		"":                          false,
	}
	for expr, want := range cases {
		assert.Equal(t, want, LooksLikeDisplayFilter(expr), expr)
	}
}
