package rtspclient

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bkataru-workshop/vdkio/errs"
)

// TransportProtocol selects UDP or TCP-interleaved delivery for one
// media's RTP/RTCP, per spec.md §4.E's transport-negotiation
// paragraph. Grounded on the teacher's pkg/base.StreamProtocol.
type TransportProtocol int

// Supported transports.
const (
	TransportUDP TransportProtocol = iota
	TransportTCP
)

// Transport is the negotiated state of one media's SETUP exchange:
// the client's requested parameters going out, and the server's
// echoed parameters coming back. Grounded on the teacher's
// pkg/headers/transport.go, narrowed to the unicast fields spec.md
// §4.E names.
type Transport struct {
	Protocol       TransportProtocol
	ClientPorts    [2]int // UDP: client_port=even/even+1
	ServerPorts    [2]int // UDP: server echoes server_port
	InterleavedIDs [2]int // TCP: interleaved=0-1
}

// MarshalRequest renders the Transport header value sent with SETUP.
func (t Transport) MarshalRequest() string {
	if t.Protocol == TransportTCP {
		return fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", t.InterleavedIDs[0], t.InterleavedIDs[1])
	}
	return fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", t.ClientPorts[0], t.ClientPorts[1])
}

// ParseTransport parses a Transport header value echoed by the
// server in a SETUP 200 response, filling in whichever of
// server_port/interleaved the server chose. The client must accept
// either per spec.md §4.E: this parser doesn't reject a UDP request
// answered with interleaved= or vice versa, it just reports what the
// server actually granted.
func ParseTransport(v string) (*Transport, error) {
	t := &Transport{}
	for _, part := range strings.Split(v, ";") {
		part = strings.TrimSpace(part)
		switch {
		case part == "RTP/AVP/TCP":
			t.Protocol = TransportTCP
		case part == "RTP/AVP" || part == "RTP/AVP/UDP":
			t.Protocol = TransportUDP
		case strings.HasPrefix(part, "server_port="):
			ports, err := parsePortPair(strings.TrimPrefix(part, "server_port="))
			if err != nil {
				return nil, err
			}
			t.ServerPorts = ports
			t.Protocol = TransportUDP
		case strings.HasPrefix(part, "client_port="):
			ports, err := parsePortPair(strings.TrimPrefix(part, "client_port="))
			if err != nil {
				return nil, err
			}
			t.ClientPorts = ports
		case strings.HasPrefix(part, "interleaved="):
			ids, err := parsePortPair(strings.TrimPrefix(part, "interleaved="))
			if err != nil {
				return nil, err
			}
			t.InterleavedIDs = ids
			t.Protocol = TransportTCP
		}
	}
	return t, nil
}

func parsePortPair(s string) ([2]int, error) {
	parts := strings.SplitN(s, "-", 2)
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return [2]int{}, errs.New(errs.ProtocolError, "rtspclient.ParseTransport", s, err)
	}
	if len(parts) == 1 {
		return [2]int{a, a + 1}, nil
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil {
		return [2]int{}, errs.New(errs.ProtocolError, "rtspclient.ParseTransport", s, err)
	}
	return [2]int{a, b}, nil
}
