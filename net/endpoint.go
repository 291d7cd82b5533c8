package net

import (
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Identity used for endpoints that are neither host/port pairs nor
// ip addresses (e.g. in-memory pipes).
const UnknownIdentity = "unknown-endpoint"

// An endpoint describes the remote side of a handle.
type Endpoint interface {
	String() string
}

type HostPort struct {
	Host string
	Port int
}

func (h HostPort) String() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

type UnknownEndpoint struct {
	Desc string
}

func (u UnknownEndpoint) String() string {
	return u.Desc
}

// Returns the peer identity of an endpoint.  Identities are derived from
// the address alone, so two connections from the same host and port share
// an identity.
func Identity(e Endpoint) string {
	switch v := e.(type) {
	case HostPort:
		return v.String()
	case *HostPort:
		return v.String()
	default:
		return UnknownIdentity
	}
}

func EndpointOf(addr net.Addr) Endpoint {
	switch v := addr.(type) {
	case *net.TCPAddr:
		return HostPort{v.IP.String(), v.Port}
	case nil:
		return UnknownEndpoint{"nil"}
	default:
		return UnknownEndpoint{addr.String()}
	}
}

func SplitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errors.Wrapf(InvalidIPError, "Unable to parse address [%v]: %v", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errors.Wrapf(InvalidPortError, "Unable to parse port [%v]", portStr)
	}

	return host, port, nil
}

func validatePort(port int) error {
	if port < 0 || port > math.MaxUint16 {
		return errors.Wrapf(InvalidPortError, "Port [%v] out of range", port)
	}
	return nil
}

func validateHost(host string) error {
	if net.ParseIP(strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")) != nil {
		return nil
	}

	if !isHostname(host) {
		return errors.Wrapf(InvalidIPError, "Invalid host [%v]", host)
	}
	return nil
}

// RFC 1123 host names.  Names made up only of numeric labels are
// malformed ip addresses rather than host names.
func isHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if len(host) == 0 || len(host) > 253 {
		return false
	}

	numeric := true
	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= '0' && r <= '9':
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
				numeric = false
			default:
				return false
			}
		}
	}
	return !numeric
}
