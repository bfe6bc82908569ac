package domain

import (
	"fmt"
	"net"
)

// Address is a (ip, port) pair. Total order is defined by lexicographic
// (ip, port) compare.
type Address struct {
	IP   net.IP
	Port int
}

// ParseAddress parses a "host:port" string into an Address.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Address{}, fmt.Errorf("invalid ip in address %q", s)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Address{}, fmt.Errorf("invalid port in address %q: %w", s, err)
	}
	return Address{IP: ip, Port: port}, nil
}

// String renders the Address in host:port form.
func (a Address) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}

// Equal reports whether two Addresses denote the same (ip, port).
func (a Address) Equal(o Address) bool {
	return a.IP.Equal(o.IP) && a.Port == o.Port
}

// Compare orders Addresses lexicographically on (ip, port). It returns a
// negative number, zero, or a positive number as a is less than, equal to,
// or greater than o.
func (a Address) Compare(o Address) int {
	if c := compareIP(a.IP, o.IP); c != 0 {
		return c
	}
	return a.Port - o.Port
}

func compareIP(a, b net.IP) int {
	a16, b16 := a.To16(), b.To16()
	for i := range a16 {
		if a16[i] != b16[i] {
			return int(a16[i]) - int(b16[i])
		}
	}
	return 0
}
