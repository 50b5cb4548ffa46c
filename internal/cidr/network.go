// Package cidr provides an immutable IP network value with the containment,
// overlap and ordering relations used to deduplicate announced prefixes.
package cidr

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/netip"
	"slices"
	"strings"
)

// ErrParse is wrapped by every error returned from Parse.
var ErrParse = errors.New("cidr: invalid network")

type Family uint8

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Width returns the address width in bits.
func (f Family) Width() int {
	if f == IPv4 {
		return 32
	}
	return 128
}

// BareAddressPolicy decides what Parse does with an address that has no
// "/length" suffix.
type BareAddressPolicy uint8

const (
	// BareReject makes a bare address a parse error.
	BareReject BareAddressPolicy = iota
	// BareHost turns a bare address into a full-width host route.
	BareHost
)

func (p BareAddressPolicy) String() string {
	if p == BareHost {
		return "host"
	}
	return "reject"
}

// ParseBarePolicy maps the configuration spelling of a policy to its value.
func ParseBarePolicy(raw string) (BareAddressPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "reject":
		return BareReject, nil
	case "host":
		return BareHost, nil
	default:
		return BareReject, fmt.Errorf("cidr: unknown bare address policy %q", raw)
	}
}

// Network is a normalized IP network: the base address never carries host
// bits. The zero value is invalid. Network is comparable and can be used as
// a map key.
type Network struct {
	p netip.Prefix
}

// Parse reads "address/length" notation. Host bits are cleared, so
// "10.1.2.3/8" yields 10.0.0.0/8.
func Parse(text string, policy BareAddressPolicy) (Network, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Network{}, fmt.Errorf("%w: empty input", ErrParse)
	}

	var (
		p   netip.Prefix
		err error
	)
	if strings.Contains(s, "/") {
		p, err = netip.ParsePrefix(s)
		if err != nil {
			return Network{}, fmt.Errorf("%w: %q: %v", ErrParse, s, err)
		}
	} else {
		if policy != BareHost {
			return Network{}, fmt.Errorf("%w: %q has no prefix length", ErrParse, s)
		}
		addr, perr := netip.ParseAddr(s)
		if perr != nil {
			return Network{}, fmt.Errorf("%w: %q: %v", ErrParse, s, perr)
		}
		p = netip.PrefixFrom(addr, addr.BitLen())
	}

	if p.Addr().Zone() != "" {
		return Network{}, fmt.Errorf("%w: %q carries a zone", ErrParse, s)
	}
	if p.Addr().Is4In6() {
		return Network{}, fmt.Errorf("%w: %q is an IPv4-mapped IPv6 prefix", ErrParse, s)
	}

	return Network{p: p.Masked()}, nil
}

// MustParse is Parse with BareReject that panics on error.
func MustParse(text string) Network {
	n, err := Parse(text, BareReject)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Network) IsValid() bool { return n.p.IsValid() }

func (n Network) Family() Family {
	if n.p.Addr().Is4() {
		return IPv4
	}
	return IPv6
}

func (n Network) Addr() netip.Addr     { return n.p.Addr() }
func (n Network) Bits() int            { return n.p.Bits() }
func (n Network) Prefix() netip.Prefix { return n.p }
func (n Network) String() string       { return n.p.String() }

// IPNet returns the network in net.IPNet form. IPv4 networks use the
// four-byte representation.
func (n Network) IPNet() net.IPNet {
	width := n.Family().Width()
	return net.IPNet{
		IP:   net.IP(n.p.Addr().AsSlice()),
		Mask: net.CIDRMask(n.p.Bits(), width),
	}
}

// NumAddresses returns 2^(width - bits).
func (n Network) NumAddresses() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(n.Family().Width()-n.p.Bits()))
}

// IsHost reports whether the network holds a single address.
func (n Network) IsHost() bool {
	return n.p.Bits() == n.Family().Width()
}

// Contains reports whether other lies entirely within n. A network contains
// itself; networks of different families never contain each other.
func (n Network) Contains(other Network) bool {
	if !n.p.IsValid() || !other.p.IsValid() {
		return false
	}
	if n.Family() != other.Family() || other.p.Bits() < n.p.Bits() {
		return false
	}
	return netip.PrefixFrom(other.p.Addr(), n.p.Bits()).Masked() == n.p
}

// Overlaps reports whether either network contains the other. CIDR blocks
// never partially overlap.
func (n Network) Overlaps(other Network) bool {
	return n.Contains(other) || other.Contains(n)
}

// Compare orders by family (IPv4 first), then base address, then prefix
// length with the shorter prefix first.
func (n Network) Compare(other Network) int {
	if nf, of := n.Family(), other.Family(); nf != of {
		if nf < of {
			return -1
		}
		return 1
	}
	if c := n.p.Addr().Compare(other.p.Addr()); c != 0 {
		return c
	}
	switch {
	case n.p.Bits() < other.p.Bits():
		return -1
	case n.p.Bits() > other.p.Bits():
		return 1
	}
	return 0
}

// Sort orders networks in place by Compare.
func Sort(networks []Network) {
	slices.SortFunc(networks, Network.Compare)
}

// Split partitions networks by family, preserving order.
func Split(networks []Network) (v4, v6 []Network) {
	for _, n := range networks {
		if n.Family() == IPv4 {
			v4 = append(v4, n)
		} else {
			v6 = append(v6, n)
		}
	}
	return v4, v6
}

// Strings renders networks in their canonical text form.
func Strings(networks []Network) []string {
	out := make([]string, 0, len(networks))
	for _, n := range networks {
		out = append(out, n.String())
	}
	return out
}
