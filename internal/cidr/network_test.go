package cidr

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
)

func TestParseNormalizesHostBits(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"203.0.113.0/24", "203.0.113.0/24"},
		{"10.1.2.3/8", "10.0.0.0/8"},
		{" 192.168.1.77/30 ", "192.168.1.76/30"},
		{"2001:db8::1/32", "2001:db8::/32"},
		{"0.0.0.0/0", "0.0.0.0/0"},
		{"::/0", "::/0"},
	}

	for _, tc := range cases {
		got, err := Parse(tc.input, BareReject)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tc.input, err)
		}
		if got.String() != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	inputs := []string{
		"",
		"not-a-network",
		"10.0.0.0/33",
		"2001:db8::/129",
		"10.0.0.256/24",
		"10.0.0.0/",
		"::ffff:10.0.0.0/104",
		"203.0.113.5",
	}

	for _, input := range inputs {
		if _, err := Parse(input, BareReject); !errors.Is(err, ErrParse) {
			t.Errorf("Parse(%q) error = %v, want ErrParse", input, err)
		}
	}
}

func TestParseBareAddressPolicy(t *testing.T) {
	if _, err := Parse("203.0.113.5", BareReject); !errors.Is(err, ErrParse) {
		t.Fatalf("bare address with BareReject returned %v, want ErrParse", err)
	}

	n, err := Parse("203.0.113.5", BareHost)
	if err != nil {
		t.Fatalf("bare address with BareHost returned error: %v", err)
	}
	if n.String() != "203.0.113.5/32" || !n.IsHost() {
		t.Fatalf("bare address with BareHost = %s (host=%v), want 203.0.113.5/32 host", n, n.IsHost())
	}

	v6, err := Parse("2001:db8::5", BareHost)
	if err != nil {
		t.Fatalf("bare v6 address with BareHost returned error: %v", err)
	}
	if v6.Bits() != 128 || !v6.IsHost() {
		t.Fatalf("bare v6 address with BareHost = %s, want /128 host", v6)
	}
}

func TestParseBarePolicy(t *testing.T) {
	for raw, want := range map[string]BareAddressPolicy{"": BareReject, "reject": BareReject, "HOST": BareHost} {
		got, err := ParseBarePolicy(raw)
		if err != nil || got != want {
			t.Errorf("ParseBarePolicy(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := ParseBarePolicy("maybe"); err == nil {
		t.Fatal("ParseBarePolicy accepted an unknown value")
	}
}

func TestNumAddresses(t *testing.T) {
	cases := map[string]*big.Int{
		"10.0.0.0/8":       big.NewInt(1 << 24),
		"203.0.113.5/32":   big.NewInt(1),
		"2001:db8::/127":   big.NewInt(2),
		"2001:db8::1/128":  big.NewInt(1),
		"2001:db8::/64":    new(big.Int).Lsh(big.NewInt(1), 64),
		"0.0.0.0/0":        big.NewInt(1 << 32),
	}
	for input, want := range cases {
		if got := MustParse(input).NumAddresses(); got.Cmp(want) != 0 {
			t.Errorf("NumAddresses(%s) = %s, want %s", input, got, want)
		}
	}

	if MustParse("2001:db8::/127").IsHost() {
		t.Fatal("a /127 holds two addresses and is not a host")
	}
}

func TestContainsAndOverlaps(t *testing.T) {
	cases := []struct {
		a, b     string
		contains bool
		overlaps bool
	}{
		{"10.0.0.0/8", "10.1.0.0/16", true, true},
		{"10.1.0.0/16", "10.0.0.0/8", false, true},
		{"10.0.0.0/8", "10.0.0.0/8", true, true},
		{"10.0.0.0/8", "11.0.0.0/8", false, false},
		{"192.168.1.0/24", "192.168.0.0/24", false, false},
		{"0.0.0.0/0", "203.0.113.0/24", true, true},
		{"2001:db8::/32", "2001:db8:1::/48", true, true},
		{"::/0", "10.0.0.0/8", false, false},
		{"0.0.0.0/0", "2001:db8::/32", false, false},
	}

	for _, tc := range cases {
		a, b := MustParse(tc.a), MustParse(tc.b)
		if got := a.Contains(b); got != tc.contains {
			t.Errorf("%s.Contains(%s) = %v, want %v", a, b, got, tc.contains)
		}
		if got := a.Overlaps(b); got != tc.overlaps {
			t.Errorf("%s.Overlaps(%s) = %v, want %v", a, b, got, tc.overlaps)
		}
	}
}

func TestSortOrdersFamilyThenAddress(t *testing.T) {
	networks := []Network{
		MustParse("2001:db8::/32"),
		MustParse("192.168.1.0/24"),
		MustParse("10.0.0.0/8"),
		MustParse("10.0.0.0/16"),
		MustParse("2001:db7::/32"),
	}
	Sort(networks)

	want := []string{"10.0.0.0/8", "10.0.0.0/16", "192.168.1.0/24", "2001:db7::/32", "2001:db8::/32"}
	if got := Strings(networks); !reflect.DeepEqual(got, want) {
		t.Fatalf("Sort produced %v, want %v", got, want)
	}
}

func TestEqualityIsByNormalizedValue(t *testing.T) {
	a := MustParse("10.9.9.9/8")
	b := MustParse("10.0.0.0/8")
	if a != b {
		t.Fatalf("%s and %s should be equal after normalization", a, b)
	}

	set := map[Network]struct{}{a: {}}
	if _, ok := set[b]; !ok {
		t.Fatal("normalized networks should share a map key")
	}
}

func TestIPNetUsesFamilyWidth(t *testing.T) {
	v4 := MustParse("10.0.0.0/8").IPNet()
	if len(v4.IP) != 4 {
		t.Fatalf("IPv4 IPNet has %d-byte IP, want 4", len(v4.IP))
	}
	if ones, bits := v4.Mask.Size(); ones != 8 || bits != 32 {
		t.Fatalf("IPv4 IPNet mask = /%d of %d", ones, bits)
	}

	v6 := MustParse("2001:db8::/32").IPNet()
	if ones, bits := v6.Mask.Size(); ones != 32 || bits != 128 {
		t.Fatalf("IPv6 IPNet mask = /%d of %d", ones, bits)
	}
}

func TestSplit(t *testing.T) {
	v4, v6 := Split([]Network{MustParse("2001:db8::/32"), MustParse("10.0.0.0/8")})
	if len(v4) != 1 || len(v6) != 1 || v4[0].Family() != IPv4 || v6[0].Family() != IPv6 {
		t.Fatalf("Split returned v4=%v v6=%v", v4, v6)
	}
}
