package merge

import (
	"fmt"

	"go4.org/netipx"

	"asnwall/internal/cidr"
)

// Coverage returns the set of addresses covered by networks.
func Coverage(networks []cidr.Network) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, n := range networks {
		b.AddPrefix(n.Prefix())
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("merge: build coverage: %w", err)
	}
	return set, nil
}

// Uncovered returns the networks from want that are not fully covered by have.
func Uncovered(have *netipx.IPSet, want []cidr.Network) []cidr.Network {
	var missing []cidr.Network
	for _, n := range want {
		if have == nil || !have.ContainsPrefix(n.Prefix()) {
			missing = append(missing, n)
		}
	}
	return missing
}
