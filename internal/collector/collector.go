// Package collector turns raw prefix strings from a data source into
// validated networks.
package collector

import (
	"github.com/charmbracelet/log"

	"asnwall/internal/cidr"
)

// Batch is the result of collecting one source's prefixes for one ASN.
type Batch struct {
	Networks   []cidr.Network
	Invalid    []string
	Degenerate []string
	Duplicates int
}

type Collector struct {
	policy cidr.BareAddressPolicy
}

func New(policy cidr.BareAddressPolicy) *Collector {
	return &Collector{policy: policy}
}

// Collect parses raw in order. Malformed and single-address entries are
// skipped and logged; nothing here is fatal.
func (c *Collector) Collect(source, asn string, raw []string) Batch {
	var b Batch
	seen := make(map[cidr.Network]struct{}, len(raw))

	for _, entry := range raw {
		n, err := cidr.Parse(entry, c.policy)
		if err != nil {
			log.Warn("Skipping invalid network", "source", source, "asn", asn, "prefix", entry, "error", err)
			b.Invalid = append(b.Invalid, entry)
			continue
		}
		if n.IsHost() {
			log.Warn("Skipping single-address prefix", "source", source, "asn", asn, "prefix", entry)
			b.Degenerate = append(b.Degenerate, entry)
			continue
		}
		if _, dup := seen[n]; dup {
			b.Duplicates++
			continue
		}
		seen[n] = struct{}{}
		b.Networks = append(b.Networks, n)
	}

	return b
}
