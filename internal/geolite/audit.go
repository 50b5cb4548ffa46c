// Package geolite cross-checks merged prefixes against a local MaxMind
// GeoLite2-ASN database and keeps that database present on disk.
package geolite

import (
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"

	"asnwall/internal/cidr"
)

// Mismatch is a network the database attributes to another autonomous
// system than the one it was collected for.
type Mismatch struct {
	Network      cidr.Network
	ASN          string
	AttributedTo string
	Organization string
}

// Auditor answers ASN lookups from an opened GeoLite2-ASN database.
type Auditor struct {
	reader *geoip2.Reader
}

func Open(path string) (*Auditor, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geolite: open %s: %w", path, err)
	}
	return &Auditor{reader: reader}, nil
}

func (a *Auditor) Close() error {
	if a == nil || a.reader == nil {
		return nil
	}
	return a.reader.Close()
}

// Audit looks up the base address of every network. Networks the database
// does not know, or cannot answer for, are not reported.
func (a *Auditor) Audit(asn string, networks []cidr.Network) []Mismatch {
	var out []Mismatch
	for _, n := range networks {
		record, err := a.reader.ASN(net.IP(n.Addr().AsSlice()))
		if err != nil {
			log.Debug("GeoLite lookup skipped", "network", n, "error", err)
			continue
		}
		if record.AutonomousSystemNumber == 0 {
			continue
		}
		attributed := strconv.FormatUint(uint64(record.AutonomousSystemNumber), 10)
		if attributed == asn {
			continue
		}
		out = append(out, Mismatch{
			Network:      n,
			ASN:          asn,
			AttributedTo: attributed,
			Organization: record.AutonomousSystemOrganization,
		})
	}
	return out
}
