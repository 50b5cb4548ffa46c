// Package testutil builds fixture files shared by package tests.
package testutil

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
)

// ASNNetwork is one network row of a fixture ASN database.
type ASNNetwork struct {
	CIDR         string
	ASN          uint32
	Organization string
}

// WriteASNDatabase writes a GeoLite2-ASN style database to dir and returns
// its path. ipVersion 6 builds the layout MaxMind ships: IPv4 rows live in
// the ::/96 subtree with the usual aliases.
func WriteASNDatabase(t *testing.T, dir string, ipVersion int, rows []ASNNetwork) string {
	t.Helper()

	writer, err := mmdbwriter.New(mmdbwriter.Options{
		DatabaseType:            "GeoLite2-ASN",
		Description:             map[string]string{"en": "asnwall test fixture"},
		IPVersion:               ipVersion,
		RecordSize:              24,
		IncludeReservedNetworks: true,
	})
	if err != nil {
		t.Fatalf("create mmdb writer: %v", err)
	}

	for _, row := range rows {
		_, network, err := net.ParseCIDR(row.CIDR)
		if err != nil {
			t.Fatalf("parse fixture network %q: %v", row.CIDR, err)
		}
		record := mmdbtype.Map{
			"autonomous_system_number":       mmdbtype.Uint32(row.ASN),
			"autonomous_system_organization": mmdbtype.String(row.Organization),
		}
		if err := writer.Insert(network, record); err != nil {
			t.Fatalf("insert fixture network %q: %v", row.CIDR, err)
		}
	}

	path := filepath.Join(dir, "GeoLite2-ASN.mmdb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create mmdb file: %v", err)
	}
	defer f.Close()

	if _, err := writer.WriteTo(f); err != nil {
		t.Fatalf("write mmdb file: %v", err)
	}
	return path
}
