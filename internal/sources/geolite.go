package sources

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oschwald/maxminddb-golang"
)

type geoLiteASNRecord struct {
	AutonomousSystemNumber uint `maxminddb:"autonomous_system_number"`
}

// GeoLiteASN walks every network of a GeoLite2-ASN style database and groups
// them by autonomous system number.
type GeoLiteASN struct {
	path string
	dump *dumpIndex
}

func NewGeoLiteASN(path string) *GeoLiteASN {
	g := &GeoLiteASN{path: path}
	g.dump = &dumpIndex{name: g.Name(), load: g.load}
	return g
}

func (g *GeoLiteASN) Name() string { return "geolite" }

func (g *GeoLiteASN) FetchPrefixes(ctx context.Context, asn string) (Prefixes, error) {
	return g.dump.lookup(ctx, asn)
}

func (g *GeoLiteASN) load(ctx context.Context) (asnIndex, error) {
	reader, err := maxminddb.Open(g.path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb: %w", err)
	}
	defer reader.Close()

	idx := make(asnIndex)
	networks := reader.Networks(maxminddb.SkipAliasedNetworks)
	for networks.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec geoLiteASNRecord
		subnet, err := networks.Network(&rec)
		if err != nil {
			return nil, fmt.Errorf("decode mmdb network: %w", err)
		}
		if rec.AutonomousSystemNumber == 0 {
			continue
		}
		idx.add(strconv.FormatUint(uint64(rec.AutonomousSystemNumber), 10), subnet.String())
	}
	if err := networks.Err(); err != nil {
		return nil, fmt.Errorf("walk mmdb: %w", err)
	}
	return idx, nil
}
