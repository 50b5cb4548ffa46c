// Package sources fetches the raw prefixes an ASN announces from the
// supported data providers.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"asnwall/internal/config"
)

// ErrUnavailable wraps every fetch, transport or decoding failure. Callers
// treat it as an empty contribution.
var ErrUnavailable = errors.New("source unavailable")

const (
	userAgent        = "asnwall/1.0"
	maxResponseBytes = 10 << 20
)

// Prefixes holds the unparsed prefix strings of one ASN, split by family.
type Prefixes struct {
	IPv4 []string `json:"ipv4"`
	IPv6 []string `json:"ipv6"`
}

func (p Prefixes) Len() int { return len(p.IPv4) + len(p.IPv6) }

// add files a prefix under the family its text suggests.
func (p *Prefixes) add(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return
	}
	if strings.Contains(prefix, ":") {
		p.IPv6 = append(p.IPv6, prefix)
	} else {
		p.IPv4 = append(p.IPv4, prefix)
	}
}

type Source interface {
	Name() string
	FetchPrefixes(ctx context.Context, asn string) (Prefixes, error)
}

func unavailable(name, asn string, err error) error {
	return fmt.Errorf("%w: %s asn %s: %w", ErrUnavailable, name, asn, err)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Build constructs the sources enabled in cfg. When client is non-nil every
// source is wrapped in a Redis cache.
func Build(cfg config.Config, client *redis.Client) []Source {
	var out []Source

	s := cfg.Sources
	if s.BGPView.Enabled {
		out = append(out, NewBGPView(s.BGPView.BaseURL, ParseBGPViewMode(s.BGPView.Mode)))
	}
	if s.Table.Enabled {
		out = append(out, NewTable(s.Table.Path, s.Table.PrefixColumn, s.Table.ASNColumn))
	}
	if s.Snapshot.Enabled {
		out = append(out, NewSnapshot(s.Snapshot.Location))
	}
	if s.GeoLite.Enabled {
		out = append(out, NewGeoLiteASN(s.GeoLite.Path))
	}

	if client != nil {
		for i := range out {
			out[i] = NewCached(out[i], client, cfg.CacheTTL())
		}
	}
	return out
}
