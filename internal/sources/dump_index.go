package sources

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"asnwall/internal/asnlist"
)

// asnIndex maps a normalized ASN to its prefixes.
type asnIndex map[string]*Prefixes

func (idx asnIndex) add(rawASN, prefix string) bool {
	asn, err := asnlist.NormalizeASN(rawASN)
	if err != nil {
		return false
	}
	p, ok := idx[asn]
	if !ok {
		p = &Prefixes{}
		idx[asn] = p
	}
	p.add(prefix)
	return true
}

// dumpIndex loads a whole-table dump once and answers per-ASN lookups from
// memory. A failed load is remembered; every later lookup reports it.
type dumpIndex struct {
	name string
	load func(ctx context.Context) (asnIndex, error)

	mu     sync.Mutex
	loaded bool
	idx    asnIndex
	err    error
	group  singleflight.Group
}

func (d *dumpIndex) lookup(ctx context.Context, asn string) (Prefixes, error) {
	idx, err := d.get(ctx)
	if err != nil {
		return Prefixes{}, unavailable(d.name, asn, err)
	}
	if p, ok := idx[asn]; ok {
		return Prefixes{
			IPv4: append([]string(nil), p.IPv4...),
			IPv6: append([]string(nil), p.IPv6...),
		}, nil
	}
	return Prefixes{}, nil
}

func (d *dumpIndex) get(ctx context.Context) (asnIndex, error) {
	d.mu.Lock()
	if d.loaded {
		idx, err := d.idx, d.err
		d.mu.Unlock()
		return idx, err
	}
	d.mu.Unlock()

	// The load outlives any single fetch deadline.
	loadCtx := context.WithoutCancel(ctx)

	result, err, _ := d.group.Do("load", func() (interface{}, error) {
		idx, err := d.load(loadCtx)

		d.mu.Lock()
		d.loaded, d.idx, d.err = true, idx, err
		d.mu.Unlock()

		if err != nil {
			log.Error("Prefix dump could not be loaded", "source", d.name, "error", err)
		} else {
			log.Info("Prefix dump loaded", "source", d.name, "asns", len(idx))
		}
		return idx, err
	})
	if err != nil {
		return nil, err
	}
	idx, _ := result.(asnIndex)
	return idx, nil
}
