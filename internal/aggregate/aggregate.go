// Package aggregate collects prefixes for a list of ASNs from every
// configured source and folds them into one non-overlapping set.
package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"asnwall/internal/cidr"
	"asnwall/internal/collector"
	"asnwall/internal/geolite"
	"asnwall/internal/merge"
	"asnwall/internal/sources"
)

// Auditor cross-checks the networks accepted for an ASN. It must be safe
// for concurrent use.
type Auditor interface {
	Audit(asn string, networks []cidr.Network) []geolite.Mismatch
}

// SourceReport describes what one source contributed to one ASN.
type SourceReport struct {
	Source     string
	Fetched    int
	Invalid    int
	Degenerate int
	Duplicates int
	Stats      merge.Stats
	Err        error
}

type ASNResult struct {
	ASN        string
	Accepted   *merge.AcceptedSet
	Sources    []SourceReport
	Mismatches []geolite.Mismatch
}

type Stats struct {
	ASNs           int
	SourceFailures int
	Invalid        int
	Degenerate     int
	Mismatches     int
	Uncovered      int
	PerASN         merge.Stats
	Global         merge.Stats
}

type Result struct {
	ASNs   []ASNResult
	Global *merge.AcceptedSet
	Stats  Stats
}

type Aggregator struct {
	sources     []sources.Source
	collector   *collector.Collector
	index       merge.IndexKind
	timeout     time.Duration
	concurrency int
	auditor     Auditor
}

type Option func(*Aggregator)

func WithCollector(c *collector.Collector) Option {
	return func(a *Aggregator) { a.collector = c }
}

func WithIndex(kind merge.IndexKind) Option {
	return func(a *Aggregator) { a.index = kind }
}

// WithFetchTimeout bounds every single source fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithConcurrency sets how many ASNs are collected at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

func WithAuditor(auditor Auditor) Option {
	return func(a *Aggregator) { a.auditor = auditor }
}

func New(srcs []sources.Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources:     srcs,
		collector:   collector.New(cidr.BareReject),
		index:       merge.IndexTrie,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.concurrency < 1 {
		a.concurrency = 1
	}
	return a
}

// Run builds one Accepted-Set per ASN, then folds them into the global set in
// the order of asns. Source failures are recorded in the result; only
// cancellation of ctx is returned as an error.
func (a *Aggregator) Run(ctx context.Context, asns []string) (*Result, error) {
	perASN := make([]ASNResult, len(asns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, asn := range asns {
		i, asn := i, asn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perASN[i] = a.collectASN(gctx, asn)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		ASNs:   perASN,
		Global: merge.NewAcceptedSet(merge.WithIndex(a.index)),
	}
	res.Stats.ASNs = len(perASN)

	for _, r := range perASN {
		for _, rep := range r.Sources {
			if rep.Err != nil {
				res.Stats.SourceFailures++
			}
			res.Stats.Invalid += rep.Invalid
			res.Stats.Degenerate += rep.Degenerate
		}
		res.Stats.Mismatches += len(r.Mismatches)
		res.Stats.PerASN.Add(r.Accepted.Stats())

		res.Stats.Global.Add(res.Global.Merge(r.Accepted))
	}

	res.Stats.Uncovered = a.checkCoverage(res)

	log.Info("Aggregation finished",
		"asns", res.Stats.ASNs,
		"networks", res.Global.Len(),
		"source_failures", res.Stats.SourceFailures,
		"invalid", res.Stats.Invalid,
		"degenerate", res.Stats.Degenerate,
	)
	return res, nil
}

func (a *Aggregator) collectASN(ctx context.Context, asn string) ASNResult {
	r := ASNResult{
		ASN:      asn,
		Accepted: merge.NewAcceptedSet(merge.WithIndex(a.index)),
		Sources:  make([]SourceReport, 0, len(a.sources)),
	}

	for _, src := range a.sources {
		rep := SourceReport{Source: src.Name()}

		prefixes, err := a.fetch(ctx, src, asn)
		if err != nil {
			rep.Err = err
			if errors.Is(err, sources.ErrUnavailable) {
				log.Warn("Source unavailable, treating as empty", "source", src.Name(), "asn", asn, "error", err)
			} else {
				log.Error("Source failed, treating as empty", "source", src.Name(), "asn", asn, "error", err)
			}
			r.Sources = append(r.Sources, rep)
			continue
		}

		rep.Fetched = prefixes.Len()
		for _, family := range [][]string{prefixes.IPv4, prefixes.IPv6} {
			batch := a.collector.Collect(src.Name(), asn, family)
			rep.Invalid += len(batch.Invalid)
			rep.Degenerate += len(batch.Degenerate)
			rep.Duplicates += batch.Duplicates
			rep.Stats.Add(r.Accepted.InsertAll(batch.Networks))
		}
		r.Sources = append(r.Sources, rep)
	}

	if a.auditor != nil && r.Accepted.Len() > 0 {
		r.Mismatches = a.auditor.Audit(asn, r.Accepted.Members())
		for _, m := range r.Mismatches {
			log.Warn("Network attributed to another ASN", "asn", asn, "network", m.Network, "attributed_to", m.AttributedTo, "organization", m.Organization)
		}
	}

	log.Info("Collected prefixes",
		"asn", asn,
		"ipv4", len(r.Accepted.ByFamily(cidr.IPv4)),
		"ipv6", len(r.Accepted.ByFamily(cidr.IPv6)),
	)
	return r
}

func (a *Aggregator) fetch(ctx context.Context, src sources.Source, asn string) (sources.Prefixes, error) {
	if a.timeout <= 0 {
		return src.FetchPrefixes(ctx, asn)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return src.FetchPrefixes(fetchCtx, asn)
}

// checkCoverage verifies that folding never dropped an address any per-ASN
// set covered and returns the number of networks that lost coverage.
func (a *Aggregator) checkCoverage(res *Result) int {
	covered, err := merge.Coverage(res.Global.Members())
	if err != nil {
		log.Error("Coverage check failed", "error", err)
		return 0
	}

	lost := 0
	for _, r := range res.ASNs {
		for _, n := range merge.Uncovered(covered, r.Accepted.Members()) {
			log.Error("Network lost coverage during fold", "asn", r.ASN, "network", n)
			lost++
		}
	}
	return lost
}
