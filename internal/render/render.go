// Package render formats merged networks into the text artifacts consumed
// by operators: per-ASN prefix files, a combined list and ufw rules.
package render

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"asnwall/internal/aggregate"
	"asnwall/internal/cidr"
	"asnwall/internal/merge"
	"asnwall/internal/support"
)

const (
	IPListFile   = "ip_list.txt"
	UFWRulesFile = "ufw_rules.txt"
)

// UFWRule holds the parts of an allow rule shared by every network.
type UFWRule struct {
	Proto string
	Ports []uint16
}

type Options struct {
	PerASN bool
	UFW    UFWRule
}

// Artifact is one file produced by Write.
type Artifact struct {
	Path     string
	Networks int
}

func PerASNFileName(asn string) string {
	return "asn" + asn + ".txt"
}

// PerASN writes the accepted networks of one ASN, IPv4 block first.
func PerASN(w io.Writer, asn string, accepted *merge.AcceptedSet) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# IPv4 prefixes for ASN %s\n", asn)
	for _, n := range accepted.ByFamily(cidr.IPv4) {
		fmt.Fprintln(bw, n.String())
	}
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "# IPv6 prefixes for ASN %s\n", asn)
	for _, n := range accepted.ByFamily(cidr.IPv6) {
		fmt.Fprintln(bw, n.String())
	}

	return bw.Flush()
}

// IPList writes one network per line in comparator order.
func IPList(w io.Writer, networks []cidr.Network) error {
	bw := bufio.NewWriter(w)
	for _, n := range sorted(networks) {
		fmt.Fprintln(bw, n.String())
	}
	return bw.Flush()
}

// UFWRules writes one "ufw allow" line per network.
func UFWRules(w io.Writer, networks []cidr.Network, rule UFWRule) error {
	if len(rule.Ports) == 0 {
		return errors.New("render: ufw rule has no ports")
	}
	proto := rule.Proto
	if proto == "" {
		proto = "tcp"
	}
	ports := joinPorts(rule.Ports)

	bw := bufio.NewWriter(w)
	for _, n := range sorted(networks) {
		fmt.Fprintf(bw, "ufw allow proto %s from %s to any port %s\n", proto, n, ports)
	}
	return bw.Flush()
}

// WritePerASN renders r into dir/asn<N>.txt.
func WritePerASN(dir string, r aggregate.ASNResult) (Artifact, error) {
	path := filepath.Join(dir, PerASNFileName(r.ASN))
	var buf bytes.Buffer
	if err := PerASN(&buf, r.ASN, r.Accepted); err != nil {
		return Artifact{}, err
	}
	if err := support.WriteFileAtomic(path, &buf); err != nil {
		return Artifact{}, fmt.Errorf("render: write %s: %w", path, err)
	}
	return Artifact{Path: path, Networks: r.Accepted.Len()}, nil
}

// Write renders every artifact of res into outDir. Each file is replaced
// atomically; a failure on one file does not stop the others.
func Write(outDir string, res *aggregate.Result, opts Options) ([]Artifact, error) {
	var (
		artifacts []Artifact
		errs      []error
	)

	if opts.PerASN {
		for _, r := range res.ASNs {
			a, err := WritePerASN(outDir, r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			artifacts = append(artifacts, a)
		}
	}

	global := res.Global.Members()

	write := func(name string, fn func(io.Writer) error) {
		path := filepath.Join(outDir, name)
		var buf bytes.Buffer
		if err := fn(&buf); err != nil {
			errs = append(errs, fmt.Errorf("render: %s: %w", name, err))
			return
		}
		if err := support.WriteFileAtomic(path, &buf); err != nil {
			errs = append(errs, fmt.Errorf("render: write %s: %w", path, err))
			return
		}
		artifacts = append(artifacts, Artifact{Path: path, Networks: len(global)})
	}

	write(IPListFile, func(w io.Writer) error { return IPList(w, global) })
	write(UFWRulesFile, func(w io.Writer) error { return UFWRules(w, global, opts.UFW) })

	for _, a := range artifacts {
		log.Debug("Artifact written", "path", a.Path, "networks", a.Networks)
	}
	return artifacts, errors.Join(errs...)
}

func sorted(networks []cidr.Network) []cidr.Network {
	out := append([]cidr.Network(nil), networks...)
	cidr.Sort(out)
	return out
}

func joinPorts(ports []uint16) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}
