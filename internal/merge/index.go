package merge

import (
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/yl2chen/cidranger"

	"asnwall/internal/cidr"
)

// IndexKind selects the lookup structure behind an AcceptedSet.
type IndexKind uint8

const (
	IndexTrie IndexKind = iota
	IndexLinear
)

func (k IndexKind) String() string {
	if k == IndexLinear {
		return "linear"
	}
	return "trie"
}

func ParseIndexKind(raw string) (IndexKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "trie":
		return IndexTrie, nil
	case "linear":
		return IndexLinear, nil
	default:
		return IndexTrie, fmt.Errorf("merge: unknown index kind %q", raw)
	}
}

// index answers ancestor/descendant queries over the current members.
type index interface {
	add(n cidr.Network)
	remove(n cidr.Network)
	// ancestors returns members that contain n, n itself included.
	ancestors(n cidr.Network) []cidr.Network
	// descendants returns members strictly contained by n.
	descendants(n cidr.Network) []cidr.Network
}

type linearIndex struct {
	members map[cidr.Network]struct{}
}

func newLinearIndex() *linearIndex {
	return &linearIndex{members: make(map[cidr.Network]struct{})}
}

func (l *linearIndex) add(n cidr.Network)    { l.members[n] = struct{}{} }
func (l *linearIndex) remove(n cidr.Network) { delete(l.members, n) }

func (l *linearIndex) ancestors(n cidr.Network) []cidr.Network {
	var out []cidr.Network
	for m := range l.members {
		if m.Contains(n) {
			out = append(out, m)
		}
	}
	return out
}

func (l *linearIndex) descendants(n cidr.Network) []cidr.Network {
	var out []cidr.Network
	for m := range l.members {
		if m != n && n.Contains(m) {
			out = append(out, m)
		}
	}
	return out
}

// trieEntry lets the ranger return the stored network value.
type trieEntry struct {
	network cidr.Network
	ipnet   net.IPNet
}

func (e trieEntry) Network() net.IPNet { return e.ipnet }

type trieIndex struct {
	ranger cidranger.Ranger
}

func newTrieIndex() *trieIndex {
	return &trieIndex{ranger: cidranger.NewPCTrieRanger()}
}

func (t *trieIndex) add(n cidr.Network) {
	if err := t.ranger.Insert(trieEntry{network: n, ipnet: n.IPNet()}); err != nil {
		log.Error("trie index insert failed", "network", n, "error", err)
	}
}

func (t *trieIndex) remove(n cidr.Network) {
	if _, err := t.ranger.Remove(n.IPNet()); err != nil {
		log.Error("trie index remove failed", "network", n, "error", err)
	}
}

func (t *trieIndex) ancestors(n cidr.Network) []cidr.Network {
	entries, err := t.ranger.ContainingNetworks(net.IP(n.Addr().AsSlice()))
	if err != nil {
		log.Error("trie index lookup failed", "network", n, "error", err)
		return nil
	}
	var out []cidr.Network
	for _, e := range entries {
		m := entryNetwork(e)
		if m.IsValid() && m.Contains(n) {
			out = append(out, m)
		}
	}
	return out
}

func (t *trieIndex) descendants(n cidr.Network) []cidr.Network {
	entries, err := t.ranger.CoveredNetworks(n.IPNet())
	if err != nil {
		log.Error("trie index lookup failed", "network", n, "error", err)
		return nil
	}
	var out []cidr.Network
	for _, e := range entries {
		m := entryNetwork(e)
		if m.IsValid() && m != n && n.Contains(m) {
			out = append(out, m)
		}
	}
	return out
}

func entryNetwork(e cidranger.RangerEntry) cidr.Network {
	if te, ok := e.(trieEntry); ok {
		return te.network
	}
	ipnet := e.Network()
	n, err := cidr.Parse(ipnet.String(), cidr.BareReject)
	if err != nil {
		return cidr.Network{}
	}
	return n
}
