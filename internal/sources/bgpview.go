package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const defaultBGPViewURL = "https://api.bgpview.io"

type BGPViewMode uint8

const (
	// ModeParent reports the allocation each announced prefix belongs to.
	ModeParent BGPViewMode = iota
	// ModeExact reports the announced prefixes themselves.
	ModeExact
)

func ParseBGPViewMode(raw string) BGPViewMode {
	if strings.EqualFold(strings.TrimSpace(raw), "exact") {
		return ModeExact
	}
	return ModeParent
}

func (m BGPViewMode) String() string {
	if m == ModeExact {
		return "exact"
	}
	return "parent"
}

type bgpviewResponse struct {
	Status        string       `json:"status"`
	StatusMessage string       `json:"status_message"`
	Data          *bgpviewData `json:"data"`
}

type bgpviewData struct {
	IPv4Prefixes *[]bgpviewPrefix `json:"ipv4_prefixes"`
	IPv6Prefixes *[]bgpviewPrefix `json:"ipv6_prefixes"`
}

type bgpviewPrefix struct {
	Prefix string         `json:"prefix"`
	Parent *bgpviewParent `json:"parent"`
}

type bgpviewParent struct {
	Prefix string `json:"prefix"`
}

// BGPView queries the bgpview.io REST API, one request per ASN.
type BGPView struct {
	baseURL string
	mode    BGPViewMode
	client  *http.Client
}

func NewBGPView(baseURL string, mode BGPViewMode) *BGPView {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBGPViewURL
	}
	return &BGPView{
		baseURL: strings.TrimRight(baseURL, "/"),
		mode:    mode,
		client:  newHTTPClient(time.Minute),
	}
}

func (b *BGPView) Name() string { return "bgpview-" + b.mode.String() }

func (b *BGPView) FetchPrefixes(ctx context.Context, asn string) (Prefixes, error) {
	body, err := b.get(ctx, asn)
	if err != nil {
		return Prefixes{}, unavailable(b.Name(), asn, err)
	}

	prefixes, err := b.decode(asn, body)
	if err != nil {
		return Prefixes{}, unavailable(b.Name(), asn, err)
	}
	return prefixes, nil
}

func (b *BGPView) get(ctx context.Context, asn string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/asn/%s/prefixes", b.baseURL, url.PathEscape(asn))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func (b *BGPView) decode(asn string, body []byte) (Prefixes, error) {
	var payload bgpviewResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Prefixes{}, fmt.Errorf("decode response: %w", err)
	}
	if !strings.EqualFold(payload.Status, "ok") {
		return Prefixes{}, fmt.Errorf("api status %q: %s", payload.Status, payload.StatusMessage)
	}
	if payload.Data == nil {
		return Prefixes{}, errors.New("response has no data field")
	}
	if payload.Data.IPv4Prefixes == nil || payload.Data.IPv6Prefixes == nil {
		return Prefixes{}, errors.New("response data lacks ipv4_prefixes or ipv6_prefixes")
	}

	var out Prefixes
	out.IPv4 = b.pick(asn, *payload.Data.IPv4Prefixes)
	out.IPv6 = b.pick(asn, *payload.Data.IPv6Prefixes)
	return out, nil
}

func (b *BGPView) pick(asn string, entries []bgpviewPrefix) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))

	for _, e := range entries {
		value := e.Prefix
		if b.mode == ModeParent {
			value = ""
			if e.Parent != nil {
				value = e.Parent.Prefix
			}
			if value == "" {
				log.Debug("Prefix has no parent allocation", "asn", asn, "prefix", e.Prefix)
				continue
			}
		}
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
