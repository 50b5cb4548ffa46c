package sources

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type snapshotRecord struct {
	Network string `json:"network"`
	ASN     string `json:"asn"`
}

// Snapshot reads a gzip-compressed newline-delimited JSON snapshot in the
// ipinfo lite layout, from a local path or an http(s) URL.
type Snapshot struct {
	location string
	client   *http.Client
	dump     *dumpIndex
}

func NewSnapshot(location string) *Snapshot {
	s := &Snapshot{location: location, client: newHTTPClient(10 * time.Minute)}
	s.dump = &dumpIndex{name: s.Name(), load: s.load}
	return s
}

func (s *Snapshot) Name() string { return "snapshot" }

func (s *Snapshot) FetchPrefixes(ctx context.Context, asn string) (Prefixes, error) {
	return s.dump.lookup(ctx, asn)
}

func (s *Snapshot) load(ctx context.Context) (asnIndex, error) {
	rc, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	return s.parse(gz)
}

func (s *Snapshot) open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(s.location, "http://") && !strings.HasPrefix(s.location, "https://") {
		f, err := os.Open(s.location)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download snapshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("download snapshot: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

func (s *Snapshot) parse(r io.Reader) (asnIndex, error) {
	idx := make(asnIndex)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec snapshotRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		if rec.Network == "" || rec.ASN == "" {
			continue
		}
		if !idx.add(rec.ASN, rec.Network) {
			skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if skipped > 0 {
		log.Warn("Skipped malformed snapshot records", "location", s.location, "records", skipped)
	}
	return idx, nil
}
