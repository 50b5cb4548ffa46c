// Package asnlist loads the list of ASNs that drives a run.
package asnlist

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	maxListBytes = 4 << 20
	userAgent    = "asnwall/1.0"
)

var (
	// ErrEmpty is returned when a list holds no usable ASN.
	ErrEmpty = errors.New("asnlist: no valid ASN found")
	// ErrTooLarge is returned instead of parsing a list cut off mid-line.
	ErrTooLarge = errors.New("asnlist: list exceeds size limit")

	httpClient = &http.Client{Timeout: 30 * time.Second}
)

// Entry is one line of the list: "ASN|description".
type Entry struct {
	ASN         string
	Description string
}

// Load reads the list from an http(s) URL or a local file.
func Load(ctx context.Context, location string) ([]Entry, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("asnlist: no location configured")
	}

	rc, err := open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxListBytes+1))
	if err != nil {
		return nil, fmt.Errorf("asnlist: read %s: %w", location, err)
	}
	if len(data) > maxListBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, location, maxListBytes)
	}

	entries, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("asnlist: %s: %w", location, err)
	}
	return entries, nil
}

func open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("asnlist: open %s: %w", location, err)
		}
		return f, nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("asnlist: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asnlist: fetch %s: %w", location, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("asnlist: fetch %s: unexpected status %d: %s", location, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// Parse reads "ASN[|description]" lines. Blank lines and '#' comments are
// ignored, an "AS" prefix is accepted, invalid lines are logged and skipped
// and repeated ASNs keep their first occurrence.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		cols := strings.SplitN(line, "|", 2)
		asn, err := NormalizeASN(cols[0])
		if err != nil {
			log.Warn("Skipping invalid ASN line", "line", lineNo, "value", cols[0], "error", err)
			continue
		}
		if _, dup := seen[asn]; dup {
			continue
		}
		seen[asn] = struct{}{}

		entry := Entry{ASN: asn}
		if len(cols) == 2 {
			entry.Description = strings.TrimSpace(cols[1])
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	return entries, nil
}

// NormalizeASN strips whitespace and an optional "AS" prefix and checks the
// number fits in 32 bits.
func NormalizeASN(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) > 2 && strings.EqualFold(s[:2], "as") {
		s = s[2:]
	}
	if s == "" {
		return "", errors.New("empty ASN")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return "", fmt.Errorf("not a 32-bit ASN: %q", raw)
	}
	return strconv.FormatUint(n, 10), nil
}

// ASNs returns the ASN numbers in list order.
func ASNs(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ASN)
	}
	return out
}
