package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"asnwall/internal/support"
)

const (
	DefaultDownloadURL = "https://download.maxmind.com/app/geoip_download"
	asnEdition         = "GeoLite2-ASN"
	userAgent          = "asnwall-geolite-updater/1.0"
)

var (
	updateGroup singleflight.Group
	httpClient  = &http.Client{Timeout: 2 * time.Minute}
)

var (
	// ErrNoLicenseKey indicates that a download was needed but no MaxMind
	// license key has been configured.
	ErrNoLicenseKey = errors.New("geolite: license key is not configured")
)

// EnsureDatabase downloads the GeoLite2-ASN database to path unless a file
// is already there. It returns true when a download was performed.
func EnsureDatabase(ctx context.Context, path, downloadURL, licenseKey string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("geolite: stat %s: %w", path, err)
	}

	result, err, _ := updateGroup.Do(path, func() (interface{}, error) {
		if strings.TrimSpace(licenseKey) == "" {
			return false, ErrNoLicenseKey
		}
		if err := download(ctx, downloadURL, licenseKey, path); err != nil {
			return false, err
		}
		log.Info("GeoLite ASN database downloaded", "path", path)
		return true, nil
	})
	if err != nil {
		return false, err
	}

	updated, _ := result.(bool)
	return updated, nil
}

func download(ctx context.Context, downloadURL, licenseKey, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildDownloadURL(downloadURL, licenseKey), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", asnEdition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", asnEdition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", asnEdition, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	targetBase := asnEdition + ".mmdb"
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", asnEdition, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != targetBase {
			continue
		}

		if err := support.WriteFileAtomic(destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", asnEdition, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", asnEdition)
}

func buildDownloadURL(base, licenseKey string) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultDownloadURL
	}
	q := url.Values{}
	q.Set("edition_id", asnEdition)
	q.Set("license_key", licenseKey)
	q.Set("suffix", "tar.gz")
	return base + "?" + q.Encode()
}
