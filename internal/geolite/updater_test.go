package geolite

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func archive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestEnsureDatabaseDownloadsASNEdition(t *testing.T) {
	payload := archive(t, map[string]string{
		"GeoLite2-ASN_20260101/COPYRIGHT.txt":    "copyright",
		"GeoLite2-ASN_20260101/GeoLite2-ASN.mmdb": "mmdb-bytes",
	})

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "data", "GeoLite2-ASN.mmdb")
	updated, err := EnsureDatabase(context.Background(), dest, srv.URL, "secret")
	if err != nil {
		t.Fatalf("EnsureDatabase returned error: %v", err)
	}
	if !updated {
		t.Fatal("expected a download")
	}
	if gotQuery != "edition_id=GeoLite2-ASN&license_key=secret&suffix=tar.gz" {
		t.Fatalf("query = %q", gotQuery)
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "mmdb-bytes" {
		t.Fatalf("database = %q, %v", data, err)
	}

	updated, err = EnsureDatabase(context.Background(), dest, srv.URL, "secret")
	if err != nil || updated {
		t.Fatalf("second call = %v, %v; want no download", updated, err)
	}
}

func TestEnsureDatabaseWithoutLicenseKey(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "GeoLite2-ASN.mmdb")
	_, err := EnsureDatabase(context.Background(), dest, "http://127.0.0.1:1", "")
	if !errors.Is(err, ErrNoLicenseKey) {
		t.Fatalf("error = %v, want ErrNoLicenseKey", err)
	}
}

func TestEnsureDatabaseArchiveWithoutDatabase(t *testing.T) {
	payload := archive(t, map[string]string{"GeoLite2-ASN_20260101/LICENSE.txt": "license"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "GeoLite2-ASN.mmdb")
	if _, err := EnsureDatabase(context.Background(), dest, srv.URL, "secret"); err == nil {
		t.Fatal("expected error for archive without database")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("partial database left at %s", dest)
	}
}

func TestEnsureDatabaseRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid license key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "GeoLite2-ASN.mmdb")
	if _, err := EnsureDatabase(context.Background(), dest, srv.URL, "bad"); err == nil {
		t.Fatal("expected error for rejected key")
	}
}
