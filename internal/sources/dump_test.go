package sources

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"asnwall/internal/testutil"
)

const tableFixture = `# prefix       asn      country
1.0.0.0/24      13335    AU
1.1.1.0/24      AS13335  AU
2606:4700::/32  13335    US
8.8.8.0/24      15169    US
short-row
9.9.9.0/24      not-an-asn NL
`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(data)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestTableGroupsRowsByASN(t *testing.T) {
	src := NewTable(writeFile(t, "table.txt", []byte(tableFixture)), 0, 1)

	got, err := src.FetchPrefixes(context.Background(), "13335")
	if err != nil {
		t.Fatalf("FetchPrefixes returned error: %v", err)
	}
	want := Prefixes{IPv4: []string{"1.0.0.0/24", "1.1.1.0/24"}, IPv6: []string{"2606:4700::/32"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FetchPrefixes = %#v, want %#v", got, want)
	}

	none, err := src.FetchPrefixes(context.Background(), "64512")
	if err != nil || none.Len() != 0 {
		t.Fatalf("unknown ASN = %#v, %v; want empty result", none, err)
	}
}

func TestTableMissingFileIsUnavailableEveryTime(t *testing.T) {
	src := NewTable(filepath.Join(t.TempDir(), "missing.txt"), 0, 1)

	for i := 0; i < 2; i++ {
		_, err := src.FetchPrefixes(context.Background(), "13335")
		if !errors.Is(err, ErrUnavailable) || !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("attempt %d: error = %v, want ErrUnavailable wrapping ErrNotExist", i, err)
		}
	}
}

func TestDumpIndexLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	d := &dumpIndex{name: "test", load: func(context.Context) (asnIndex, error) {
		calls.Add(1)
		idx := make(asnIndex)
		idx.add("64500", "192.0.2.0/24")
		return idx, nil
	}}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.lookup(context.Background(), "64500"); err != nil {
				t.Errorf("lookup returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("load called %d times, want 1", calls.Load())
	}
}

func TestDumpIndexLookupReturnsCopies(t *testing.T) {
	d := &dumpIndex{name: "test", load: func(context.Context) (asnIndex, error) {
		idx := make(asnIndex)
		idx.add("64500", "192.0.2.0/24")
		return idx, nil
	}}

	first, _ := d.lookup(context.Background(), "64500")
	first.IPv4[0] = "mutated"

	second, _ := d.lookup(context.Background(), "64500")
	if second.IPv4[0] != "192.0.2.0/24" {
		t.Fatalf("lookup shares state between callers: %v", second.IPv4)
	}
}

const snapshotFixture = `{"network":"1.0.0.0/24","country":"Australia","asn":"AS13335","as_name":"Cloudflare, Inc."}
{"network":"2606:4700::/32","asn":"AS13335"}
{"network":"8.8.8.0/24","asn":"AS15169"}
{"network":"10.0.0.0/8","asn":""}
this is not json
`

func TestSnapshotFromFile(t *testing.T) {
	path := writeFile(t, "snapshot.json.gz", gzipBytes(t, snapshotFixture))

	got, err := NewSnapshot(path).FetchPrefixes(context.Background(), "13335")
	if err != nil {
		t.Fatalf("FetchPrefixes returned error: %v", err)
	}
	want := Prefixes{IPv4: []string{"1.0.0.0/24"}, IPv6: []string{"2606:4700::/32"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FetchPrefixes = %#v, want %#v", got, want)
	}
}

func TestSnapshotFromURL(t *testing.T) {
	payload := gzipBytes(t, snapshotFixture)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	got, err := NewSnapshot(srv.URL+"/lite.json.gz").FetchPrefixes(context.Background(), "15169")
	if err != nil {
		t.Fatalf("FetchPrefixes returned error: %v", err)
	}
	if !reflect.DeepEqual(got.IPv4, []string{"8.8.8.0/24"}) {
		t.Fatalf("IPv4 = %v", got.IPv4)
	}
}

func TestSnapshotNotGzipIsUnavailable(t *testing.T) {
	path := writeFile(t, "snapshot.json.gz", []byte(snapshotFixture))

	_, err := NewSnapshot(path).FetchPrefixes(context.Background(), "13335")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestGeoLiteASNWalksDatabase(t *testing.T) {
	path := testutil.WriteASNDatabase(t, t.TempDir(), 4, []testutil.ASNNetwork{
		{CIDR: "1.0.0.0/24", ASN: 13335, Organization: "CLOUDFLARENET"},
		{CIDR: "1.1.1.0/24", ASN: 13335, Organization: "CLOUDFLARENET"},
		{CIDR: "8.8.8.0/24", ASN: 15169, Organization: "GOOGLE"},
	})

	src := NewGeoLiteASN(path)
	got, err := src.FetchPrefixes(context.Background(), "13335")
	if err != nil {
		t.Fatalf("FetchPrefixes returned error: %v", err)
	}
	want := Prefixes{IPv4: []string{"1.0.0.0/24", "1.1.1.0/24"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FetchPrefixes = %#v, want %#v", got, want)
	}
}

func TestGeoLiteASNMissingDatabase(t *testing.T) {
	_, err := NewGeoLiteASN(filepath.Join(t.TempDir(), "nope.mmdb")).FetchPrefixes(context.Background(), "1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestGeoLiteASNWalksIPv6Database(t *testing.T) {
	path := testutil.WriteASNDatabase(t, t.TempDir(), 6, []testutil.ASNNetwork{
		{CIDR: "1.1.1.0/24", ASN: 13335, Organization: "CLOUDFLARENET"},
		{CIDR: "2606:4700::/32", ASN: 13335, Organization: "CLOUDFLARENET"},
		{CIDR: "2001:4860::/32", ASN: 15169, Organization: "GOOGLE"},
	})

	src := NewGeoLiteASN(path)
	got, err := src.FetchPrefixes(context.Background(), "13335")
	if err != nil {
		t.Fatalf("FetchPrefixes returned error: %v", err)
	}
	want := Prefixes{IPv4: []string{"1.1.1.0/24"}, IPv6: []string{"2606:4700::/32"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FetchPrefixes = %#v, want %#v", got, want)
	}

	google, err := src.FetchPrefixes(context.Background(), "15169")
	if err != nil {
		t.Fatalf("FetchPrefixes returned error: %v", err)
	}
	if !reflect.DeepEqual(google, Prefixes{IPv6: []string{"2001:4860::/32"}}) {
		t.Fatalf("FetchPrefixes = %#v", google)
	}
}
