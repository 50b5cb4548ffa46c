package sources

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Table reads a whitespace-delimited prefix/ASN table such as a geoid dump.
type Table struct {
	path         string
	prefixColumn int
	asnColumn    int
	dump         *dumpIndex
}

func NewTable(path string, prefixColumn, asnColumn int) *Table {
	t := &Table{path: path, prefixColumn: prefixColumn, asnColumn: asnColumn}
	t.dump = &dumpIndex{name: t.Name(), load: t.load}
	return t
}

func (t *Table) Name() string { return "table" }

func (t *Table) FetchPrefixes(ctx context.Context, asn string) (Prefixes, error) {
	return t.dump.lookup(ctx, asn)
}

func (t *Table) load(_ context.Context) (asnIndex, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	return t.parse(f)
}

func (t *Table) parse(r io.Reader) (asnIndex, error) {
	idx := make(asnIndex)
	need := max(t.prefixColumn, t.asnColumn) + 1

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	skipped := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < need {
			skipped++
			continue
		}
		if !idx.add(cols[t.asnColumn], cols[t.prefixColumn]) {
			skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	if skipped > 0 {
		log.Warn("Skipped malformed table rows", "path", t.path, "rows", skipped)
	}
	return idx, nil
}
