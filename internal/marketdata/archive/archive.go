// Package archive persists raw vendor responses as one JSON file per
// fetch, named {PROVIDER}_{yyyy-MM-dd_HH-mm-ss}_{SYMBOL}[_{key-value}...].json.
package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Archive writes fetch payloads into a single directory. Filenames embed
// a second-precision UTC timestamp, so concurrent-write conflicts are not
// expected within one sequential batch.
type Archive struct {
	provider string
	dir      string
	now      func() time.Time
}

// New creates the archive directory (including parents) if absent.
func New(provider, dir string) (*Archive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dir, err)
	}
	return &Archive{provider: provider, dir: dir, now: time.Now}, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

// Write stores one raw vendor response. Metadata pairs are appended to
// the filename in sorted key order so names are deterministic.
func (a *Archive) Write(symbol string, body []byte, meta map[string]string) (string, error) {
	ts := a.now().UTC().Format("2006-01-02_15-04-05")
	name := strings.ToUpper(a.provider) + "_" + ts + "_" + sanitize(symbol)

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name += "_" + sanitize(k) + "-" + sanitize(meta[k])
	}

	p := filepath.Join(a.dir, name+".json")
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("archive: write %s: %w", p, err)
	}
	return p, nil
}

// sanitize keeps filenames filesystem-safe across platforms.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// CompressOlder gzips archive files older than retentionDays. Zero or
// negative retention disables the sweep.
func CompressOlder(dir string, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".json" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, e := os.Stat(gz); e == nil {
			// already compressed on a previous sweep
			return os.Remove(p)
		}

		in, e := os.Open(p)
		if e != nil {
			return nil
		}
		defer in.Close()

		out, e := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e := io.Copy(gw, in); e == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
