package aircraftdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Hour
)

// entry is the subset of a dump1090 aircraft record we care about
type entry struct {
	Registration string `json:"r"`
	TypeCode     string `json:"t"`
}

// JSONDB resolves aircraft types from a dump1090 "db" directory. The directory holds
// files named by an ICAO prefix (A.json, A1.json, A1B.json, ...) whose keys are the
// remaining suffix of the address.
type JSONDB struct {
	dir   string
	files *expirable.LRU[string, map[string]json.RawMessage]
}

// NewJSONDB creates a resolver over dir. Parsed files are cached for an hour.
func NewJSONDB(dir string) (*JSONDB, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open aircraft db: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("aircraft db path %s is not a directory", dir)
	}
	return &JSONDB{
		dir:   dir,
		files: expirable.NewLRU[string, map[string]json.RawMessage](defaultCacheSize, nil, defaultCacheTTL),
	}, nil
}

// Resolve tries the longest prefix file first and walks down to the single-character file
func (db *JSONDB) Resolve(icao string) string {
	icao = strings.ToUpper(strings.TrimSpace(icao))
	if !validAddress(icao) {
		slog.Debug("Not a hex aircraft address", "icao", icao)
		return ""
	}
	for i := len(icao); i >= 1; i-- {
		prefix, suffix := icao[:i], icao[i:]

		records, err := db.load(prefix)
		if err != nil {
			slog.Error("Failed to read aircraft db file", "prefix", prefix, "error", err)
			continue
		}
		raw, ok := records[suffix]
		if !ok {
			continue
		}

		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			slog.Debug("Unexpected aircraft db entry", "icao", icao, "file", prefix, "error", err)
			continue
		}
		if e.TypeCode == "" {
			continue
		}
		slog.Debug("Aircraft type found", "icao", icao, "type", e.TypeCode, "file", prefix)
		return e.TypeCode
	}
	slog.Debug("No aircraft info", "icao", icao)
	return ""
}

// load returns the parsed file for prefix. Missing files are cached as nil.
func (db *JSONDB) load(prefix string) (map[string]json.RawMessage, error) {
	if records, ok := db.files.Get(prefix); ok {
		return records, nil
	}

	filename := filepath.Join(db.dir, prefix+".json")
	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		db.files.Add(prefix, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	db.files.Add(prefix, records)
	return records, nil
}

// validAddress accepts hex ICAO addresses, optionally prefixed with '~' for non-ICAO ones.
// Anything else could name a file outside the db directory.
func validAddress(icao string) bool {
	hex := strings.TrimPrefix(icao, "~")
	if hex == "" {
		return false
	}
	for _, c := range hex {
		if !('0' <= c && c <= '9' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
