package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// Metadata is the sidecar `{name}_meta.json` persisted alongside a curated
// artifact: when it was computed, the parameters that produced it, and
// whatever summary the caller wants attached (pillar stats, regime, etc).
// SavedAt is stamped by the writer, not the caller, matching the Python
// original's storage.py behavior.
type Metadata struct {
	SavedAt    time.Time              `json:"saved_at"`
	ComputedAt string                 `json:"computed_at,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// SaveCuratedValues writes a flat (date,value) curated artifact — a pillar
// factor series, an arithmetic composite index, any single-column
// transformed series — as curated/<category>/<name>.parquet, plus an
// optional metadata sidecar.
func (s *Store) SaveCuratedValues(category, name string, rows []ValueRow, meta *Metadata) error {
	path := s.curatedFile(category, name)
	if err := writeValueRows(path, rows); err != nil {
		return err
	}
	return s.saveMetaIfPresent(category, name, meta)
}

// ValueRow is the row shape SaveCuratedValues / LoadCuratedValues operate
// on; Unix-day timestamp plus a double value.
type ValueRow struct {
	Date  int64
	Value float64
}

// LoadCuratedValues reads a flat curated series back.
func (s *Store) LoadCuratedValues(category, name string) ([]ValueRow, bool, error) {
	path := s.curatedFile(category, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	rows, err := readValueRows(path)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

// SaveCuratedJSON writes an arbitrary structured curated artifact (a
// feature matrix, a risk dashboard, a GLCI metadata bundle) as
// curated/<category>/<name>.json. These shapes have a variable or nested
// column set that does not fit a single static parquet schema, so they are
// persisted as JSON rather than forced into a columnar file — see
// DESIGN.md for the rationale. The write is still atomic (temp + rename).
func (s *Store) SaveCuratedJSON(category, name string, data interface{}, meta *Metadata) error {
	path := s.curatedJSONFile(category, name)
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding curated JSON for %s/%s: %w", category, name, err)
	}
	if err := writeAtomic(path, body, 0o644); err != nil {
		return err
	}
	return s.saveMetaIfPresent(category, name, meta)
}

// LoadCuratedJSON reads a curated JSON artifact into dst (a pointer).
func (s *Store) LoadCuratedJSON(category, name string, dst interface{}) (bool, error) {
	path := s.curatedJSONFile(category, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) saveMetaIfPresent(category, name string, meta *Metadata) error {
	if meta == nil {
		return nil
	}
	meta.SavedAt = time.Now().UTC()
	body, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata for %s/%s: %w", category, name, err)
	}
	return writeAtomic(s.curatedMetaFile(category, name), body, 0o644)
}

// LoadCuratedMetadata reads the `{name}_meta.json` sidecar for an artifact,
// if present.
func (s *Store) LoadCuratedMetadata(category, name string) (*Metadata, bool, error) {
	path := s.curatedMetaFile(category, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &meta, true, nil
}

// ListCurated lists every artifact name under curated/<category>/, covering
// both .parquet and .json bodies. If category is empty, it lists
// "<category>/<name>" across every category.
func (s *Store) ListCurated(category string) ([]string, error) {
	if category != "" {
		return listCuratedNames(filepath.Join(s.curatedPath, category))
	}
	categories, err := listSubdirs(s.curatedPath)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, cat := range categories {
		names, err := listCuratedNames(filepath.Join(s.curatedPath, cat))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			out = append(out, cat+"/"+n)
		}
	}
	return out, nil
}

func listCuratedNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var base string
		switch {
		case len(name) > len(".parquet") && name[len(name)-len(".parquet"):] == ".parquet":
			base = name[:len(name)-len(".parquet")]
		case len(name) > len("_meta.json") && name[len(name)-len("_meta.json"):] == "_meta.json":
			continue // sidecar, not an artifact of its own
		case len(name) > len(".json") && name[len(name)-len(".json"):] == ".json":
			base = name[:len(name)-len(".json")]
		default:
			continue
		}
		if !seen[base] {
			seen[base] = true
			out = append(out, base)
		}
	}
	sortStringsInPlace(out)
	return out, nil
}

func sortStringsInPlace(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ─── parquet I/O for flat value rows ──────────────────────────────────────────

func writeValueRows(path string, rows []ValueRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpPath := path + ".tmp"

	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return fmt.Errorf("opening parquet writer %s: %w", tmpPath, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(valueRecord), 4)
	if err != nil {
		fw.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("creating parquet writer for %s: %w", path, err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_ZSTD

	for _, r := range rows {
		if err := pw.Write(valueRecord{Date: r.Date, Value: r.Value}); err != nil {
			pw.WriteStop()
			fw.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing row to %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing parquet file %s: %w", path, err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing parquet writer for %s: %w", path, err)
	}
	return os.Rename(tmpPath, path)
}

func readValueRows(path string) ([]ValueRow, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet reader %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(valueRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	recs := make([]valueRecord, n)
	if err := pr.Read(&recs); err != nil {
		return nil, fmt.Errorf("reading rows from %s: %w", path, err)
	}
	out := make([]ValueRow, n)
	for i, r := range recs {
		out[i] = ValueRow{Date: r.Date, Value: r.Value}
	}
	return out, nil
}

// valueRecord is the parquet-tagged twin of ValueRow (kept unexported and
// separate from model.ValueRecord so this package's on-disk schema is
// independent of the in-memory model package).
type valueRecord struct {
	Date  int64   `parquet:"name=date, type=INT64"`
	Value float64 `parquet:"name=value, type=DOUBLE"`
}
