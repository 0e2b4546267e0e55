// Package store is the two-tier filesystem data store for GLCI: raw fetched
// series under raw/<source>/<series_id>.parquet and curated analytics
// artifacts under curated/<category>/<name>.parquet (+ optional
// {name}_meta.json sidecar).
//
// Design philosophy carried over from the teacher's bbolt store: the store
// is an intentional data accumulator, not a transparent cache. Data is
// written explicitly by the fetcher and analytics engine and read by the
// CLI and exporter. Every write goes to a temp file that is then renamed
// into place — never a partial file visible to a concurrent reader. JSON
// writes also fsync before the rename; parquet writes do not.
package store

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// isMissing reports whether v represents a missing observation (NaN).
func isMissing(v float64) bool { return math.IsNaN(v) }

// nan returns an IEEE-754 NaN, used to mark a missing value read back from
// a row that stored HasValue=false.
func nan() float64 { return math.NaN() }

// columnarExt is the on-disk extension for typed tabular artifacts.
const columnarExt = ".parquet"

// Store roots the raw and curated trees. Both directories are created (with
// parents) on NewStore if absent, mirroring the Python original's
// DataStorage.__init__(raw_path, curated_path).
type Store struct {
	rawPath     string
	curatedPath string
}

// NewStore opens a store rooted at rawPath/curatedPath, creating both
// directories if they do not exist.
func NewStore(rawPath, curatedPath string) (*Store, error) {
	if err := os.MkdirAll(rawPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating raw directory %s: %w", rawPath, err)
	}
	if err := os.MkdirAll(curatedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating curated directory %s: %w", curatedPath, err)
	}
	return &Store{rawPath: rawPath, curatedPath: curatedPath}, nil
}

// RawPath returns the root of the raw tier.
func (s *Store) RawPath() string { return s.rawPath }

// CuratedPath returns the root of the curated tier.
func (s *Store) CuratedPath() string { return s.curatedPath }

// SanitizeID replaces path-hostile characters (":" and "/") in a series id
// with "_", matching the Python original's save_raw sanitation so ids like
// "FRED:WALCL" or "ECB/M1" become safe single path segments.
func SanitizeID(id string) string {
	id = strings.ReplaceAll(id, ":", "_")
	id = strings.ReplaceAll(id, "/", "_")
	return id
}

func (s *Store) rawFile(source, seriesID string) string {
	return filepath.Join(s.rawPath, source, SanitizeID(seriesID)+columnarExt)
}

func (s *Store) curatedFile(category, name string) string {
	return filepath.Join(s.curatedPath, category, name+columnarExt)
}

func (s *Store) curatedMetaFile(category, name string) string {
	return filepath.Join(s.curatedPath, category, name+"_meta.json")
}

func (s *Store) curatedJSONFile(category, name string) string {
	return filepath.Join(s.curatedPath, category, name+".json")
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by an fsync + rename, so a concurrent reader never observes a
// partially-written file (§4.2 invariant, §9 "Atomicity").
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op if the rename below already succeeded

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// listParquetNames lists the base names (without extension) of every
// .parquet file directly inside dir, sorted. Returns an empty slice (not an
// error) if dir does not exist.
func listParquetNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), columnarExt) {
			out = append(out, strings.TrimSuffix(e.Name(), columnarExt))
		}
	}
	sort.Strings(out)
	return out, nil
}

// listSubdirs lists immediate subdirectory names of dir, sorted. Returns an
// empty slice if dir does not exist.
func listSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
