package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/wuchris/glci/internal/model"
)

// glciCategory is the fixed curated category the composite index artifacts
// live under: curated/indices/{glci,glci_pillars}.<columnar> plus
// curated/indices/{glci_weights,glci_meta}.json (§6 persisted state layout).
const glciCategory = "indices"
const glciName = "glci"
const glciPillarsName = "glci_pillars"
const glciWeightsName = "glci_weights"
const glciMetaName = "glci_meta"

// SaveGLCI writes the composite index's full record history to
// curated/indices/glci.parquet, the aligned per-pillar factor series to
// curated/indices/glci_pillars.parquet, and the weight/metadata sidecars
// to curated/indices/{glci_weights,glci_meta}.json (§3 "Curated artifact").
func (s *Store) SaveGLCI(records []model.GLCIRecord, pillars map[string]model.Series, weights model.GLCIWeights, meta model.GLCIMetadata) error {
	if err := writeGLCIRecords(s.curatedFile(glciCategory, glciName), records); err != nil {
		return err
	}
	if err := writePillarRecords(s.curatedFile(glciCategory, glciPillarsName), pillarsToRows(pillars)); err != nil {
		return err
	}
	if err := s.SaveCuratedJSON(glciCategory, glciWeightsName, weights, nil); err != nil {
		return err
	}
	return s.SaveCuratedJSON(glciCategory, glciMetaName, meta, nil)
}

// LoadGLCI reads the composite index's record history back.
func (s *Store) LoadGLCI() ([]model.GLCIRecord, bool, error) {
	path := s.curatedFile(glciCategory, glciName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	records, err := readGLCIRecords(path)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// LoadGLCIPillars reads the aligned per-pillar factor series back, keyed by
// pillar name.
func (s *Store) LoadGLCIPillars() (map[string]model.Series, bool, error) {
	path := s.curatedFile(glciCategory, glciPillarsName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	rows, err := readPillarRecords(path)
	if err != nil {
		return nil, false, err
	}
	return pillarRowsToSeries(rows), true, nil
}

// LoadGLCIWeights reads back the pillar weight/sign/loadings sidecar.
func (s *Store) LoadGLCIWeights() (model.GLCIWeights, bool, error) {
	var weights model.GLCIWeights
	found, err := s.LoadCuratedJSON(glciCategory, glciWeightsName, &weights)
	return weights, found, err
}

// LoadGLCIMetadata reads back the pillar diagnostics saved alongside the
// composite index.
func (s *Store) LoadGLCIMetadata() (model.GLCIMetadata, bool, error) {
	var meta model.GLCIMetadata
	found, err := s.LoadCuratedJSON(glciCategory, glciMetaName, &meta)
	return meta, found, err
}

func writeGLCIRecords(path string, records []model.GLCIRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpPath := path + ".tmp"

	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return fmt.Errorf("opening parquet writer %s: %w", tmpPath, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(model.GLCIRecord), 4)
	if err != nil {
		fw.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("creating parquet writer for %s: %w", path, err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_ZSTD

	for _, r := range records {
		if err := pw.Write(r); err != nil {
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

func readGLCIRecords(path string) ([]model.GLCIRecord, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet reader %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(model.GLCIRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	records := make([]model.GLCIRecord, n)
	if err := pr.Read(&records); err != nil {
		return nil, fmt.Errorf("reading rows from %s: %w", path, err)
	}
	return records, nil
}

// pillarRecord is one (pillar, date) observation of a pillar's extracted
// factor; glci_pillars.parquet stores every pillar's aligned series in this
// long format rather than one column per pillar, since the pillar set is
// config-driven and not fixed at compile time.
type pillarRecord struct {
	Date   int64   `parquet:"name=date, type=INT64"`
	Pillar string  `parquet:"name=pillar, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value  float64 `parquet:"name=value, type=DOUBLE"`
}

// pillarsToRows flattens a per-pillar series map into sorted pillarRecord
// rows (pillar name, then date) for deterministic output.
func pillarsToRows(pillars map[string]model.Series) []pillarRecord {
	names := make([]string, 0, len(pillars))
	for name := range pillars {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []pillarRecord
	for _, name := range names {
		for _, p := range pillars[name] {
			rows = append(rows, pillarRecord{Date: p.Date.Unix(), Pillar: name, Value: p.Value})
		}
	}
	return rows
}

func pillarRowsToSeries(rows []pillarRecord) map[string]model.Series {
	out := make(map[string]model.Series)
	for _, r := range rows {
		out[r.Pillar] = append(out[r.Pillar], model.Point{Date: time.Unix(r.Date, 0).UTC(), Value: r.Value})
	}
	return out
}

func writePillarRecords(path string, rows []pillarRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpPath := path + ".tmp"

	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return fmt.Errorf("opening parquet writer %s: %w", tmpPath, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(pillarRecord), 4)
	if err != nil {
		fw.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("creating parquet writer for %s: %w", path, err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_ZSTD

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
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

func readPillarRecords(path string) ([]pillarRecord, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet reader %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(pillarRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]pillarRecord, n)
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("reading rows from %s: %w", path, err)
	}
	return rows, nil
}
