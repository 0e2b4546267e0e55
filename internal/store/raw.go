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

// SaveRaw writes table to raw/<source>/<sanitized_id>.parquet, replacing any
// existing file for that series (§4.2 save_raw).
func (s *Store) SaveRaw(table model.RawTable) error {
	path := s.rawFile(table.Source, table.SeriesID)
	return writeRawRecords(path, table)
}

// LoadRaw reads raw/<source>/<sanitized_id>.parquet. The second return value
// is false (with a nil error) if the file does not exist, per §4.2's
// "returns absent if the file does not exist" contract.
func (s *Store) LoadRaw(source, seriesID string) (model.RawTable, bool, error) {
	path := s.rawFile(source, seriesID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return model.RawTable{}, false, nil
		}
		return model.RawTable{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	table, err := readRawRecords(path, source, seriesID)
	if err != nil {
		return model.RawTable{}, false, err
	}
	return table, true, nil
}

// AppendRaw unions table with whatever is already stored for this series,
// drops duplicate dates keeping the later fetched_at, sorts by date, and
// rewrites the file (§4.2 append_raw).
func (s *Store) AppendRaw(table model.RawTable) error {
	existing, found, err := s.LoadRaw(table.Source, table.SeriesID)
	if err != nil {
		return err
	}
	merged := table.Rows
	if found {
		merged = mergeRawRows(existing.Rows, table.Rows)
	} else {
		merged = sortRawRows(append([]model.RawRow(nil), table.Rows...))
	}
	return s.SaveRaw(model.RawTable{Source: table.Source, SeriesID: table.SeriesID, Rows: merged})
}

// mergeRawRows unions two row sets by date, keeping whichever row has the
// later FetchedAt on a date collision, then returns the result sorted by
// date (§3 "Raw series record": "appends must deduplicate on date keeping
// the later fetched_at").
func mergeRawRows(existing, incoming []model.RawRow) []model.RawRow {
	byDate := make(map[int64]model.RawRow, len(existing)+len(incoming))
	for _, r := range existing {
		byDate[r.Date.Unix()] = r
	}
	for _, r := range incoming {
		key := r.Date.Unix()
		if prev, ok := byDate[key]; !ok || r.FetchedAt.After(prev.FetchedAt) {
			byDate[key] = r
		}
	}
	out := make([]model.RawRow, 0, len(byDate))
	for _, r := range byDate {
		out = append(out, r)
	}
	return sortRawRows(out)
}

func sortRawRows(rows []model.RawRow) []model.RawRow {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows
}

// ListRawSeries lists every series id stored under raw/<source>/. If source
// is empty, it lists "<source>/<series_id>" for every source.
func (s *Store) ListRawSeries(source string) ([]string, error) {
	if source != "" {
		return listParquetNames(filepath.Join(s.rawPath, source))
	}
	sources, err := listSubdirs(s.rawPath)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, src := range sources {
		names, err := listParquetNames(filepath.Join(s.rawPath, src))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			out = append(out, src+"/"+n)
		}
	}
	return out, nil
}

// GetLatestDate returns the most recent date stored for a series.
func (s *Store) GetLatestDate(source, seriesID string) (time.Time, bool, error) {
	table, found, err := s.LoadRaw(source, seriesID)
	if err != nil || !found || len(table.Rows) == 0 {
		return time.Time{}, false, err
	}
	latest := table.Rows[0].Date
	for _, r := range table.Rows[1:] {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, true, nil
}

// GetDateRange returns the earliest and latest dates stored for a series.
func (s *Store) GetDateRange(source, seriesID string) (start, end time.Time, found bool, err error) {
	table, ok, err := s.LoadRaw(source, seriesID)
	if err != nil || !ok || len(table.Rows) == 0 {
		return time.Time{}, time.Time{}, false, err
	}
	start, end = table.Rows[0].Date, table.Rows[0].Date
	for _, r := range table.Rows[1:] {
		if r.Date.Before(start) {
			start = r.Date
		}
		if r.Date.After(end) {
			end = r.Date
		}
	}
	return start, end, true, nil
}

// ─── parquet I/O ──────────────────────────────────────────────────────────────

// writeRawRecords serializes table as RawRecord rows to a temp file, then
// atomically renames it into place.
func writeRawRecords(path string, table model.RawTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpPath := path + ".tmp"

	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return fmt.Errorf("opening parquet writer %s: %w", tmpPath, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(model.RawRecord), 4)
	if err != nil {
		fw.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("creating parquet writer for %s: %w", path, err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_ZSTD

	for _, row := range table.Rows {
		rec := model.RawRecord{
			Source:    table.Source,
			SeriesID:  table.SeriesID,
			Date:      row.Date.Unix(),
			FetchedAt: row.FetchedAt.Unix(),
		}
		if isMissing(row.Value) {
			rec.HasValue = false
		} else {
			rec.HasValue = true
			rec.Value = row.Value
		}
		if err := pw.Write(rec); err != nil {
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
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// readRawRecords reads every row from a raw parquet file back into a
// model.RawTable.
func readRawRecords(path, source, seriesID string) (model.RawTable, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return model.RawTable{}, fmt.Errorf("opening parquet reader %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(model.RawRecord), 4)
	if err != nil {
		return model.RawTable{}, fmt.Errorf("creating parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]model.RawRecord, n)
	if err := pr.Read(&rows); err != nil {
		return model.RawTable{}, fmt.Errorf("reading rows from %s: %w", path, err)
	}

	out := model.RawTable{Source: source, SeriesID: seriesID, Rows: make([]model.RawRow, n)}
	for i, r := range rows {
		v := r.Value
		if !r.HasValue {
			v = nan()
		}
		out.Rows[i] = model.RawRow{
			Date:      time.Unix(r.Date, 0).UTC(),
			Value:     v,
			FetchedAt: time.Unix(r.FetchedAt, 0).UTC(),
		}
	}
	return out, nil
}
