// Package exports persists harvest results outside the database: per-region
// CSV files in a deterministic directory layout, per-date zip archives, and
// optional delivery of archives to S3-compatible object storage.
//
// Purpose:
//
//	The CSV tree is the file-level mirror of the pricing table. One file
//	holds one (date, operating system, region) job's rows; the archiver
//	rolls a finished day into a single zip. Layout:
//
//	    <root>/ec2/<date>/<operating_system>/<region>.csv
//	    <root>/ec2/<date>.zip            (after archiving)
package exports

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
)

// DefaultDataType is the subdirectory under the data root that holds this
// dataset. Kept as a field so the layout stays testable.
const DefaultDataType = "ec2"

// Sink writes per-region CSV files.
type Sink struct {
	Root     string
	DataType string
}

// NewSink returns a CSV sink rooted at the given data directory.
func NewSink(root string) *Sink {
	return &Sink{Root: root, DataType: DefaultDataType}
}

// FilePath returns the canonical path for one (date, os, region) file.
func (s *Sink) FilePath(date, operatingSystem, region string) string {
	return filepath.Join(s.Root, s.DataType, date, operatingSystem, region+".csv")
}

// DateDir returns the directory holding one day's tree.
func (s *Sink) DateDir(date string) string {
	return filepath.Join(s.Root, s.DataType, date)
}

// Write persists one job's records. Any pre-existing file at the target
// path is removed first so a re-run never leaves a partial overwrite. The
// header row uses the canonical field order; data rows keep the order the
// caller collected them in.
func (s *Sink) Write(date, operatingSystem, region string, records []pricing.Record) error {
	path := s.FilePath(date, operatingSystem, region)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("exports: create csv directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("exports: remove stale csv: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(pricing.Fields()); err != nil {
		f.Close()
		return fmt.Errorf("exports: write csv header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.CSVRow()); err != nil {
			f.Close()
			return fmt.Errorf("exports: write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("exports: flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("exports: close csv: %w", err)
	}
	return nil
}

// TreeSize sums the file sizes under root. A missing root counts as zero;
// the data directory does not exist until the first run writes it.
func TreeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("exports: walk data tree: %w", err)
	}
	return total, nil
}
