package exports

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Archive rolls <root>/<dataType>/<date>/** into <root>/<dataType>/<date>.zip
// with entry names relative to the date directory. Replacement of an
// existing archive is atomic in effect: the old archive is renamed to a
// unique backup first, the backup is deleted only after the new archive is
// fully written, and on error the backup survives. On success the
// uncompressed tree is removed.
func Archive(root, dataType, date string, logger *zap.Logger) (string, error) {
	src := filepath.Join(root, dataType, date)
	dst := filepath.Join(root, dataType, date+".zip")

	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("exports: archive source: %w", err)
	}

	backup := ""
	if _, err := os.Stat(dst); err == nil {
		backup = filepath.Join(root, dataType, fmt.Sprintf("%s.bkup-%s.zip", date, uuid.NewString()))
		if err := os.Rename(dst, backup); err != nil {
			return "", fmt.Errorf("exports: back up existing archive: %w", err)
		}
		logger.Info("backed up existing archive",
			zap.String("archive", dst),
			zap.String("backup", backup),
		)
	}

	if err := writeZip(src, dst); err != nil {
		os.Remove(dst)
		if backup != "" {
			logger.Error("archive failed, backup retained",
				zap.String("backup", backup),
				zap.Error(err),
			)
		}
		return "", err
	}

	if backup != "" {
		if err := os.Remove(backup); err != nil {
			return "", fmt.Errorf("exports: remove archive backup: %w", err)
		}
	}
	if err := os.RemoveAll(src); err != nil {
		return "", fmt.Errorf("exports: remove archived tree: %w", err)
	}

	logger.Info("archived data tree",
		zap.String("source", src),
		zap.String("archive", dst),
	)
	return dst, nil
}

func writeZip(src, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("exports: create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		_, err = io.Copy(w, in)
		return err
	})
	if err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("exports: write archive: %w", err)
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("exports: finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("exports: close archive: %w", err)
	}
	return nil
}
