// =============================================================================
// SEPA Direct Debit Export - Export File Store
// =============================================================================
//
// This module stores generated documents and serves them back by name:
//   - Naming of export files (sepa_export_YYYYMMDD_HHMMSS.xml)
//   - Atomic writes (temporary file, then link into place)
//   - Safe lookup of a requested name inside the export directory
//   - A plain-text rejection report written next to an export
//
// WRITE STRATEGY:
//   Data is written to a uniquely named temporary file in the export
//   directory and hard-linked to its final name. Linking fails if the final
//   name exists, so an export never replaces another one, and a reader can
//   never observe a partially written document. The temporary file is
//   always removed.
//
// =============================================================================

package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/sepa-export/internal/types"
)

var (
	// ErrInvalidName means a requested name is not an export file name.
	ErrInvalidName = errors.New("invalid export file name")

	// ErrNotFound means no export with the requested name exists.
	ErrNotFound = errors.New("export file not found")

	// ErrExists means an export with the same name was already written.
	ErrExists = errors.New("export file already exists")
)

var exportNamePattern = regexp.MustCompile(`^sepa_export_\d{8}_\d{6}\.xml$`)

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// ExportFileName returns the file name for an export created at t.
//
// EXAMPLE:
//
//	2025-10-19 14:30:05 -> "sepa_export_20251019_143005.xml"
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("sepa_export_%s.xml", t.Format("20060102_150405"))
}

// CleanExportName reduces a requested name to its base name and checks it
// against the export naming scheme.
func CleanExportName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if !exportNamePattern.MatchString(base) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// =============================================================================
// EXPORT STORE
// =============================================================================

// ExportStore keeps export files in one directory.
type ExportStore struct {
	// Dir is the export directory. It is created on first save.
	Dir string
}

// NewExportStore creates an ExportStore for dir.
func NewExportStore(dir string) *ExportStore {
	return &ExportStore{Dir: dir}
}

// Save writes data as the export created at now and returns its file name.
//
// RETURNS:
//   - The file name (not the path) of the stored export.
//   - ErrExists if an export with that name is already stored.
//   - A wrapped I/O error otherwise. No file is left behind on failure.
func (s *ExportStore) Save(now time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	name := ExportFileName(now)
	finalPath := filepath.Join(s.Dir, name)
	tmpPath := filepath.Join(s.Dir, fmt.Sprintf(".%s.tmp", uuid.New().String()))

	defer os.Remove(tmpPath)

	if err := writeFileSynced(tmpPath, data); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	if err := os.Link(tmpPath, finalPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, name)
		}
		return "", fmt.Errorf("failed to publish export: %w", err)
	}

	return name, nil
}

// writeFileSynced creates path exclusively, writes data and flushes it to
// disk.
func writeFileSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Path resolves a requested name to the path of a stored export.
//
// RETURNS:
//   - The cleaned file name and its full path.
//   - ErrInvalidName if the name does not follow the export naming scheme.
//   - ErrNotFound if no such export is stored.
func (s *ExportStore) Path(name string) (string, string, error) {
	base, err := CleanExportName(name)
	if err != nil {
		return "", "", err
	}

	path := filepath.Join(s.Dir, base)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("%w: %s", ErrNotFound, base)
		}
		return "", "", fmt.Errorf("failed to stat export: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, base)
	}

	return base, path, nil
}

// =============================================================================
// REJECTION REPORT
// =============================================================================

// WriteRejectionReport writes the members left out of an export to a text
// file next to it, named after the export ("..._rejections.txt").
//
// RETURNS:
//   - The path to the report, or "" if there was nothing to report.
//   - An error if writing fails.
func (s *ExportStore) WriteRejectionReport(exportName string, rejections []types.Rejection, now time.Time) (string, error) {
	if len(rejections) == 0 {
		return "", nil
	}

	base := exportName[:len(exportName)-len(filepath.Ext(exportName))]
	reportPath := filepath.Join(s.Dir, base+"_rejections.txt")

	file, err := os.Create(reportPath)
	if err != nil {
		return "", fmt.Errorf("failed to create rejection report: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "SEPA Direct Debit Export - Rejected Members\n"+
		"Export:    %s\n"+
		"Generated: %s\n"+
		"Rejected:  %d\n"+
		"================================================================================\n\n",
		exportName,
		now.Format("2006-01-02 15:04:05"),
		len(rejections))

	for i, rejection := range rejections {
		fmt.Fprintf(writer, "#%d\n"+
			"  Member:  %s (%s)\n"+
			"  Reason:  %s\n",
			i+1, rejection.Name, rejection.MemberID, rejection.Reason)
		if rejection.Value != "" {
			fmt.Fprintf(writer, "  Value:   %s\n", rejection.Value)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Report\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush rejection report: %w", err)
	}

	return reportPath, nil
}
