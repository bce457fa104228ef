package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"esgdocs/models"
)

// QCReporter writes a per-document quality-control summary (detected
// headers/footers, page skip reasons) next to the index so ingestion runs can
// be audited.
type QCReporter struct {
	reportDir string
}

// NewQCReporter creates the report directory if needed. An empty dir disables
// reporting.
func NewQCReporter(reportDir string) (*QCReporter, error) {
	if reportDir == "" {
		return &QCReporter{}, nil
	}
	absPath, err := filepath.Abs(reportDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve QC report directory: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("could not create QC report directory: %w", err)
	}
	return &QCReporter{reportDir: absPath}, nil
}

// sanitizeName keeps report files inside the report directory regardless of
// what the source filename looks like.
func (q *QCReporter) sanitizeName(sourceFile string) string {
	base := filepath.Base(sourceFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(q.reportDir, base+".qc.txt")
}

// WriteReport records the QC outcome for one ingested document. Report
// failures are not ingestion failures; the caller only logs them.
func (q *QCReporter) WriteReport(doc *models.SourceDocument, headers HeaderFooterSet, events []models.QCEvent, chunkCount int) error {
	if q.reportDir == "" {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "document: %s\n", doc.FileName)
	fmt.Fprintf(&sb, "source_type: %s\n", doc.SourceType)
	fmt.Fprintf(&sb, "pages: %d\n", doc.PageCount)
	fmt.Fprintf(&sb, "chunks: %d\n", chunkCount)

	sb.WriteString("\ndetected headers:\n")
	for line := range headers.Headers {
		fmt.Fprintf(&sb, "  %q\n", line)
	}
	sb.WriteString("detected footers:\n")
	for line := range headers.Footers {
		fmt.Fprintf(&sb, "  %q\n", line)
	}

	sb.WriteString("\npage events:\n")
	for _, event := range events {
		fmt.Fprintf(&sb, "  page %d: %s (%s)\n", event.Page, event.Status, event.Reason)
	}

	path := q.sanitizeName(doc.FileName)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write QC report for %s: %w", doc.FileName, err)
	}
	return nil
}
