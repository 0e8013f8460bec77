package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"licensegate/internal/operations"
)

const sheetName = "Jobs"

// Columns is the header row of every export
var Columns = []string{
	"id", "type", "status", "priority", "required_feature",
	"created_at", "started_at", "completed_at",
	"attempts", "retry_count", "license_checked",
	"block_reason", "block_message", "error",
}

// Record returns the export row of job in Columns order
func Record(job *operations.Job) []string {
	created := job.CreatedAt
	return []string{
		job.ID,
		job.Type,
		string(job.Status),
		string(job.Priority),
		job.RequiredFeature,
		formatTime(&created),
		formatTime(job.StartedAt),
		formatTime(job.CompletedAt),
		formatInt(job.Attempts),
		formatInt(job.RetryCount),
		formatBool(job.LicenseChecked),
		job.BlockReason,
		job.BlockMessage,
		job.Error,
	}
}

// Export writes jobs to w in format f
func Export(w io.Writer, f Format, jobs []*operations.Job) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, jobs)
	case FormatXLSX:
		return WriteXLSX(w, jobs)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteCSV writes a BOM, the header row and one row per job
func WriteCSV(w io.Writer, jobs []*operations.Job) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, job := range jobs {
		if err := writer.Write(Record(job)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes a workbook with a single Jobs sheet
func WriteXLSX(w io.Writer, jobs []*operations.Job) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	if err := sw.SetRow("A1", toRow(Columns)); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, job := range jobs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toRow(Record(job))); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
