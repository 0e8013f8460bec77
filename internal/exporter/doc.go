// Package exporter writes job history as CSV or XLSX.
//
// CSV output starts with a UTF-8 BOM so spreadsheet tools detect the
// encoding. XLSX output holds a single "Jobs" sheet with the same columns.
//
// Example usage:
//
//	jobs := queue.List(operations.JobFilter{Status: operations.JobStatusFailed})
//	err := exporter.Export(w, exporter.FormatXLSX, jobs)
package exporter
