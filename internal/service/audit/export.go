package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jwalitptl/admin-authz/internal/model"
)

type ExportFormat string

const (
	ExportCSV    ExportFormat = "csv"
	ExportJSON   ExportFormat = "json"
	ExportNDJSON ExportFormat = "ndjson"
)

func (f ExportFormat) Valid() bool {
	switch f {
	case ExportCSV, ExportJSON, ExportNDJSON:
		return true
	}
	return false
}

func (f ExportFormat) ContentType() string {
	switch f {
	case ExportCSV:
		return "text/csv"
	case ExportNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

func (f ExportFormat) render(entries []*model.AuditEntry) ([]byte, error) {
	switch f {
	case ExportCSV:
		return exportCSV(entries)
	case ExportNDJSON:
		return exportNDJSON(entries)
	default:
		return exportJSON(entries)
	}
}

func exportJSON(entries []*model.AuditEntry) ([]byte, error) {
	if entries == nil {
		entries = []*model.AuditEntry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

func exportNDJSON(entries []*model.AuditEntry) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{
	"ID",
	"Timestamp",
	"UserID",
	"Action",
	"EntityName",
	"EntityID",
	"Outcome",
	"IPAddress",
	"OldValues",
	"NewValues",
}

func exportCSV(entries []*model.AuditEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		row := []string{
			entry.ID,
			entry.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatInt(entry.UserID, 10),
			entry.Action,
			entry.EntityName,
			formatInt64Ptr(entry.EntityID),
			string(entry.Outcome),
			formatStringPtr(entry.IPAddress),
			string(entry.OldValues),
			string(entry.NewValues),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}

func formatStringPtr(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
