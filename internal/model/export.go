package model

import "time"

// HistoryExport is the JSON document produced by the export command.
type HistoryExport struct {
	SchemaVersion int          `json:"schema_version"`
	ExportedAt    time.Time    `json:"exported_at"`
	Owner         string       `json:"owner,omitempty"`
	Records       []TestRecord `json:"records"`
}
