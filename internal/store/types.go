package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rendis/flowlens/internal/analysis"
	"github.com/rendis/flowlens/pkg/schema"
)

// Summary is the listing view of an archived report.
type Summary struct {
	ID           string    `json:"id"`
	FlowLabel    string    `json:"flow_label"`
	ProcessType  string    `json:"process_type,omitempty"`
	Source       string    `json:"source,omitempty"`      // file path or flow id
	Fingerprint  string    `json:"fingerprint,omitempty"` // sha256 of the raw definition
	RowCount     int       `json:"row_count"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Record is a summary together with the full report.
type Record struct {
	Summary
	Report *analysis.Report `json:"report"`
}

// NewRecord derives the archive record of r. raw is the definition payload
// the report was built from and may be nil.
func NewRecord(r *analysis.Report, source string, raw []byte) *Record {
	rec := &Record{
		Summary: Summary{
			ID:          r.ID,
			FlowLabel:   r.Flow.Label,
			ProcessType: r.Flow.ProcessType,
			Source:      source,
			RowCount:    len(r.Rows),
			CreatedAt:   r.CreatedAt,
		},
		Report: r,
	}
	if len(raw) > 0 {
		rec.Fingerprint = Fingerprint(raw)
	}
	for _, issue := range r.Issues {
		switch issue.Severity {
		case schema.SeverityError:
			rec.ErrorCount++
		case schema.SeverityWarning:
			rec.WarningCount++
		}
	}
	return rec
}

// Fingerprint is the hex sha256 of a raw definition.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	FlowLabel   string     `json:"flow_label,omitempty"` // case-insensitive substring
	ProcessType string     `json:"process_type,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
