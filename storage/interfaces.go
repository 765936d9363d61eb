package storage

import (
	"context"

	"licence-trends/models"
)

// ReportWriter is the interface any analysis result sink must satisfy.
type ReportWriter interface {
	Write(ctx context.Context, report *models.Report) error
	Close() error
}

// RawTableWriter is the interface for persisting unprocessed fetched extracts.
type RawTableWriter interface {
	WriteRaw(table *models.RawTable) error
}
