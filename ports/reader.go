package ports

import (
	"context"
	"io"

	"medstat/domain/dataset"
)

// TableReader parses an uploaded file into a table. The name is the
// client's filename and selects the format.
type TableReader interface {
	Read(ctx context.Context, name string, r io.Reader) (*dataset.Table, error)
}

// RecordExporter pulls a flat record export from a remote data capture system
type RecordExporter interface {
	Export(ctx context.Context, req ExportRequest) (*dataset.Table, error)
}

// ExportRequest addresses one project of a remote data capture system
type ExportRequest struct {
	URL        string
	Token      string
	RawOrLabel string
}
