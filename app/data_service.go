package app

import (
	"context"
	"io"
	"log/slog"

	"medstat/domain/dataset"
	"medstat/internal/ingest"
	"medstat/internal/observability"
	"medstat/ports"
)

// Ingestion sources used as the metrics label
const (
	IngestUpload = "upload"
	IngestREDCap = "redcap"
)

// DataService reads uploaded files and REDCap exports and describes them
type DataService struct {
	reader    ports.TableReader
	exporter  ports.RecordExporter
	describer *ingest.Describer
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewDataService wires a data service. metrics may be nil.
func NewDataService(reader ports.TableReader, exporter ports.RecordExporter, describer *ingest.Describer, metrics *observability.Metrics, logger *slog.Logger) *DataService {
	if describer == nil {
		describer = ingest.NewDescriber(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DataService{
		reader:    reader,
		exporter:  exporter,
		describer: describer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Upload parses a CSV or Excel file and describes its columns
func (s *DataService) Upload(ctx context.Context, filename string, r io.Reader) (*dataset.Summary, error) {
	table, err := s.reader.Read(ctx, filename, r)
	if err != nil {
		return nil, err
	}
	return s.describe(IngestUpload, table), nil
}

// FetchREDCap exports a REDCap project and describes its columns
func (s *DataService) FetchREDCap(ctx context.Context, req ports.ExportRequest) (*dataset.Summary, error) {
	table, err := s.exporter.Export(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.describe(IngestREDCap, table), nil
}

func (s *DataService) describe(source string, table *dataset.Table) *dataset.Summary {
	summary := s.describer.Describe(table)
	s.metrics.ObserveIngest(source, summary.NRows)
	s.logger.Info("dataset ingested", "source", source, "rows", summary.NRows, "columns", summary.NCols)
	return &summary
}
