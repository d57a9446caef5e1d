package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medstat/domain/dataset"
	"medstat/internal/errors"
	"medstat/ports"

	"github.com/tidwall/gjson"
)

// REDCap export labels
const (
	RawOrLabelRaw   = "raw"
	RawOrLabelLabel = "label"
)

// maxErrorBody bounds how much of a failed response is quoted back
const maxErrorBody = 512

// REDCapClient exports flat record sets from a REDCap project API
type REDCapClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewREDCapClient creates a client whose requests time out after timeout
func NewREDCapClient(timeout time.Duration, logger *slog.Logger) ports.RecordExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &REDCapClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Export posts a record export request and parses the JSON records.
// Header order follows first appearance across records.
func (c *REDCapClient) Export(ctx context.Context, req ports.ExportRequest) (*dataset.Table, error) {
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Token) == "" {
		return nil, errors.ValidationError("REDCap url and token are required")
	}
	rawOrLabel := req.RawOrLabel
	if rawOrLabel == "" {
		rawOrLabel = RawOrLabelLabel
	}
	if rawOrLabel != RawOrLabelRaw && rawOrLabel != RawOrLabelLabel {
		return nil, errors.Validationf("raw_or_label must be %q or %q", RawOrLabelRaw, RawOrLabelLabel)
	}

	form := url.Values{
		"token":        {req.Token},
		"content":      {"record"},
		"format":       {"json"},
		"type":         {"flat"},
		"rawOrLabel":   {rawOrLabel},
		"returnFormat": {"json"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Validationf("invalid REDCap url: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.ExternalServiceError("REDCap", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ExternalServiceError("REDCap", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.ExternalServiceError("REDCap",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody)))
	}

	table, err := parseRecords(body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("redcap export fetched",
		"records", len(table.Rows),
		"fields", len(table.Headers),
		"elapsed", time.Since(start))
	return table, nil
}

func parseRecords(body []byte) (*dataset.Table, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.ExternalServiceError("REDCap", fmt.Errorf("response is not JSON"))
	}
	doc := gjson.ParseBytes(body)
	if msg := doc.Get("error"); doc.IsObject() && msg.Exists() {
		return nil, errors.ExternalServiceError("REDCap", fmt.Errorf("%s", msg.String()))
	}
	if !doc.IsArray() {
		return nil, errors.ExternalServiceError("REDCap", fmt.Errorf("expected an array of records"))
	}

	table := &dataset.Table{}
	seen := make(map[string]bool)
	var parseErr error
	doc.ForEach(func(_, record gjson.Result) bool {
		if !record.IsObject() {
			parseErr = errors.ExternalServiceError("REDCap", fmt.Errorf("record is not an object"))
			return false
		}
		row := make(dataset.Record)
		record.ForEach(func(key, value gjson.Result) bool {
			field := key.String()
			if !seen[field] {
				seen[field] = true
				table.Headers = append(table.Headers, field)
			}
			row[field] = cellString(value)
			return true
		})
		table.Rows = append(table.Rows, row)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(table.Rows) == 0 {
		return nil, errors.ValidationError("no records returned from REDCap")
	}

	for _, row := range table.Rows {
		for _, h := range table.Headers {
			if _, ok := row[h]; !ok {
				row[h] = ""
			}
		}
	}
	return table, nil
}

func cellString(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return strings.TrimSpace(v.Str)
	default:
		return v.Raw
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
