package dataset

// Record is one row keyed by column header. Missing cells are empty strings.
type Record map[string]string

// Table is tabular data as read from an upload or a remote export, before
// any column is interpreted
type Table struct {
	Headers []string
	Rows    []Record
}

// ColumnType is the presentation-level guess of what a column holds
type ColumnType string

const (
	ColumnNumeric     ColumnType = "numeric"
	ColumnCategorical ColumnType = "categorical"
	ColumnText        ColumnType = "text"
)

// ColumnSummary describes one column of a table
type ColumnSummary struct {
	Name         string          `json:"name"`
	DType        string          `json:"dtype"`
	ColType      ColumnType      `json:"col_type"`
	NMissing     int             `json:"n_missing"`
	NUnique      int             `json:"n_unique"`
	SampleValues []string        `json:"sample_values"`
	// Numeric is set for numeric columns with at least one value
	Numeric *NumericProfile `json:"numeric,omitempty"`
}

// NumericProfile summarises the parsed values of a numeric column
type NumericProfile struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	SD     float64 `json:"sd"`
}

// Summary is the description returned to clients after ingestion
type Summary struct {
	NRows   int             `json:"n_rows"`
	NCols   int             `json:"n_cols"`
	Columns []ColumnSummary `json:"columns"`
	Preview []Record        `json:"preview"`
	Data    []Record        `json:"data"`
}
