package ingest

import (
	"fmt"
	"testing"

	"medstat/domain/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(headers []string, rows ...[]string) *dataset.Table {
	t := &dataset.Table{Headers: headers}
	for _, r := range rows {
		rec := dataset.Record{}
		for i, h := range headers {
			rec[h] = r[i]
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

func TestDescribeColumnTypes(t *testing.T) {
	tbl := table([]string{"id", "age", "sex", "note"},
		[]string{"1", "54.5", "F", "a"},
		[]string{"2", "NA", "M", "b"},
		[]string{"3", "61", "F", "c"},
		[]string{"4", "47", "", "d"},
	)
	summary := NewDescriber(3, 2).Describe(tbl)

	assert.Equal(t, 4, summary.NRows)
	assert.Equal(t, 4, summary.NCols)
	require.Len(t, summary.Columns, 4)

	id := summary.Columns[0]
	assert.Equal(t, dataset.ColumnNumeric, id.ColType)
	assert.Equal(t, DTypeInt, id.DType)
	assert.Equal(t, 4, id.NUnique)
	require.NotNil(t, id.Numeric)
	assert.InDelta(t, 2.5, id.Numeric.Mean, 1e-12)
	assert.InDelta(t, 1.2909944, id.Numeric.SD, 1e-6)

	age := summary.Columns[1]
	assert.Equal(t, dataset.ColumnNumeric, age.ColType)
	assert.Equal(t, DTypeFloat, age.DType)
	assert.Equal(t, 1, age.NMissing)
	assert.Equal(t, []string{"54.5", "61", "47"}, age.SampleValues)
	assert.InDelta(t, 47, age.Numeric.Min, 1e-12)
	assert.InDelta(t, 54.5, age.Numeric.Median, 1e-12)

	sex := summary.Columns[2]
	assert.Equal(t, dataset.ColumnCategorical, sex.ColType)
	assert.Equal(t, DTypeObject, sex.DType)
	assert.Equal(t, 2, sex.NUnique)
	assert.Equal(t, 1, sex.NMissing)
	assert.Nil(t, sex.Numeric)

	note := summary.Columns[3]
	assert.Equal(t, dataset.ColumnText, note.ColType)

	require.Len(t, summary.Preview, 2)
	require.Len(t, summary.Data, 4)
	assert.Equal(t, "", summary.Data[1]["age"])
	assert.Equal(t, "54.5", summary.Preview[0]["age"])
}

func TestDescribeSampleValuesCapped(t *testing.T) {
	var rows [][]string
	for i := 0; i < 40; i++ {
		rows = append(rows, []string{fmt.Sprintf("site-%02d", i)})
	}
	summary := NewDescriber(0, 0).Describe(table([]string{"site"}, rows...))

	col := summary.Columns[0]
	assert.Len(t, col.SampleValues, SampleValueCount)
	assert.Equal(t, dataset.ColumnText, col.ColType)
	assert.Len(t, summary.Preview, DefaultPreviewRows)
}

func TestDescribeAllMissingColumn(t *testing.T) {
	summary := NewDescriber(0, 0).Describe(table([]string{"x"}, []string{""}, []string{"null"}))
	col := summary.Columns[0]
	assert.Equal(t, dataset.ColumnNumeric, col.ColType)
	assert.Equal(t, DTypeFloat, col.DType)
	assert.Equal(t, 2, col.NMissing)
	assert.Equal(t, 0, col.NUnique)
	assert.Nil(t, col.Numeric)
	assert.Empty(t, col.SampleValues)
}

func TestIsMissing(t *testing.T) {
	for _, tok := range []string{"", " ", "NA", "NaN", "null", "#N/A"} {
		assert.True(t, IsMissing(tok), tok)
	}
	for _, tok := range []string{"0", "no", "-"} {
		assert.False(t, IsMissing(tok), tok)
	}
}
