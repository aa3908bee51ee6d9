package source

import (
	"fmt"
	"io"

	"col-eval-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&InMemorySource{})
)

var (
	ErrInvalidInMemoryDataType = func(Type any) error {
		return fmt.Errorf("%T is not a supported in memory dataType for InMemorySource", Type)
	}
)

// InMemorySource serves record batches from Go slices. Mostly a test and
// driver convenience; the supported slice types mirror the evaluator's
// physical types.
type InMemorySource struct {
	schema  *arrow.Schema
	columns []arrow.Array
	rows    int64
	pos     int64
}

func NewInMemorySource(names []string, columns []any) (*InMemorySource, error) {
	if len(names) != len(columns) {
		return nil, operators.ErrInvalidSchema("number of column names and columns do not match")
	}
	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, 0, len(names))
	arrays := make([]arrow.Array, 0, len(names))
	for i, col := range columns {
		var arr arrow.Array
		switch vs := col.(type) {
		case []int32:
			b := array.NewInt32Builder(mem)
			b.AppendValues(vs, nil)
			arr = b.NewArray()
			b.Release()
		case []float64:
			b := array.NewFloat64Builder(mem)
			b.AppendValues(vs, nil)
			arr = b.NewArray()
			b.Release()
		case []string:
			b := array.NewStringBuilder(mem)
			b.AppendValues(vs, nil)
			arr = b.NewArray()
			b.Release()
		case []bool:
			b := array.NewBooleanBuilder(mem)
			b.AppendValues(vs, nil)
			arr = b.NewArray()
			b.Release()
		case arrow.Array:
			vs.Retain()
			arr = vs
		default:
			return nil, ErrInvalidInMemoryDataType(col)
		}
		fields = append(fields, arrow.Field{Name: names[i], Type: arr.DataType(), Nullable: true})
		arrays = append(arrays, arr)
	}
	rows := int64(0)
	if len(arrays) > 0 {
		rows = int64(arrays[0].Len())
	}
	for _, arr := range arrays {
		if int64(arr.Len()) != rows {
			operators.ReleaseArrays(arrays)
			return nil, operators.ErrInvalidSchema("in memory columns have different lengths")
		}
	}
	return &InMemorySource{
		schema:  arrow.NewSchema(fields, nil),
		columns: arrays,
		rows:    rows,
	}, nil
}

func (m *InMemorySource) Next(n uint16) (*operators.RecordBatch, error) {
	if m.pos >= m.rows {
		return nil, io.EOF
	}
	end := m.pos + int64(n)
	if end > m.rows {
		end = m.rows
	}
	cols := make([]arrow.Array, len(m.columns))
	for i, col := range m.columns {
		cols[i] = array.NewSlice(col, m.pos, end)
	}
	batch := &operators.RecordBatch{
		Schema:   m.schema,
		Columns:  cols,
		RowCount: uint64(end - m.pos),
	}
	m.pos = end
	return batch, nil
}

func (m *InMemorySource) Schema() *arrow.Schema {
	return m.schema
}

func (m *InMemorySource) Close() error {
	operators.ReleaseArrays(m.columns)
	m.columns = nil
	m.pos = m.rows
	return nil
}
