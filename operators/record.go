package operators

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrInvalidSchema = func(info string) error {
		return fmt.Errorf("invalid schema was provided. context: %s", info)
	}
	ErrColumnOutOfRange = func(index, count int) error {
		return fmt.Errorf("column index %d out of range for batch with %d columns", index, count)
	}
)

type Operator interface {
	Next(uint16) (*RecordBatch, error)
	Schema() *arrow.Schema
	// Call Operator.Close() after Next returns an io.EOF to clean up resources
	Close() error
}

// RecordBatch is a row-aligned collection of same-length columns. Expression
// evaluation reads batches and never mutates them.
type RecordBatch struct {
	Schema   *arrow.Schema
	Columns  []arrow.Array
	RowCount uint64
}

// Column returns the column at index or fails when the index is outside the
// batch. Evaluation goes through this instead of indexing Columns directly.
func (rb *RecordBatch) Column(index int) (arrow.Array, error) {
	if index < 0 || index >= len(rb.Columns) {
		return nil, ErrColumnOutOfRange(index, len(rb.Columns))
	}
	return rb.Columns[index], nil
}

func (rb *RecordBatch) NumColumns() int {
	return len(rb.Columns)
}

func (rb *RecordBatch) DeepEqual(other *RecordBatch) bool {
	if !rb.Schema.Equal(other.Schema) {
		return false
	}
	if len(rb.Columns) != len(other.Columns) {
		return false
	}
	for i := 0; i < len(rb.Columns); i++ {
		if !array.Equal(rb.Columns[i], other.Columns[i]) {
			return false
		}
	}
	return true
}

type SchemaBuilder struct {
	fields []arrow.Field
}

type RecordBatchBuilder struct {
	SchemaBuilder *SchemaBuilder
}

func NewRecordBatchBuilder() *RecordBatchBuilder {
	return &RecordBatchBuilder{
		SchemaBuilder: &SchemaBuilder{
			fields: make([]arrow.Field, 0, 10),
		},
	}
}

func (sb *SchemaBuilder) WithField(name string, dtype arrow.DataType, nullable bool) *SchemaBuilder {
	sb.fields = append(sb.fields, arrow.Field{
		Name:     name,
		Type:     dtype,
		Nullable: nullable,
	})
	return sb
}

func (sb *SchemaBuilder) Build() *arrow.Schema {
	return arrow.NewSchema(sb.fields, nil)
}

func (rbb *RecordBatchBuilder) Schema() *arrow.Schema {
	return arrow.NewSchema(rbb.SchemaBuilder.fields, nil)
}

// schema is always right in case of type mismatches
func (rbb *RecordBatchBuilder) validate(schema *arrow.Schema, columns []arrow.Array) error {
	if len(schema.Fields()) != len(columns) {
		return ErrInvalidSchema("schema fields and column count do not match")
	}
	var errs []string
	rows := -1
	for i := 0; i < len(columns); i++ {
		field := schema.Field(i)
		colType := columns[i].DataType()

		if !arrow.TypeEqual(colType, field.Type) {
			errs = append(errs,
				fmt.Sprintf("Type mismatch at position %d: column '%s' has type '%s', but schema expects '%s'.",
					i, field.Name, colType, field.Type))
		}
		if rows == -1 {
			rows = columns[i].Len()
		} else if columns[i].Len() != rows {
			errs = append(errs,
				fmt.Sprintf("Length mismatch at position %d: column '%s' has %d rows, expected %d.",
					i, field.Name, columns[i].Len(), rows))
		}
	}
	if len(errs) > 0 {
		return ErrInvalidSchema(strings.Join(errs, " "))
	}
	return nil
}

func (rbb *RecordBatchBuilder) NewRecordBatch(schema *arrow.Schema, columns []arrow.Array) (*RecordBatch, error) {
	if err := rbb.validate(schema, columns); err != nil {
		return nil, err
	}
	rows := uint64(0)
	if len(columns) > 0 {
		rows = uint64(columns[0].Len())
	}
	return &RecordBatch{
		Schema:   schema,
		Columns:  columns,
		RowCount: rows,
	}, nil
}

func ReleaseArrays(arrays []arrow.Array) {
	for _, arr := range arrays {
		if arr != nil {
			arr.Release()
		}
	}
}

// Array generation helpers for the four supported physical types. The
// WithNulls variants take a validity slice aligned with values (true = valid).

func (rbb *RecordBatchBuilder) GenInt32Array(values ...int32) arrow.Array {
	builder := array.NewInt32Builder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

func (rbb *RecordBatchBuilder) GenInt32ArrayWithNulls(values []int32, valid []bool) arrow.Array {
	builder := array.NewInt32Builder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, valid)
	return builder.NewArray()
}

func (rbb *RecordBatchBuilder) GenFloatArray(values ...float64) arrow.Array {
	builder := array.NewFloat64Builder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

func (rbb *RecordBatchBuilder) GenFloatArrayWithNulls(values []float64, valid []bool) arrow.Array {
	builder := array.NewFloat64Builder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, valid)
	return builder.NewArray()
}

func (rbb *RecordBatchBuilder) GenStringArray(values ...string) arrow.Array {
	builder := array.NewStringBuilder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

func (rbb *RecordBatchBuilder) GenStringArrayWithNulls(values []string, valid []bool) arrow.Array {
	builder := array.NewStringBuilder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, valid)
	return builder.NewArray()
}

func (rbb *RecordBatchBuilder) GenBoolArray(values ...bool) arrow.Array {
	builder := array.NewBooleanBuilder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, nil)
	return builder.NewArray()
}

func (rbb *RecordBatchBuilder) GenBoolArrayWithNulls(values []bool, valid []bool) arrow.Array {
	builder := array.NewBooleanBuilder(memory.NewGoAllocator())
	defer builder.Release()
	builder.AppendValues(values, valid)
	return builder.NewArray()
}
