package filter

import (
	"context"
	"errors"
	"io"

	"col-eval-go/operators"
	"col-eval-go/physical"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&FilterExec{})
)

// FilterExec filters input records according to a predicate expression that
// evaluates to a boolean columnar value.
type FilterExec struct {
	input     operators.Operator
	schema    *arrow.Schema
	predicate physical.Expression
	done      bool
}

func NewFilterExec(input operators.Operator, pred physical.Expression) (*FilterExec, error) {
	if !validPredicate(pred, input.Schema()) {
		return nil, errors.New("predicate passed to FilterExec is invalid")
	}
	return &FilterExec{
		input:     input,
		predicate: pred,
		schema:    input.Schema(),
	}, nil
}

func (f *FilterExec) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, errors.New("must pass in wanted batch size > 0")
	}
	if f.done {
		return nil, io.EOF
	}
	childBatch, err := f.input.Next(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			f.done = true
			return nil, io.EOF
		}
		return nil, err
	}
	mask, err := predicateMask(f.predicate, childBatch)
	if err != nil {
		return nil, err
	}
	filteredCols := make([]arrow.Array, len(childBatch.Columns))
	for i, col := range childBatch.Columns {
		filteredCols[i], err = ApplyBooleanMask(col, mask)
		if err != nil {
			return nil, err
		}
	}
	mask.Release()
	operators.ReleaseArrays(childBatch.Columns)
	size := uint64(0)
	if len(filteredCols) > 0 {
		size = uint64(filteredCols[0].Len())
	}

	return &operators.RecordBatch{
		Schema:   childBatch.Schema,
		Columns:  filteredCols,
		RowCount: size,
	}, nil
}

func (f *FilterExec) Schema() *arrow.Schema {
	return f.schema
}

func (f *FilterExec) Close() error {
	return f.input.Close()
}

// predicateMask turns the predicate's columnar value into a per-row boolean
// mask. A scalar result broadcasts over the whole batch: true keeps every
// row, false (or null) drops all of them.
func predicateMask(pred physical.Expression, batch *operators.RecordBatch) (*array.Boolean, error) {
	value, err := physical.EvalExpression(pred, batch)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case *physical.ArrayValue:
		return physical.BooleanArrayOf(v.Array)
	case *physical.ScalarValue:
		keep := false
		if v.Scalar.IsValid() {
			b, err := physical.BooleanScalarOf(v.Scalar)
			if err != nil {
				return nil, err
			}
			keep = b.Value
		}
		builder := array.NewBooleanBuilder(memory.NewGoAllocator())
		defer builder.Release()
		for i := uint64(0); i < batch.RowCount; i++ {
			builder.Append(keep)
		}
		return builder.NewArray().(*array.Boolean), nil
	}
	return nil, errors.New("predicate did not evaluate to a boolean columnar value")
}

func ApplyBooleanMask(col arrow.Array, mask *array.Boolean) (arrow.Array, error) {
	datum, err := compute.Filter(
		context.TODO(),
		compute.NewDatum(col),
		compute.NewDatum(mask),
		*compute.DefaultFilterOptions(),
	)
	if err != nil {
		return nil, err
	}

	arr := datum.(*compute.ArrayDatum).MakeArray()
	return arr, nil
}

func validPredicate(pred physical.Expression, schema *arrow.Schema) bool {
	switch p := pred.(type) {
	case *physical.ColumnExpr:
		dt, err := physical.ExprDataType(p, schema)
		if err != nil {
			return false
		}
		return dt.ID() == arrow.BOOL

	case *physical.LiteralBool:
		return true

	case *physical.ComparisonExpr:
		dt1, err := physical.ExprDataType(p.Left, schema)
		if err != nil {
			return false
		}
		dt2, err := physical.ExprDataType(p.Right, schema)
		if err != nil {
			return false
		}
		if !arrow.TypeEqual(dt1, dt2) {
			return false
		}
		return validOperand(p.Left, schema) && validOperand(p.Right, schema)

	default:
		return false
	}
}

func validOperand(e physical.Expression, schema *arrow.Schema) bool {
	switch ex := e.(type) {
	case *physical.ComparisonExpr:
		return validPredicate(ex, schema)
	default:
		_, err := physical.ExprDataType(ex, schema)
		return err == nil
	}
}
