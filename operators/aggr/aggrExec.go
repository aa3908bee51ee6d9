package aggr

import (
	"errors"
	"fmt"
	"io"

	"col-eval-go/operators"
	"col-eval-go/physical"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/arrow/scalar"
)

var (
	ErrInvalidAggrColumnType = func(dt arrow.DataType) error {
		return fmt.Errorf("%s is not a valid column type to aggregate on", dt)
	}
)

var (
	_ = (operators.Operator)(&AggrExec{})
)

// AggrExec handles global aggregations without group by. It owns one
// accumulator per aggregate expression, folds every child batch into them and
// emits a single one-row batch of the finalized scalars.
type AggrExec struct {
	child        operators.Operator
	schema       *arrow.Schema
	aggregates   []*physical.AggregateExpr
	accumulators []physical.Accumulator
	done         bool
}

func NewGlobalAggrExec(child operators.Operator, aggregates []*physical.AggregateExpr) (*AggrExec, error) {
	if len(aggregates) == 0 {
		return nil, errors.New("at least one aggregate expression is required")
	}
	accs := make([]physical.Accumulator, len(aggregates))
	fields := make([]arrow.Field, len(aggregates))
	for i, agg := range aggregates {
		dt, err := physical.ExprDataType(agg.Expr, child.Schema())
		if err != nil {
			return nil, err
		}
		t, err := physical.ResolvePhysicalType(dt)
		if err != nil || !t.Numeric() {
			return nil, ErrInvalidAggrColumnType(dt)
		}
		fields[i] = arrow.Field{
			Name:     fmt.Sprintf("%s_%s", agg.Kind, agg.Expr),
			Type:     dt,
			Nullable: true,
		}
		accs[i] = agg.CreateAccumulator(i)
	}
	return &AggrExec{
		child:        child,
		schema:       arrow.NewSchema(fields, nil),
		aggregates:   aggregates,
		accumulators: accs,
	}, nil
}

// Pipeline breaker: consumes every child batch before producing its single
// output batch, then reports io.EOF.
func (a *AggrExec) Next(n uint16) (*operators.RecordBatch, error) {
	if a.done {
		return nil, io.EOF
	}
	for {
		childBatch, err := a.child.Next(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		values := make([]physical.ColumnarValue, len(a.aggregates))
		for i, agg := range a.aggregates {
			values[i], err = physical.EvalExpression(agg, childBatch)
			if err != nil {
				return nil, err
			}
		}
		for _, acc := range a.accumulators {
			if err := acc.Accumulate(values, nil); err != nil {
				return nil, err
			}
		}
	}

	resultColumns := make([]arrow.Array, len(a.accumulators))
	for i, acc := range a.accumulators {
		final, err := acc.FinalValue()
		if err != nil {
			return nil, err
		}
		sv, ok := final.(*physical.ScalarValue)
		if !ok {
			return nil, fmt.Errorf("accumulator %d finalized to a non-scalar value", i)
		}
		resultColumns[i], err = scalarColumn(a.schema.Field(i).Type, sv.Scalar)
		if err != nil {
			return nil, err
		}
	}
	a.done = true
	return &operators.RecordBatch{
		Schema:   a.schema,
		Columns:  resultColumns,
		RowCount: 1,
	}, nil
}

func (a *AggrExec) Schema() *arrow.Schema {
	return a.schema
}

func (a *AggrExec) Close() error {
	return a.child.Close()
}

// scalarColumn wraps one finalized scalar as a single-element column of the
// declared output type. An accumulator that never saw input stays null.
func scalarColumn(dt arrow.DataType, s scalar.Scalar) (arrow.Array, error) {
	mem := memory.NewGoAllocator()
	switch dt.ID() {
	case arrow.INT32:
		builder := array.NewInt32Builder(mem)
		defer builder.Release()
		if s == nil || !s.IsValid() {
			builder.AppendNull()
		} else {
			v, err := physical.Int32ScalarOf(s)
			if err != nil {
				return nil, err
			}
			builder.Append(v.Value)
		}
		return builder.NewArray(), nil
	case arrow.FLOAT64:
		builder := array.NewFloat64Builder(mem)
		defer builder.Release()
		if s == nil || !s.IsValid() {
			builder.AppendNull()
		} else {
			v, err := physical.Float64ScalarOf(s)
			if err != nil {
				return nil, err
			}
			builder.Append(v.Value)
		}
		return builder.NewArray(), nil
	default:
		return nil, ErrInvalidAggrColumnType(dt)
	}
}
