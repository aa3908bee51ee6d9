package physical

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/scalar"
)

// AggregateKind selects the reduction an accumulator performs.
type AggregateKind int

const (
	Min AggregateKind = iota
	Max
	Sum
)

func (k AggregateKind) String() string {
	switch k {
	case Min:
		return "min"
	case Max:
		return "max"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("aggregatekind(%d)", int(k))
	}
}

// AggregateExpr wraps an inner expression. Evaluating it just evaluates the
// inner expression; the aggregation itself runs through an Accumulator that
// the caller creates per group and feeds batch by batch.
type AggregateExpr struct {
	Kind AggregateKind
	Expr Expression
}

func NewAggregateExpr(kind AggregateKind, expr Expression) *AggregateExpr {
	return &AggregateExpr{Kind: kind, Expr: expr}
}

func (a *AggregateExpr) ExprNode() {}
func (a *AggregateExpr) String() string {
	return fmt.Sprintf("%s %s", a.Kind, a.Expr)
}

// CreateAccumulator binds a fresh accumulator to a column index within the
// slice of already-evaluated expression outputs fed to Accumulate.
func (a *AggregateExpr) CreateAccumulator(index int) Accumulator {
	return &scalarAccumulator{
		kind:  a.Kind,
		index: index,
		value: scalar.MakeNullScalar(arrow.Null),
	}
}

// Accumulator folds successive inputs into one running scalar. It belongs to
// exactly one caller; FinalValue yields the scalar once, after which the
// accumulator refuses further use.
type Accumulator interface {
	Accumulate(inputs []ColumnarValue, validity *array.Boolean) error
	FinalValue() (ColumnarValue, error)
}

var (
	_ = (Accumulator)(&scalarAccumulator{})
)

type scalarAccumulator struct {
	kind  AggregateKind
	index int
	value scalar.Scalar
	done  bool
}

func (a *scalarAccumulator) Accumulate(inputs []ColumnarValue, validity *array.Boolean) error {
	if a.done {
		return ErrAccumulatorFinalized
	}
	if a.index < 0 || a.index >= len(inputs) {
		return fmt.Errorf("accumulator index %d out of range for %d inputs", a.index, len(inputs))
	}

	var candidate scalar.Scalar
	switch v := inputs[a.index].(type) {
	case *ArrayValue:
		reduced, seen, err := reduceArray(a.kind, v.Array, validity)
		if err != nil {
			return err
		}
		if !seen {
			// every row masked out or null, nothing to fold in
			return nil
		}
		candidate = reduced
	case *ScalarValue:
		t, err := ResolvePhysicalType(v.Scalar.DataType())
		if err != nil {
			return err
		}
		if !t.Numeric() {
			return ErrPrimitiveTypeNotSupported(t.String())
		}
		if !v.Scalar.IsValid() {
			return nil
		}
		candidate = v.Scalar
	default:
		return ErrUnsupportedExpression(inputs[a.index].String())
	}

	merged, err := combineScalars(a.kind, a.value, candidate)
	if err != nil {
		return err
	}
	a.value = merged
	return nil
}

func (a *scalarAccumulator) FinalValue() (ColumnarValue, error) {
	if a.done {
		return nil, ErrAccumulatorFinalized
	}
	a.done = true
	return NewScalarValue(a.value), nil
}

// rowValid combines the column's own validity with a caller-supplied mask via
// logical AND. A null entry in the mask counts as masked out.
func rowValid(arr arrow.Array, validity *array.Boolean, i int) bool {
	if arr.IsNull(i) {
		return false
	}
	if validity == nil {
		return true
	}
	return !validity.IsNull(i) && validity.Value(i)
}

// reduceArray folds the unmasked elements of a numeric column down to one
// candidate scalar. seen is false when no element survived the mask.
func reduceArray(kind AggregateKind, arr arrow.Array, validity *array.Boolean) (scalar.Scalar, bool, error) {
	if validity != nil && validity.Len() != arr.Len() {
		return nil, false, ErrDifferentSizes(
			fmt.Sprintf("Array[%d]<%s>", arr.Len(), arr.DataType()),
			fmt.Sprintf("ValidityMask[%d]", validity.Len()))
	}
	t, err := ResolvePhysicalType(arr.DataType())
	if err != nil {
		return nil, false, err
	}

	switch t {
	case Int32:
		col, err := Int32ArrayOf(arr)
		if err != nil {
			return nil, false, err
		}
		var acc int32
		seen := false
		for i := 0; i < col.Len(); i++ {
			if !rowValid(arr, validity, i) {
				continue
			}
			v := col.Value(i)
			if !seen {
				acc = v
			} else {
				switch kind {
				case Min:
					if v < acc {
						acc = v
					}
				case Max:
					if v > acc {
						acc = v
					}
				case Sum:
					acc += v
				}
			}
			seen = true
		}
		if !seen {
			return nil, false, nil
		}
		return scalar.NewInt32Scalar(acc), true, nil
	case Float64:
		col, err := Float64ArrayOf(arr)
		if err != nil {
			return nil, false, err
		}
		var acc float64
		seen := false
		for i := 0; i < col.Len(); i++ {
			if !rowValid(arr, validity, i) {
				continue
			}
			v := col.Value(i)
			if !seen {
				acc = v
			} else {
				switch kind {
				case Min:
					if v < acc {
						acc = v
					}
				case Max:
					if v > acc {
						acc = v
					}
				case Sum:
					acc += v
				}
			}
			seen = true
		}
		if !seen {
			return nil, false, nil
		}
		return scalar.NewFloat64Scalar(acc), true, nil
	default:
		return nil, false, ErrPrimitiveTypeNotSupported(t.String())
	}
}

// combineScalars folds a batch candidate into the running value: compare and
// replace for Min/Max, running addition for Sum. The initial null is always
// replaced by the first candidate.
func combineScalars(kind AggregateKind, stored, candidate scalar.Scalar) (scalar.Scalar, error) {
	if stored == nil || !stored.IsValid() {
		return candidate, nil
	}
	st, err := ResolvePhysicalType(stored.DataType())
	if err != nil {
		return nil, err
	}
	ct, err := ResolvePhysicalType(candidate.DataType())
	if err != nil {
		return nil, err
	}
	if st != ct {
		return nil, ErrPrimitiveTypeNotSupported(
			fmt.Sprintf("cannot fold %s into running %s", candidate.DataType(), stored.DataType()))
	}

	switch st {
	case Int32:
		s, err := Int32ScalarOf(stored)
		if err != nil {
			return nil, err
		}
		c, err := Int32ScalarOf(candidate)
		if err != nil {
			return nil, err
		}
		switch kind {
		case Min:
			if c.Value < s.Value {
				return candidate, nil
			}
			return stored, nil
		case Max:
			if c.Value > s.Value {
				return candidate, nil
			}
			return stored, nil
		case Sum:
			return scalar.NewInt32Scalar(s.Value + c.Value), nil
		}
	case Float64:
		s, err := Float64ScalarOf(stored)
		if err != nil {
			return nil, err
		}
		c, err := Float64ScalarOf(candidate)
		if err != nil {
			return nil, err
		}
		switch kind {
		case Min:
			if c.Value < s.Value {
				return candidate, nil
			}
			return stored, nil
		case Max:
			if c.Value > s.Value {
				return candidate, nil
			}
			return stored, nil
		case Sum:
			return scalar.NewFloat64Scalar(s.Value + c.Value), nil
		}
	}
	return nil, ErrPrimitiveTypeNotSupported(stored.DataType().String())
}
