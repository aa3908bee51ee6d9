package physical

import (
	"context"
	"fmt"
	"strconv"

	"col-eval-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/scalar"
)

var (
	ErrUnsupportedExpression = func(info string) error {
		return fmt.Errorf("unsupported expression passed to EvalExpression: %s", info)
	}
)

var (
	_ = (Expression)(&ColumnExpr{})
	_ = (Expression)(&LiteralBool{})
	_ = (Expression)(&LiteralInt32{})
	_ = (Expression)(&LiteralFloat64{})
	_ = (Expression)(&LiteralString{})
	_ = (Expression)(&ComparisonExpr{})
	_ = (Expression)(&ArithmeticExpr{})
	_ = (Expression)(&AggregateExpr{})
)

/*
Eval(expr):

	match expr:
	    Column(index) -> array variant of that column
	    Literal(x) -> scalar variant of x
	    Comparison(left op right) -> eval children, broadcast, boolean result
	    Arithmetic(left op right) -> eval children, broadcast, numeric result
	    Aggregate(inner) -> eval inner (accumulation happens via Accumulator)
*/
type Expression interface {
	// empty method, only for the sake of polymorphism
	ExprNode()
	fmt.Stringer
}

// EvalExpression evaluates an expression tree against one batch. The batch is
// borrowed, never mutated; errors from children propagate unchanged.
func EvalExpression(expr Expression, batch *operators.RecordBatch) (ColumnarValue, error) {
	switch e := expr.(type) {
	case *ColumnExpr:
		return evalColumn(e, batch)
	case *LiteralBool:
		return NewScalarValue(e.value), nil
	case *LiteralInt32:
		return NewScalarValue(e.value), nil
	case *LiteralFloat64:
		return NewScalarValue(e.value), nil
	case *LiteralString:
		return NewScalarValue(e.value), nil
	case *ComparisonExpr:
		return evalComparison(e, batch)
	case *ArithmeticExpr:
		return evalArithmetic(e, batch)
	case *AggregateExpr:
		return EvalExpression(e.Expr, batch)
	default:
		return nil, ErrUnsupportedExpression(expr.String())
	}
}

// ExprDataType infers the arrow type an expression will evaluate to against
// an input schema, without evaluating it.
func ExprDataType(e Expression, inputSchema *arrow.Schema) (arrow.DataType, error) {
	switch ex := e.(type) {
	case *ColumnExpr:
		if ex.Index < 0 || ex.Index >= len(inputSchema.Fields()) {
			return nil, operators.ErrColumnOutOfRange(ex.Index, len(inputSchema.Fields()))
		}
		return inputSchema.Field(ex.Index).Type, nil
	case *LiteralBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case *LiteralInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case *LiteralFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case *LiteralString:
		return arrow.BinaryTypes.String, nil
	case *ComparisonExpr:
		return arrow.FixedWidthTypes.Boolean, nil
	case *ArithmeticExpr:
		// result stays in the operand numeric domain; both sides must agree
		return ExprDataType(ex.Left, inputSchema)
	case *AggregateExpr:
		return ExprDataType(ex.Expr, inputSchema)
	default:
		return nil, ErrUnsupportedExpression(ex.String())
	}
}

// ColumnExpr resolves column `Index` of the input batch to its array.
type ColumnExpr struct {
	Index int
}

func NewColumnExpr(index int) *ColumnExpr {
	return &ColumnExpr{Index: index}
}

func evalColumn(c *ColumnExpr, batch *operators.RecordBatch) (ColumnarValue, error) {
	col, err := batch.Column(c.Index)
	if err != nil {
		return nil, err
	}
	// enforce the closed physical type set up front
	if _, err := ResolvePhysicalType(col.DataType()); err != nil {
		return nil, err
	}
	col.Retain()
	return NewArrayValue(col), nil
}

func (c *ColumnExpr) ExprNode() {}
func (c *ColumnExpr) String() string {
	return fmt.Sprintf("#%d", c.Index)
}

// Literal nodes ignore the input batch and always evaluate to the scalar
// variant. Each type has a representable null state.

type LiteralBool struct {
	value scalar.Scalar
}

func NewLiteralBool(value bool) *LiteralBool {
	return &LiteralBool{value: scalar.NewBooleanScalar(value)}
}

func NewNullLiteralBool() *LiteralBool {
	return &LiteralBool{value: scalar.MakeNullScalar(arrow.FixedWidthTypes.Boolean)}
}

func (l *LiteralBool) ExprNode() {}
func (l *LiteralBool) String() string {
	if !l.value.IsValid() {
		return "null"
	}
	return strconv.FormatBool(l.value.(*scalar.Boolean).Value)
}

type LiteralInt32 struct {
	value scalar.Scalar
}

func NewLiteralInt32(value int32) *LiteralInt32 {
	return &LiteralInt32{value: scalar.NewInt32Scalar(value)}
}

func NewNullLiteralInt32() *LiteralInt32 {
	return &LiteralInt32{value: scalar.MakeNullScalar(arrow.PrimitiveTypes.Int32)}
}

func (l *LiteralInt32) ExprNode() {}
func (l *LiteralInt32) String() string {
	if !l.value.IsValid() {
		return "null"
	}
	return strconv.FormatInt(int64(l.value.(*scalar.Int32).Value), 10)
}

type LiteralFloat64 struct {
	value scalar.Scalar
}

func NewLiteralFloat64(value float64) *LiteralFloat64 {
	return &LiteralFloat64{value: scalar.NewFloat64Scalar(value)}
}

func NewNullLiteralFloat64() *LiteralFloat64 {
	return &LiteralFloat64{value: scalar.MakeNullScalar(arrow.PrimitiveTypes.Float64)}
}

func (l *LiteralFloat64) ExprNode() {}
func (l *LiteralFloat64) String() string {
	if !l.value.IsValid() {
		return "null"
	}
	return strconv.FormatFloat(l.value.(*scalar.Float64).Value, 'g', -1, 64)
}

type LiteralString struct {
	value scalar.Scalar
}

func NewLiteralString(value string) *LiteralString {
	return &LiteralString{value: scalar.NewStringScalar(value)}
}

func NewNullLiteralString() *LiteralString {
	return &LiteralString{value: scalar.MakeNullScalar(arrow.BinaryTypes.String)}
}

func (l *LiteralString) ExprNode() {}
func (l *LiteralString) String() string {
	if !l.value.IsValid() {
		return "null"
	}
	return fmt.Sprintf("%q", string(l.value.(*scalar.String).Data()))
}

// CompareOp selects a comparison kernel family.
type CompareOp int

const (
	Eq CompareOp = iota
	Neq
)

// one descriptor per operator instead of one node type per operator: the
// arrow kernel name, the scalar-vs-scalar result mapping and the display
// symbol fully describe the family.
type compareKernel struct {
	fnName string
	symbol string
	apply  func(equal bool) bool
}

var compareKernels = map[CompareOp]compareKernel{
	Eq:  {fnName: "equal", symbol: "==", apply: func(equal bool) bool { return equal }},
	Neq: {fnName: "not_equal", symbol: "!=", apply: func(equal bool) bool { return !equal }},
}

type ComparisonExpr struct {
	Op    CompareOp
	Left  Expression
	Right Expression
}

func NewComparisonExpr(op CompareOp, left, right Expression) *ComparisonExpr {
	return &ComparisonExpr{Op: op, Left: left, Right: right}
}

func evalComparison(c *ComparisonExpr, batch *operators.RecordBatch) (ColumnarValue, error) {
	kernel, ok := compareKernels[c.Op]
	if !ok {
		return nil, ErrUnsupportedExpression(c.String())
	}
	left, err := EvalExpression(c.Left, batch)
	if err != nil {
		return nil, err
	}
	right, err := EvalExpression(c.Right, batch)
	if err != nil {
		return nil, err
	}

	switch l := left.(type) {
	case *ArrayValue:
		switch r := right.(type) {
		case *ArrayValue:
			if l.Len() != r.Len() {
				return nil, ErrDifferentSizes(l.String(), r.String())
			}
			return callCompareKernel(kernel.fnName, compute.NewDatum(l.Array), compute.NewDatum(r.Array))
		case *ScalarValue:
			return callCompareKernel(kernel.fnName, compute.NewDatum(l.Array), compute.NewDatum(r.Scalar))
		}
	case *ScalarValue:
		switch r := right.(type) {
		case *ArrayValue:
			// Eq/Neq commute, so the array always feeds the kernel first
			return callCompareKernel(kernel.fnName, compute.NewDatum(r.Array), compute.NewDatum(l.Scalar))
		case *ScalarValue:
			equal, err := scalarsEqual(l.Scalar, r.Scalar)
			if err != nil {
				return nil, err
			}
			return NewScalarValue(scalar.NewBooleanScalar(kernel.apply(equal))), nil
		}
	}
	return nil, ErrUnsupportedExpression(c.String())
}

func (c *ComparisonExpr) ExprNode() {}
func (c *ComparisonExpr) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, compareKernels[c.Op].symbol, c.Right)
}

func callCompareKernel(fnName string, left, right compute.Datum) (ColumnarValue, error) {
	datum, err := compute.CallFunction(context.TODO(), fnName, nil, left, right)
	if err != nil {
		return nil, err
	}
	arr, err := unpackDatum(datum)
	if err != nil {
		return nil, err
	}
	return NewArrayValue(arr), nil
}

// scalarsEqual compares two scalars of the same physical type. Nulls compare
// option-style: null == null is true, null == value is false.
func scalarsEqual(left, right scalar.Scalar) (bool, error) {
	lt, err := ResolvePhysicalType(left.DataType())
	if err != nil {
		return false, err
	}
	rt, err := ResolvePhysicalType(right.DataType())
	if err != nil {
		return false, err
	}
	if lt != rt {
		return false, ErrCantCompareDifferentTypes(left.DataType(), right.DataType())
	}
	if !left.IsValid() || !right.IsValid() {
		return left.IsValid() == right.IsValid(), nil
	}
	switch lt {
	case Int32:
		l, err := Int32ScalarOf(left)
		if err != nil {
			return false, err
		}
		r, err := Int32ScalarOf(right)
		if err != nil {
			return false, err
		}
		return l.Value == r.Value, nil
	case Float64:
		l, err := Float64ScalarOf(left)
		if err != nil {
			return false, err
		}
		r, err := Float64ScalarOf(right)
		if err != nil {
			return false, err
		}
		return l.Value == r.Value, nil
	case Utf8:
		l, err := StringScalarOf(left)
		if err != nil {
			return false, err
		}
		r, err := StringScalarOf(right)
		if err != nil {
			return false, err
		}
		return string(l.Data()) == string(r.Data()), nil
	case Boolean:
		l, err := BooleanScalarOf(left)
		if err != nil {
			return false, err
		}
		r, err := BooleanScalarOf(right)
		if err != nil {
			return false, err
		}
		return l.Value == r.Value, nil
	}
	return false, ErrUnsupportedPhysicalType(left.DataType().String())
}

// ArithOp selects an arithmetic kernel family.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
)

type arithKernel struct {
	symbol  string
	fn      func(context.Context, compute.ArithmeticOptions, compute.Datum, compute.Datum) (compute.Datum, error)
	intFn   func(a, b int32) (int32, error)
	floatFn func(a, b float64) float64
}

var arithKernels = map[ArithOp]arithKernel{
	Add: {
		symbol:  "+",
		fn:      compute.Add,
		intFn:   func(a, b int32) (int32, error) { return a + b, nil },
		floatFn: func(a, b float64) float64 { return a + b },
	},
	Sub: {
		symbol:  "-",
		fn:      compute.Subtract,
		intFn:   func(a, b int32) (int32, error) { return a - b, nil },
		floatFn: func(a, b float64) float64 { return a - b },
	},
	Mul: {
		symbol:  "*",
		fn:      compute.Multiply,
		intFn:   func(a, b int32) (int32, error) { return a * b, nil },
		floatFn: func(a, b float64) float64 { return a * b },
	},
	Div: {
		symbol: "/",
		fn:     compute.Divide,
		intFn: func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, ErrDivisionByZero
			}
			return a / b, nil
		},
		floatFn: func(a, b float64) float64 { return a / b },
	},
}

type ArithmeticExpr struct {
	Op    ArithOp
	Left  Expression
	Right Expression
}

func NewArithmeticExpr(op ArithOp, left, right Expression) *ArithmeticExpr {
	return &ArithmeticExpr{Op: op, Left: left, Right: right}
}

func evalArithmetic(a *ArithmeticExpr, batch *operators.RecordBatch) (ColumnarValue, error) {
	kernel, ok := arithKernels[a.Op]
	if !ok {
		return nil, ErrUnsupportedExpression(a.String())
	}
	left, err := EvalExpression(a.Left, batch)
	if err != nil {
		return nil, err
	}
	right, err := EvalExpression(a.Right, batch)
	if err != nil {
		return nil, err
	}

	switch l := left.(type) {
	case *ArrayValue:
		switch r := right.(type) {
		case *ArrayValue:
			if l.Len() != r.Len() {
				return nil, ErrDifferentSizes(l.String(), r.String())
			}
			return callArithKernel(kernel, compute.NewDatum(l.Array), compute.NewDatum(r.Array))
		case *ScalarValue:
			return callArithKernel(kernel, compute.NewDatum(l.Array), compute.NewDatum(r.Scalar))
		}
	case *ScalarValue:
		switch r := right.(type) {
		case *ArrayValue:
			// unlike Eq/Neq the operands must not swap: 5 - A and A - 5 differ
			return callArithKernel(kernel, compute.NewDatum(l.Scalar), compute.NewDatum(r.Array))
		case *ScalarValue:
			return arithScalars(kernel, l.Scalar, r.Scalar)
		}
	}
	return nil, ErrUnsupportedExpression(a.String())
}

func (a *ArithmeticExpr) ExprNode() {}
func (a *ArithmeticExpr) String() string {
	return fmt.Sprintf("%s %s %s", a.Left, arithKernels[a.Op].symbol, a.Right)
}

func callArithKernel(kernel arithKernel, left, right compute.Datum) (ColumnarValue, error) {
	datum, err := kernel.fn(context.TODO(), compute.ArithmeticOptions{}, left, right)
	if err != nil {
		return nil, err
	}
	arr, err := unpackDatum(datum)
	if err != nil {
		return nil, err
	}
	return NewArrayValue(arr), nil
}

// arithScalars computes scalar op scalar directly. Only the two numeric
// physical types participate; a null on either side propagates to a null
// result of the same type.
func arithScalars(kernel arithKernel, left, right scalar.Scalar) (ColumnarValue, error) {
	lt, err := ResolvePhysicalType(left.DataType())
	if err != nil {
		return nil, err
	}
	rt, err := ResolvePhysicalType(right.DataType())
	if err != nil {
		return nil, err
	}
	if lt != rt || !lt.Numeric() {
		return nil, ErrPrimitiveTypeNotSupported(
			fmt.Sprintf("%s %s %s", left.DataType(), kernel.symbol, right.DataType()))
	}

	switch lt {
	case Int32:
		l, err := Int32ScalarOf(left)
		if err != nil {
			return nil, err
		}
		r, err := Int32ScalarOf(right)
		if err != nil {
			return nil, err
		}
		if !l.IsValid() || !r.IsValid() {
			return NewScalarValue(scalar.MakeNullScalar(arrow.PrimitiveTypes.Int32)), nil
		}
		v, err := kernel.intFn(l.Value, r.Value)
		if err != nil {
			return nil, err
		}
		return NewScalarValue(scalar.NewInt32Scalar(v)), nil
	case Float64:
		l, err := Float64ScalarOf(left)
		if err != nil {
			return nil, err
		}
		r, err := Float64ScalarOf(right)
		if err != nil {
			return nil, err
		}
		if !l.IsValid() || !r.IsValid() {
			return NewScalarValue(scalar.MakeNullScalar(arrow.PrimitiveTypes.Float64)), nil
		}
		return NewScalarValue(scalar.NewFloat64Scalar(kernel.floatFn(l.Value, r.Value))), nil
	}
	return nil, ErrPrimitiveTypeNotSupported(left.DataType().String())
}

func unpackDatum(d compute.Datum) (arrow.Array, error) {
	arr, ok := d.(*compute.ArrayDatum)
	if !ok {
		return nil, fmt.Errorf("datum %v is not of type array", d)
	}
	return arr.MakeArray(), nil
}
