package physical

import (
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/scalar"
)

var (
	ErrUnsupportedPhysicalType = func(info string) error {
		return fmt.Errorf("unsupported physical type: %s", info)
	}
	ErrPrimitiveTypeNotSupported = func(info string) error {
		return fmt.Errorf("primitive type not supported for this operation: %s", info)
	}
	ErrDowncastFailed = func(want string, got arrow.DataType) error {
		return fmt.Errorf("downcast to %s failed for value of type %s", want, got)
	}
	ErrDifferentSizes = func(left, right string) error {
		return fmt.Errorf("array operands have different sizes: %s vs %s", left, right)
	}
	ErrCantCompareDifferentTypes = func(leftType, rightType arrow.DataType) error {
		return fmt.Errorf("cannot compare different data types: %s and %s", leftType, rightType)
	}
	ErrDivisionByZero       = errors.New("integer division by zero")
	ErrAccumulatorFinalized = errors.New("accumulator already finalized")
)

// PhysicalType is the closed set of runtime representations the evaluator
// operates on. Anything outside this set is an unsupported-type error, never
// a panic.
type PhysicalType int

const (
	Int32 PhysicalType = iota
	Float64
	Utf8
	Boolean
)

func (t PhysicalType) String() string {
	switch t {
	case Int32:
		return "int32"
	case Float64:
		return "float64"
	case Utf8:
		return "utf8"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("physicaltype(%d)", int(t))
	}
}

func (t PhysicalType) DataType() arrow.DataType {
	switch t {
	case Int32:
		return arrow.PrimitiveTypes.Int32
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case Utf8:
		return arrow.BinaryTypes.String
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.Null
	}
}

func (t PhysicalType) Numeric() bool {
	return t == Int32 || t == Float64
}

// ResolvePhysicalType maps an arrow logical type onto the closed physical
// set. Pure; no side effects.
func ResolvePhysicalType(dt arrow.DataType) (PhysicalType, error) {
	switch dt.ID() {
	case arrow.INT32:
		return Int32, nil
	case arrow.FLOAT64:
		return Float64, nil
	case arrow.STRING:
		return Utf8, nil
	case arrow.BOOL:
		return Boolean, nil
	default:
		return 0, ErrUnsupportedPhysicalType(dt.String())
	}
}

// ColumnarValue is the uniform result of evaluating any expression: either a
// full column or a single scalar, never both.
type ColumnarValue interface {
	columnarValue()
	DataType() arrow.DataType
	String() string
}

var (
	_ = (ColumnarValue)(&ArrayValue{})
	_ = (ColumnarValue)(&ScalarValue{})
)

type ArrayValue struct {
	Array arrow.Array
}

func NewArrayValue(arr arrow.Array) *ArrayValue {
	return &ArrayValue{Array: arr}
}

func (v *ArrayValue) columnarValue() {}

func (v *ArrayValue) DataType() arrow.DataType {
	return v.Array.DataType()
}

func (v *ArrayValue) Len() int {
	return v.Array.Len()
}

func (v *ArrayValue) String() string {
	return fmt.Sprintf("Array[%d]<%s>", v.Array.Len(), v.Array.DataType())
}

type ScalarValue struct {
	Scalar scalar.Scalar
}

func NewScalarValue(s scalar.Scalar) *ScalarValue {
	return &ScalarValue{Scalar: s}
}

func (v *ScalarValue) columnarValue() {}

func (v *ScalarValue) DataType() arrow.DataType {
	return v.Scalar.DataType()
}

func (v *ScalarValue) IsNull() bool {
	return !v.Scalar.IsValid()
}

func (v *ScalarValue) String() string {
	if !v.Scalar.IsValid() {
		return "null"
	}
	return fmt.Sprintf("Scalar<%s>(%s)", v.Scalar.DataType(), v.Scalar)
}

// Checked downcasts. Type resolution should make these infallible; a failure
// is still a recoverable error rather than a panic.

func Int32ArrayOf(arr arrow.Array) (*array.Int32, error) {
	a, ok := arr.(*array.Int32)
	if !ok {
		return nil, ErrDowncastFailed("int32 array", arr.DataType())
	}
	return a, nil
}

func Float64ArrayOf(arr arrow.Array) (*array.Float64, error) {
	a, ok := arr.(*array.Float64)
	if !ok {
		return nil, ErrDowncastFailed("float64 array", arr.DataType())
	}
	return a, nil
}

func StringArrayOf(arr arrow.Array) (*array.String, error) {
	a, ok := arr.(*array.String)
	if !ok {
		return nil, ErrDowncastFailed("string array", arr.DataType())
	}
	return a, nil
}

func BooleanArrayOf(arr arrow.Array) (*array.Boolean, error) {
	a, ok := arr.(*array.Boolean)
	if !ok {
		return nil, ErrDowncastFailed("boolean array", arr.DataType())
	}
	return a, nil
}

func Int32ScalarOf(s scalar.Scalar) (*scalar.Int32, error) {
	v, ok := s.(*scalar.Int32)
	if !ok {
		return nil, ErrDowncastFailed("int32 scalar", s.DataType())
	}
	return v, nil
}

func Float64ScalarOf(s scalar.Scalar) (*scalar.Float64, error) {
	v, ok := s.(*scalar.Float64)
	if !ok {
		return nil, ErrDowncastFailed("float64 scalar", s.DataType())
	}
	return v, nil
}

func StringScalarOf(s scalar.Scalar) (*scalar.String, error) {
	v, ok := s.(*scalar.String)
	if !ok {
		return nil, ErrDowncastFailed("string scalar", s.DataType())
	}
	return v, nil
}

func BooleanScalarOf(s scalar.Scalar) (*scalar.Boolean, error) {
	v, ok := s.(*scalar.Boolean)
	if !ok {
		return nil, ErrDowncastFailed("boolean scalar", s.DataType())
	}
	return v, nil
}
