package source

import (
	"errors"
	"io"
	"testing"

	"col-eval-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

func TestInMemorySource(t *testing.T) {
	t.Run("schema derived from slice types", func(t *testing.T) {
		src, err := NewInMemorySource(
			[]string{"i", "f", "s", "b"},
			[]any{
				[]int32{1, 2},
				[]float64{1.0, 2.0},
				[]string{"a", "b"},
				[]bool{true, false},
			},
		)
		if err != nil {
			t.Fatalf("failed to build source: %v", err)
		}
		defer src.Close()

		wanted := []arrow.DataType{
			arrow.PrimitiveTypes.Int32,
			arrow.PrimitiveTypes.Float64,
			arrow.BinaryTypes.String,
			arrow.FixedWidthTypes.Boolean,
		}
		for i, dt := range wanted {
			if !arrow.TypeEqual(src.Schema().Field(i).Type, dt) {
				t.Fatalf("field %d: expected %s, got %s", i, dt, src.Schema().Field(i).Type)
			}
		}
	})

	t.Run("slices rows into batches", func(t *testing.T) {
		src, err := NewInMemorySource([]string{"v"}, []any{[]int32{1, 2, 3, 4, 5}})
		if err != nil {
			t.Fatalf("failed to build source: %v", err)
		}
		defer src.Close()

		sizes := []uint64{2, 2, 1}
		total := uint64(0)
		for _, want := range sizes {
			batch, err := src.Next(2)
			if err != nil {
				t.Fatalf("failed to fetch batch: %v", err)
			}
			if batch.RowCount != want {
				t.Fatalf("expected %d rows, got %d", want, batch.RowCount)
			}
			total += batch.RowCount
			operators.ReleaseArrays(batch.Columns)
		}
		if total != 5 {
			t.Fatalf("expected 5 rows in total, got %d", total)
		}
		if _, err := src.Next(2); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})

	t.Run("prebuilt arrow arrays are accepted", func(t *testing.T) {
		rbb := operators.NewRecordBatchBuilder()
		arr := rbb.GenInt32ArrayWithNulls([]int32{1, 0}, []bool{true, false})
		defer arr.Release()

		src, err := NewInMemorySource([]string{"v"}, []any{arr})
		if err != nil {
			t.Fatalf("failed to build source: %v", err)
		}
		defer src.Close()

		batch, err := src.Next(10)
		if err != nil {
			t.Fatalf("failed to fetch batch: %v", err)
		}
		defer operators.ReleaseArrays(batch.Columns)
		if !batch.Columns[0].IsNull(1) {
			t.Fatal("expected null to survive the round trip")
		}
	})

	t.Run("length mismatch is rejected", func(t *testing.T) {
		_, err := NewInMemorySource(
			[]string{"a", "b"},
			[]any{[]int32{1, 2}, []int32{1}},
		)
		if err == nil {
			t.Fatal("expected error for columns of different lengths")
		}
	})

	t.Run("name and column count mismatch is rejected", func(t *testing.T) {
		if _, err := NewInMemorySource([]string{"a"}, []any{[]int32{1}, []int32{2}}); err == nil {
			t.Fatal("expected error for mismatched names and columns")
		}
	})

	t.Run("unsupported slice type is rejected", func(t *testing.T) {
		if _, err := NewInMemorySource([]string{"a"}, []any{[]int64{1}}); err == nil {
			t.Fatal("expected error for int64 slice")
		}
	})
}
