package source

import (
	"errors"
	"io"
	"strings"
	"testing"

	"col-eval-go/config"
	"col-eval-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

const peopleCSV = `id,name,salary,active
1,Alice,70000.5,true
2,Bob,NULL,false
3,,54000.0,true
`

func TestCSVSourceSchemaInference(t *testing.T) {
	t.Run("types inferred from the first data row", func(t *testing.T) {
		src, err := NewCSVSource(strings.NewReader(peopleCSV))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()

		wanted := []struct {
			name string
			dt   arrow.DataType
		}{
			{"id", arrow.PrimitiveTypes.Int32},
			{"name", arrow.BinaryTypes.String},
			{"salary", arrow.PrimitiveTypes.Float64},
			{"active", arrow.FixedWidthTypes.Boolean},
		}
		schema := src.Schema()
		if len(schema.Fields()) != len(wanted) {
			t.Fatalf("expected %d fields, got %d", len(wanted), len(schema.Fields()))
		}
		for i, w := range wanted {
			field := schema.Field(i)
			if field.Name != w.name {
				t.Fatalf("field %d: expected name %s, got %s", i, w.name, field.Name)
			}
			if !arrow.TypeEqual(field.Type, w.dt) {
				t.Fatalf("field %s: expected type %s, got %s", w.name, w.dt, field.Type)
			}
		}
	})

	t.Run("null sample falls back to string", func(t *testing.T) {
		src, err := NewCSVSource(strings.NewReader("a,b\nNULL,1\n"))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()
		if !arrow.TypeEqual(src.Schema().Field(0).Type, arrow.BinaryTypes.String) {
			t.Fatalf("expected string fallback, got %s", src.Schema().Field(0).Type)
		}
		if !arrow.TypeEqual(src.Schema().Field(1).Type, arrow.PrimitiveTypes.Int32) {
			t.Fatalf("expected int32, got %s", src.Schema().Field(1).Type)
		}
	})

	t.Run("empty input fails", func(t *testing.T) {
		if _, err := NewCSVSource(strings.NewReader("")); err == nil {
			t.Fatal("expected error for empty input")
		}
	})

	t.Run("header without data fails", func(t *testing.T) {
		if _, err := NewCSVSource(strings.NewReader("a,b\n")); err == nil {
			t.Fatal("expected error for header-only input")
		}
	})
}

func TestCSVSourceNext(t *testing.T) {
	t.Run("single batch reads every row", func(t *testing.T) {
		src, err := NewCSVSource(strings.NewReader(peopleCSV))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()

		batch, err := src.Next(10)
		if err != nil {
			t.Fatalf("failed to fetch batch: %v", err)
		}
		if batch.RowCount != 3 {
			t.Fatalf("expected 3 rows, got %d", batch.RowCount)
		}
		defer operators.ReleaseArrays(batch.Columns)

		ids := batch.Columns[0].(*array.Int32)
		for i, want := range []int32{1, 2, 3} {
			if ids.Value(i) != want {
				t.Fatalf("row %d: expected id %d, got %d", i, want, ids.Value(i))
			}
		}

		if _, err := src.Next(10); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})

	t.Run("NULL and empty cells become nulls", func(t *testing.T) {
		src, err := NewCSVSource(strings.NewReader(peopleCSV))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()

		batch, err := src.Next(10)
		if err != nil {
			t.Fatalf("failed to fetch batch: %v", err)
		}
		defer operators.ReleaseArrays(batch.Columns)

		salary := batch.Columns[2]
		if !salary.IsNull(1) {
			t.Fatal("expected NULL salary cell to be null")
		}
		if salary.IsNull(0) || salary.IsNull(2) {
			t.Fatal("expected parsed salary cells to be valid")
		}

		name := batch.Columns[1]
		if !name.IsNull(2) {
			t.Fatal("expected empty name cell to be null")
		}
	})

	t.Run("respects the batch size", func(t *testing.T) {
		src, err := NewCSVSource(strings.NewReader(peopleCSV))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()

		first, err := src.Next(2)
		if err != nil {
			t.Fatalf("failed to fetch first batch: %v", err)
		}
		if first.RowCount != 2 {
			t.Fatalf("expected 2 rows, got %d", first.RowCount)
		}
		operators.ReleaseArrays(first.Columns)

		second, err := src.Next(2)
		if err != nil {
			t.Fatalf("failed to fetch second batch: %v", err)
		}
		if second.RowCount != 1 {
			t.Fatalf("expected 1 remaining row, got %d", second.RowCount)
		}
		operators.ReleaseArrays(second.Columns)

		if _, err := src.Next(2); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})

	t.Run("zero batch size is rejected", func(t *testing.T) {
		src, err := NewCSVSource(strings.NewReader(peopleCSV))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()
		if _, err := src.Next(0); err == nil || errors.Is(err, io.EOF) {
			t.Fatalf("expected error for zero batch size, got %v", err)
		}
	})

	t.Run("unparseable cells become nulls", func(t *testing.T) {
		src, err := NewCSVSource(strings.NewReader("n\n1\nnot-a-number\n"))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()

		batch, err := src.Next(10)
		if err != nil {
			t.Fatalf("failed to fetch batch: %v", err)
		}
		defer operators.ReleaseArrays(batch.Columns)
		if !batch.Columns[0].IsNull(1) {
			t.Fatal("expected unparseable int cell to be null")
		}
	})
}

func TestCSVSourceStrictParsing(t *testing.T) {
	enableStrict := func(t *testing.T) {
		t.Helper()
		cfg := config.GetConfig()
		saved := cfg.Eval.StrictParsing
		cfg.Eval.StrictParsing = true
		t.Cleanup(func() { cfg.Eval.StrictParsing = saved })
	}

	t.Run("unparseable int cell aborts the scan", func(t *testing.T) {
		enableStrict(t)
		src, err := NewCSVSource(strings.NewReader("n\n1\nnot-a-number\n"))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()
		if _, err := src.Next(10); err == nil {
			t.Fatal("expected strict parsing to abort on a bad int cell")
		}
	})

	t.Run("unparseable bool cell aborts the scan", func(t *testing.T) {
		enableStrict(t)
		src, err := NewCSVSource(strings.NewReader("b\ntrue\nmaybe\n"))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()
		if _, err := src.Next(10); err == nil {
			t.Fatal("expected strict parsing to abort on a bad bool cell")
		}
	})

	t.Run("NULL and empty cells still pass", func(t *testing.T) {
		enableStrict(t)
		src, err := NewCSVSource(strings.NewReader("n\n1\nNULL\n"))
		if err != nil {
			t.Fatalf("failed to scan csv: %v", err)
		}
		defer src.Close()
		batch, err := src.Next(10)
		if err != nil {
			t.Fatalf("expected explicit NULL cells to survive strict parsing: %v", err)
		}
		defer operators.ReleaseArrays(batch.Columns)
		if !batch.Columns[0].IsNull(1) {
			t.Fatal("expected NULL cell to be null")
		}
	})
}
