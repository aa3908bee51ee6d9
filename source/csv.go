package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"col-eval-go/config"
	"col-eval-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&CSVSource{})
)

var (
	ErrCellParse = func(cell, col string, dt arrow.DataType) error {
		return fmt.Errorf("cannot parse cell %q in column %s as %s", cell, col, dt)
	}
)

// CSVSource scans a CSV stream into record batches. The schema is inferred
// from the header plus the first data row and is restricted to the four
// physical types the evaluator supports: int32, float64, utf8 and boolean.
// With eval.strict_parsing set, a cell that fails to parse aborts the scan
// instead of storing null.
type CSVSource struct {
	r            *csv.Reader
	schema       *arrow.Schema
	colPosition  map[string]int
	firstDataRow []string
	strict       bool
	done         bool // if this is set in Next, we have reached EOF
}

func NewCSVSource(source io.Reader) (*CSVSource, error) {
	r := csv.NewReader(source)
	src := &CSVSource{
		r:           r,
		colPosition: make(map[string]int),
		strict:      config.GetConfig().Eval.StrictParsing,
	}
	var err error
	src.schema, err = src.parseHeader()
	return src, err
}

func (s *CSVSource) Next(n uint16) (*operators.RecordBatch, error) {
	if n == 0 {
		return nil, errors.New("must pass in wanted batch size > 0")
	}
	if s.done {
		return nil, io.EOF
	}

	builders := s.initBuilders()
	rowsRead := uint16(0)

	// the row consumed during header inference comes first
	if s.firstDataRow != nil && rowsRead < n {
		if err := s.processRow(s.firstDataRow, builders); err != nil {
			return nil, err
		}
		s.firstDataRow = nil
		rowsRead++
	}

	for rowsRead < n {
		row, err := s.r.Read()
		if err == io.EOF {
			if rowsRead == 0 {
				s.done = true
				return nil, io.EOF
			}
			break
		}
		if err != nil {
			return nil, err
		}
		if err := s.processRow(row, builders); err != nil {
			return nil, err
		}
		rowsRead++
	}

	columns := s.finalizeBuilders(builders)

	return &operators.RecordBatch{
		Schema:   s.schema,
		Columns:  columns,
		RowCount: uint64(rowsRead),
	}, nil
}

func (s *CSVSource) Close() error {
	s.r = nil
	s.done = true
	return nil
}

func (s *CSVSource) Schema() *arrow.Schema {
	return s.schema
}

func (s *CSVSource) initBuilders() []array.Builder {
	fields := s.schema.Fields()
	builders := make([]array.Builder, len(fields))
	for i, f := range fields {
		builders[i] = array.NewBuilder(memory.DefaultAllocator, f.Type)
	}
	return builders
}

func (s *CSVSource) processRow(content []string, builders []array.Builder) error {
	fields := s.schema.Fields()
	for i, f := range fields {
		colIdx := s.colPosition[f.Name]
		cell := content[colIdx]

		switch b := builders[i].(type) {
		case *array.Int32Builder:
			if cell == "" || cell == "NULL" {
				b.AppendNull()
			} else {
				v, err := strconv.ParseInt(cell, 10, 32)
				if err != nil {
					if s.strict {
						return ErrCellParse(cell, f.Name, f.Type)
					}
					b.AppendNull()
				} else {
					b.Append(int32(v))
				}
			}
		case *array.Float64Builder:
			if cell == "" || cell == "NULL" {
				b.AppendNull()
			} else {
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					if s.strict {
						return ErrCellParse(cell, f.Name, f.Type)
					}
					b.AppendNull()
				} else {
					b.Append(v)
				}
			}
		case *array.StringBuilder:
			if cell == "" || cell == "NULL" {
				b.AppendNull()
			} else {
				b.Append(cell)
			}
		case *array.BooleanBuilder:
			if cell == "" || cell == "NULL" {
				b.AppendNull()
			} else {
				if s.strict && cell != "true" && cell != "false" {
					return ErrCellParse(cell, f.Name, f.Type)
				}
				b.Append(cell == "true")
			}
		default:
			return fmt.Errorf("unsupported Arrow type: %s", f.Type)
		}
	}
	return nil
}

func (s *CSVSource) finalizeBuilders(builders []array.Builder) []arrow.Array {
	columns := make([]arrow.Array, len(builders))
	for i, b := range builders {
		columns[i] = b.NewArray()
		b.Release()
	}
	return columns
}

// first call to csv.Reader
func (s *CSVSource) parseHeader() (*arrow.Schema, error) {
	header, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	firstDataRow, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	s.firstDataRow = firstDataRow
	newFields := make([]arrow.Field, 0, len(header))
	for i, colName := range header {
		sampleValue := firstDataRow[i]
		newFields = append(newFields, arrow.Field{
			Name:     colName,
			Type:     inferDataType(sampleValue),
			Nullable: true,
		})
		s.colPosition[colName] = i
	}
	return arrow.NewSchema(newFields, nil), nil
}

func inferDataType(sample string) arrow.DataType {
	sample = strings.TrimSpace(sample)

	// Nulls or empty fields → treat as nullable string in inference
	if sample == "" || strings.EqualFold(sample, "NULL") {
		return arrow.BinaryTypes.String
	}

	if sample == "true" || sample == "false" {
		return arrow.FixedWidthTypes.Boolean
	}

	if _, err := strconv.ParseInt(sample, 10, 32); err == nil {
		return arrow.PrimitiveTypes.Int32
	}

	if _, err := strconv.ParseFloat(sample, 64); err == nil {
		return arrow.PrimitiveTypes.Float64
	}

	return arrow.BinaryTypes.String
}
