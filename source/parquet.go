package source

import (
	"context"
	"io"

	"col-eval-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

var (
	_ = (operators.Operator)(&ParquetSource{})
)

// ParquetSource scans a parquet file into record batches through the pqarrow
// record reader. Batch sizing is fixed at construction; Next ignores its row
// hint and emits one reader batch at a time.
type ParquetSource struct {
	schema     *arrow.Schema
	fileReader *file.Reader
	reader     pqarrow.RecordReader
	done       bool
}

func NewParquetSource(r parquet.ReaderAtSeeker, batchSize int64) (*ParquetSource, error) {
	fileReader, err := file.NewParquetReader(r)
	if err != nil {
		return nil, err
	}

	arrowReader, err := pqarrow.NewFileReader(
		fileReader,
		pqarrow.ArrowReadProperties{Parallel: false, BatchSize: batchSize},
		memory.NewGoAllocator(),
	)
	if err != nil {
		fileReader.Close()
		return nil, err
	}
	rdr, err := arrowReader.GetRecordReader(context.TODO(), nil, nil)
	if err != nil {
		fileReader.Close()
		return nil, err
	}

	return &ParquetSource{
		schema:     rdr.Schema(),
		fileReader: fileReader,
		reader:     rdr,
	}, nil
}

func (ps *ParquetSource) Next(_ uint16) (*operators.RecordBatch, error) {
	if ps.done || ps.reader == nil || !ps.reader.Next() {
		if ps.reader != nil && ps.reader.Err() != nil {
			return nil, ps.reader.Err()
		}
		ps.done = true
		return nil, io.EOF
	}
	record := ps.reader.Record()
	columns := make([]arrow.Array, int(record.NumCols()))
	for i := range columns {
		col := record.Column(i)
		col.Retain()
		columns[i] = col
	}
	rows := uint64(record.NumRows())
	return &operators.RecordBatch{
		Schema:   ps.schema,
		Columns:  columns,
		RowCount: rows,
	}, nil
}

func (ps *ParquetSource) Schema() *arrow.Schema {
	return ps.schema
}

func (ps *ParquetSource) Close() error {
	if ps.reader != nil {
		ps.reader.Release()
		ps.reader = nil
	}
	if ps.fileReader != nil {
		err := ps.fileReader.Close()
		ps.fileReader = nil
		return err
	}
	return nil
}
