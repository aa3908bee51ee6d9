package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"col-eval-go/config"
	"col-eval-go/operators"
	"col-eval-go/operators/aggr"
	"col-eval-go/operators/filter"
	"col-eval-go/physical"
	"col-eval-go/source"

	"github.com/joho/godotenv"
)

// usage: col-eval-go [config.yaml] <data.csv> [#col=value]
// prints min/max/sum for every numeric column of the file, optionally after
// filtering rows where int32 column #col equals value
func main() {
	_ = godotenv.Load()
	config.LoadSecretsFromEnv()

	args := os.Args[1:]
	var csvPath, filterArg string
	switch len(args) {
	case 1:
		csvPath = args[0]
	case 2:
		if strings.HasPrefix(args[1], "#") {
			csvPath, filterArg = args[0], args[1]
		} else {
			if err := config.Decode(args[0]); err != nil {
				log.Fatalf("failed to load config %s: %v", args[0], err)
			}
			csvPath = args[1]
		}
	case 3:
		if err := config.Decode(args[0]); err != nil {
			log.Fatalf("failed to load config %s: %v", args[0], err)
		}
		csvPath, filterArg = args[1], args[2]
	default:
		log.Fatal("usage: col-eval-go [config.yaml] <data.csv> [#col=value]")
	}

	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatalf("failed to open %s: %v", csvPath, err)
	}
	defer f.Close()

	src, err := source.NewCSVSource(f)
	if err != nil {
		log.Fatalf("failed to scan %s: %v", csvPath, err)
	}

	var input operators.Operator = src
	if filterArg != "" {
		pred, err := parsePredicate(filterArg)
		if err != nil {
			log.Fatalf("bad filter %q: %v", filterArg, err)
		}
		input, err = filter.NewFilterExec(src, pred)
		if err != nil {
			log.Fatalf("failed to build filter %s: %v", pred, err)
		}
	}

	var aggregates []*physical.AggregateExpr
	for i, field := range src.Schema().Fields() {
		t, err := physical.ResolvePhysicalType(field.Type)
		if err != nil || !t.Numeric() {
			continue
		}
		col := physical.NewColumnExpr(i)
		aggregates = append(aggregates,
			physical.NewAggregateExpr(physical.Min, col),
			physical.NewAggregateExpr(physical.Max, col),
			physical.NewAggregateExpr(physical.Sum, col),
		)
	}
	if len(aggregates) == 0 {
		log.Fatalf("%s has no numeric columns to aggregate", csvPath)
	}

	exec, err := aggr.NewGlobalAggrExec(input, aggregates)
	if err != nil {
		log.Fatalf("failed to build aggregation: %v", err)
	}
	defer exec.Close()

	batchSize := config.GetConfig().Batch.Size
	if batchSize <= 0 || batchSize > int(^uint16(0)) {
		batchSize = 1024
	}

	for {
		batch, err := exec.Next(uint16(batchSize))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("aggregation failed: %v", err)
		}
		for i, col := range batch.Columns {
			fmt.Printf("%s = %s\n", batch.Schema.Field(i).Name, col.ValueStr(0))
		}
	}
}

// parsePredicate turns "#2=17" into the expression #2 == 17.
func parsePredicate(arg string) (physical.Expression, error) {
	idxStr, valStr, found := strings.Cut(strings.TrimPrefix(arg, "#"), "=")
	if !found {
		return nil, errors.New("expected form #col=value")
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return nil, fmt.Errorf("bad column index %q: %w", idxStr, err)
	}
	val, err := strconv.ParseInt(valStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad int32 value %q: %w", valStr, err)
	}
	return physical.NewComparisonExpr(physical.Eq, physical.NewColumnExpr(idx), physical.NewLiteralInt32(int32(val))), nil
}
