// Command csvsearch indexes a delimited file and answers field queries
// against the persisted index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/engine"
	"github.com/goahead-lk-04/CSVSearchEngine/internal/indexer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "index":
		err = runIndex(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "fuzzy":
		err = runFuzzy(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  csvsearch index  -file data.csv -storage ./idx [-batch 500] [-v]")
	fmt.Fprintln(os.Stderr, "  csvsearch search -file data.csv -storage ./idx -query 'age>25 and name=dave'")
	fmt.Fprintln(os.Stderr, "  csvsearch fuzzy  -file data.csv -storage ./idx -field name -value dvae [-distance 2]")
}

func newEngine(file, storage string, verbose bool) (*engine.Engine, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	e := engine.New(
		engine.WithLogger(logger),
		engine.WithStorageDir(storage),
	)
	if err := e.Initialize(file); err != nil {
		return nil, err
	}
	if err := e.ParseHeaders(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	file := fs.String("file", "", "source CSV file")
	storage := fs.String("storage", ".", "snapshot storage directory")
	batch := fs.Int("batch", 500, "rows per analysis batch")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	e, err := newEngine(*file, *storage, *verbose)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.ProcessRows(context.Background(), *batch); err != nil {
		return err
	}
	st := e.Stats()
	fmt.Printf("indexed %d rows (%d skipped) in %v\n", st.RowsIndexed, st.RowsSkipped, st.Elapsed)
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	file := fs.String("file", "", "source CSV file")
	storage := fs.String("storage", ".", "snapshot storage directory")
	queryStr := fs.String("query", "", "query, e.g. 'age>25 and name=dave'")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	if *file == "" || *queryStr == "" {
		return fmt.Errorf("-file and -query are required")
	}

	e, err := newEngine(*file, *storage, *verbose)
	if err != nil {
		return err
	}
	defer e.Close()

	rows, err := e.Search(context.Background(), *queryStr)
	if err != nil {
		return err
	}
	header := e.Header()
	fmt.Println(strings.Join(header, ","))
	for _, row := range rows {
		fmt.Println(strings.Join(row.Strings(header), ","))
	}
	fmt.Fprintf(os.Stderr, "%d rows\n", len(rows))
	return nil
}

func runFuzzy(args []string) error {
	fs := flag.NewFlagSet("fuzzy", flag.ExitOnError)
	file := fs.String("file", "", "source CSV file")
	storage := fs.String("storage", ".", "snapshot storage directory")
	field := fs.String("field", "", "field to match against")
	value := fs.String("value", "", "approximate value")
	distance := fs.Int("distance", indexer.DefaultFuzzyThreshold, "maximum edit distance")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	if *file == "" || *field == "" || *value == "" {
		return fmt.Errorf("-file, -field and -value are required")
	}

	e, err := newEngine(*file, *storage, *verbose)
	if err != nil {
		return err
	}
	defer e.Close()

	ids, err := e.FuzzyMatch(*field, *value, *distance)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	fmt.Fprintf(os.Stderr, "%d rows\n", len(ids))
	return nil
}
