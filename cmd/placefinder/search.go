package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/poiesic/placefinder"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/query"
	"github.com/poiesic/placefinder/search"
)

// explainMonitor prints the stages of a search.
type explainMonitor struct {
	w io.Writer
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func (m *explainMonitor) Start(phrases []query.Phrase) {
	for _, p := range phrases {
		fmt.Fprintf(m.w, "phrase %s: %q\n", p.Type, p.Text)
	}
}

func (m *explainMonitor) AfterAnalysis(q *query.QueryStruct) {
	fmt.Fprintf(m.w, "query graph:\n%s\n", q)
}

func (m *explainMonitor) AfterSearchBuild(searches []search.AbstractSearch) {
	fmt.Fprintf(m.w, "%d searches\n", len(searches))
}

func (m *explainMonitor) BeforeSearch(index int, s search.AbstractSearch) {
	fmt.Fprintf(m.w, "[%d] %.3f %s\n", index, s.Penalty(), s)
}

func (m *explainMonitor) AfterSearch(index int, _ search.AbstractSearch, results []*search.Result, err error) {
	if err != nil {
		fmt.Fprintf(m.w, "[%d] failed: %v\n", index, err)
		return
	}
	fmt.Fprintf(m.w, "[%d] %d results\n", index, len(results))
}

func (m *explainMonitor) Finish(results []*search.Result) {
	fmt.Fprintf(m.w, "%d results after ranking\n", len(results))
}

func printResults(w io.Writer, results []*search.Result) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, r := range results {
		fmt.Fprintf(w, "%d: '%s' (%s %s)[%0.3f] %.5f,%.5f\n",
			i, r.DisplayName, r.Source, r.Category, r.Ranking(), r.Centroid.Lat, r.Centroid.Lon)
	}
}

func searchCommand(c *cli.Context) error {
	text, err := queryText(c)
	if err != nil {
		return err
	}
	details := core.DefaultSearchDetails()
	details.MaxResults = c.Int("limit")
	details.Countries = c.StringSlice("countries")
	if err := core.ValidateSearchDetails(details); err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	var monitor search.SearchMonitor
	if c.Bool("explain") {
		monitor = &explainMonitor{w: c.App.ErrWriter}
	}
	results, err := db.Searcher().SearchWithMonitor(ctx, placefinder.Phrases(text), details, monitor)
	if err != nil {
		return err
	}
	printResults(c.App.Writer, results)
	return nil
}

func analyzeCommand(c *cli.Context) error {
	text, err := queryText(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	q, searches, err := db.Searcher().BuildSearches(c.Context, placefinder.Phrases(text), core.DefaultSearchDetails())
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "%s\n", q)
	fmt.Fprintf(w, "%d searches\n", len(searches))
	for i, s := range searches {
		fmt.Fprintf(w, "[%d] %.3f %s\n", i, s.Penalty(), s)
	}
	return nil
}

// batchResult is the outcome of one query of a batch.
type batchResult struct {
	query   string
	results []*search.Result
	err     error
}

func readQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			queries = append(queries, line)
		}
	}
	return queries, scanner.Err()
}

// runBatch searches all queries with at most workers queries in flight
// and at most qps queries started per second. The output keeps the input
// order. A failing query does not stop the others.
func runBatch(ctx context.Context, db *placefinder.Database, queries []string, workers int, qps float64) ([]batchResult, error) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}
	out := make([]batchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, q := range queries {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			results, err := db.Search(gctx, q, nil)
			out[i] = batchResult{query: q, results: results, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

func batchCommand(c *cli.Context) error {
	input, err := openInput(c.String("file"))
	if err != nil {
		return err
	}
	defer input.Close()
	queries, err := readQueries(input)
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	out, err := runBatch(c.Context, db, queries, c.Int("workers"), c.Float64("rate"))
	if err != nil {
		return err
	}
	w := c.App.Writer
	for _, r := range out {
		switch {
		case r.err != nil:
			fmt.Fprintf(w, "%s\terror: %v\n", r.query, r.err)
		case len(r.results) == 0:
			fmt.Fprintf(w, "%s\t-\n", r.query)
		default:
			fmt.Fprintf(w, "%s\t%s\t%0.3f\n", r.query, r.results[0].DisplayName, r.results[0].Ranking())
		}
	}
	return nil
}
