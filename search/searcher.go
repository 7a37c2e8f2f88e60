package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/placefinder/assignment"
	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/query"
	"github.com/poiesic/placefinder/storage"
)

// QueryAnalyzer builds the token graph of a query.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, phrases []query.Phrase) (*query.QueryStruct, error)
	// NormalizeText applies the query normalization to arbitrary text.
	NormalizeText(text string) string
}

// Searcher runs forward geocoding queries.
type Searcher struct {
	analyzer   QueryAnalyzer
	store      storage.SearchStore
	enumerator *assignment.Enumerator
	settings   config.SearchSettings
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "searcher")
		return nil
	}
}

// WithEnumerator replaces the default assignment enumerator.
func WithEnumerator(e *assignment.Enumerator) Option {
	return func(s *Searcher) error {
		if e != nil {
			s.enumerator = e
		}
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(analyzer QueryAnalyzer, store storage.SearchStore, cfg *config.Config, opts ...Option) (*Searcher, error) {
	if analyzer == nil {
		return nil, ErrAnalyzerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	s := &Searcher{
		analyzer: analyzer,
		store:    store,
		settings: cfg.Settings.Search,
		timeout:  cfg.SearchTimeout(),
		logger:   slog.Default().With("component", "searcher"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.enumerator == nil {
		e, err := assignment.NewEnumerator(assignment.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.enumerator = e
	}

	return s, nil
}

// Search finds places matching the phrases.
func (s *Searcher) Search(ctx context.Context, phrases []query.Phrase, details *core.SearchDetails) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, phrases, details, nil)
}

// SearchWithMonitor finds places matching the phrases with monitoring.
// The monitor receives callbacks at each stage of the search process.
// Storage failures of single searches and an expired deadline do not
// fail the query: whatever was found so far is returned.
func (s *Searcher) SearchWithMonitor(ctx context.Context, phrases []query.Phrase, details *core.SearchDetails, monitor SearchMonitor) ([]*Result, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if details == nil {
		details = core.DefaultSearchDetails()
	}
	if err := validateRequest(phrases, details); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	monitor.Start(phrases)

	q, searches, err := s.buildSearches(ctx, phrases, details, monitor)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Warn("deadline reached during query analysis", "err", err)
			monitor.Finish(nil)
			return []*Result{}, nil
		}
		return nil, err
	}

	results := s.executeSearches(ctx, q, searches, details, monitor)
	monitor.Finish(results)
	return results, nil
}

func validateRequest(phrases []query.Phrase, details *core.SearchDetails) error {
	texts := make([]string, len(phrases))
	for i, p := range phrases {
		texts[i] = p.Text
	}
	if err := core.ValidateQueryText(texts...); err != nil {
		return err
	}
	return core.ValidateSearchDetails(details)
}

// BuildSearches analyzes the phrases and returns the graph together with
// all candidate searches, ordered by penalty and priority.
func (s *Searcher) BuildSearches(ctx context.Context, phrases []query.Phrase, details *core.SearchDetails) (*query.QueryStruct, []AbstractSearch, error) {
	if details == nil {
		details = core.DefaultSearchDetails()
	}
	if err := validateRequest(phrases, details); err != nil {
		return nil, nil, err
	}
	return s.buildSearches(ctx, phrases, details, &noopMonitor{})
}

func (s *Searcher) buildSearches(ctx context.Context, phrases []query.Phrase, details *core.SearchDetails, monitor SearchMonitor) (*query.QueryStruct, []AbstractSearch, error) {
	q, err := s.analyzer.Analyze(ctx, phrases)
	if err != nil {
		s.logger.Error("error analyzing query", "err", err)
		return nil, nil, err
	}
	monitor.AfterAnalysis(q)

	var searches []AbstractSearch
	if q.NumTokenSlots() > 0 {
		builder := NewBuilder(q, details)
		for a := range s.enumerator.Assignments(q) {
			for search := range builder.Build(a) {
				searches = append(searches, search)
			}
		}
	}
	sortSearches(searches)
	monitor.AfterSearchBuild(searches)

	s.logger.Debug("searches built", "count", len(searches))
	return q, searches, nil
}

// ExecuteSearches runs the searches, which must be ordered as returned
// by BuildSearches, and returns the ranked results.
func (s *Searcher) ExecuteSearches(ctx context.Context, q *query.QueryStruct, searches []AbstractSearch, details *core.SearchDetails) []*Result {
	if details == nil {
		details = core.DefaultSearchDetails()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.executeSearches(ctx, q, searches, details, &noopMonitor{})
}

func (s *Searcher) executeSearches(ctx context.Context, q *query.QueryStruct, searches []AbstractSearch, details *core.SearchDetails, monitor SearchMonitor) []*Result {
	if len(searches) == 0 {
		return []*Result{}
	}

	found := newResultSet()
	bestAccuracy := searches[0].Penalty()
	prevPenalty := 0.0
	executed := 0
	for i, search := range searches {
		if i >= s.settings.MaxSearches {
			break
		}
		if ctx.Err() != nil {
			s.logger.Debug("search deadline reached", "executed", executed)
			break
		}
		penalty := search.Penalty()
		if i > s.settings.MinSearchesBeforeCut && penalty > prevPenalty && penalty > bestAccuracy+s.settings.AccuracyMargin {
			break
		}

		monitor.BeforeSearch(i, search)
		results, err := search.Lookup(ctx, s.store, details)
		monitor.AfterSearch(i, search, results, err)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("search interrupted by deadline", "executed", executed)
				break
			}
			s.logger.Warn("search failed", "search", search.String(), "err", err)
			continue
		}
		executed++

		for _, r := range results {
			if found.Len() == 0 {
				bestAccuracy = r.Accuracy
			}
			bestAccuracy = min(bestAccuracy, r.Accuracy)
			found.add(r)
		}
		prevPenalty = penalty
	}

	limit := details.MaxResults
	if limit <= 0 {
		limit = s.settings.MaxResults
	}
	results := prefilterResults(found.results, s.settings.PrefilterMargin)
	rerankByQuery(q.Source, results, s.analyzer.NormalizeText)
	results = sortAndCut(results, s.settings.PrefilterMargin, limit)
	if results == nil {
		results = []*Result{}
	}

	s.logger.Debug("searches executed", "executed", executed, "results", len(results))
	return results
}
