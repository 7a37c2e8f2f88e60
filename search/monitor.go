package search

import (
	"github.com/poiesic/placefinder/query"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(phrases []query.Phrase)
	AfterAnalysis(q *query.QueryStruct)
	AfterSearchBuild(searches []AbstractSearch)
	BeforeSearch(index int, search AbstractSearch)
	AfterSearch(index int, search AbstractSearch, results []*Result, err error)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ []query.Phrase)                                    {}
func (n *noopMonitor) AfterAnalysis(_ *query.QueryStruct)                        {}
func (n *noopMonitor) AfterSearchBuild(_ []AbstractSearch)                       {}
func (n *noopMonitor) BeforeSearch(_ int, _ AbstractSearch)                      {}
func (n *noopMonitor) AfterSearch(_ int, _ AbstractSearch, _ []*Result, _ error) {}
func (n *noopMonitor) Finish(_ []*Result)                                        {}
