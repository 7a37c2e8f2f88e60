package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/query"
)

func testResult(id core.ID, name string, accuracy, importance float64, rankSearch int) *Result {
	return &Result{
		Source:      core.SourcePlace,
		PlaceID:     id,
		DisplayName: name,
		Accuracy:    accuracy,
		Importance:  importance,
		RankSearch:  rankSearch,
		RankAddress: rankSearch,
	}
}

func TestResult_Ranking(t *testing.T) {
	r := testResult(1, "x", 0.3, 0.5, 16)
	assert.InDelta(t, -0.2, r.Ranking(), 1e-9)
	assert.InDelta(t, 0.40001-30.0/75, testResult(1, "x", 0, 0, 30).CalculatedImportance(), 1e-9)
}

func TestResultSet_Dedup(t *testing.T) {
	s := newResultSet()
	s.add(testResult(1, "a", 0.5, 0, 30))
	s.add(testResult(1, "a", 0.2, 0, 30))
	s.add(testResult(1, "a", 0.9, 0, 30))

	hnr := testResult(1, "a", 0.1, 0, 30)
	hnr.Housenumber = "12"
	s.add(hnr)

	pc := testResult(1, "a", 0.1, 0, 30)
	pc.Source = core.SourcePostcode
	s.add(pc)

	require.Equal(t, 3, s.Len())
	assert.InDelta(t, 0.2, s.results[0].Accuracy, 1e-9, "minimum accuracy is kept")
}

func TestPrefilterResults(t *testing.T) {
	results := []*Result{
		testResult(1, "a", 0.0, 0.5, 16),
		testResult(2, "b", 0.2, 0.5, 16),
		testResult(3, "c", 0.6, 0.5, 16),
	}
	got := prefilterResults(results, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, core.ID(1), got[0].PlaceID)
	assert.Equal(t, core.ID(2), got[1].PlaceID)

	assert.Empty(t, prefilterResults(nil, 0.5))
}

func TestSortAndCut(t *testing.T) {
	t.Run("sorts and limits", func(t *testing.T) {
		results := []*Result{
			testResult(1, "a", 0.3, 0.5, 16),
			testResult(2, "b", 0.1, 0.5, 16),
			testResult(3, "c", 0.2, 0.5, 16),
		}
		got := sortAndCut(results, 0.5, 2)
		require.Len(t, got, 2)
		assert.Equal(t, core.ID(2), got[0].PlaceID)
		assert.Equal(t, core.ID(3), got[1].PlaceID)
	})

	t.Run("higher rank needs better ranking", func(t *testing.T) {
		results := []*Result{
			testResult(1, "city", 0.1, 0.5, 16),
			// close in ranking, but 14 ranks further down
			testResult(2, "shop", 0.2, 0.5, 30),
			testResult(3, "district", 0.2, 0.5, 18),
		}
		got := sortAndCut(results, 0.5, 10)
		ids := make([]core.ID, len(got))
		for i, r := range got {
			ids[i] = r.PlaceID
		}
		assert.Equal(t, []core.ID{1, 3}, ids)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, sortAndCut(nil, 0.5, 10))
	})
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"saint", "denis", "paris"}, splitWords("saint-denis, paris"))
	assert.Equal(t, []string{"a", "b"}, splitWords(" a:b "))
	assert.Empty(t, splitWords(" ,-: "))
}

func TestRerankByQuery(t *testing.T) {
	phrases := []query.Phrase{{Type: query.PhraseAny, Text: "berlin"}}

	exact := testResult(1, "Berlin", 0, 0.5, 16)
	exact.CountryCode = "de"
	near := testResult(2, "Berliner Dom", 0, 0.5, 30)
	near.CountryCode = "de"
	far := testResult(3, "Hamburg", 0, 0.5, 16)
	ordered := testResult(4, "Paris", 0, -1, 16)

	rerankByQuery(phrases, []*Result{exact, near, far, ordered}, strings.ToLower)

	assert.InDelta(t, 0.0, exact.Accuracy, 1e-9)
	assert.InDelta(t, 0.1, near.Accuracy, 1e-6)
	assert.InDelta(t, 0.4, far.Accuracy, 1e-9)
	assert.InDelta(t, 0.0, ordered.Accuracy, 1e-9, "negative importance is not reranked")

	t.Run("countries count double", func(t *testing.T) {
		country := testResult(5, "Hamburg", 0, 0.5, 4)
		country.RankAddress = 4
		rerankByQuery(phrases, []*Result{country}, strings.ToLower)
		assert.InDelta(t, 0.8, country.Accuracy, 1e-9)
	})

	t.Run("no query words", func(t *testing.T) {
		r := testResult(6, "Berlin", 0, 0.5, 16)
		rerankByQuery([]query.Phrase{{Text: " , "}}, []*Result{r}, strings.ToLower)
		assert.InDelta(t, 0.0, r.Accuracy, 1e-9)
	})
}
