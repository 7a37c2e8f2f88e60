// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package search turns analyzed queries into searches and runs them.
//
// The Searcher implements the search pipeline:
//   - the query is analyzed into a token graph
//   - every token assignment of the graph is turned into searches by the Builder
//   - searches run cheapest first against the store until a deadline,
//     a search cap or a penalty cutoff is reached
//   - results are deduplicated, reranked against the query text and cut
//
// Results are ranked by accuracy (the accumulated penalty of the match)
// corrected by the importance of the place.
package search
