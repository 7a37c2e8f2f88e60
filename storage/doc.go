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


// Package storage defines the storage boundary of placefinder.
//
// The query pipeline never talks to a database directly. It reads words,
// places and postcodes through the repository interfaces of this package,
// which two backends implement:
//
//	store, err := badger.NewStore(path)  // embedded key-value store, the default
//	store, err := sqlite.NewStore(file)  // single SQLite file
//
// Both constructors return storage.Store and both backends pass the
// behavioural suite in package storetest.
//
// # Repositories
//
//   - WordRepository: the word index. Rows are keyed by lookup string,
//     type and canonical word; ids are dense integers and never reused.
//     FindTokens does not return postcode rows.
//   - PlaceRepository: places with their name and address token vectors.
//     LookupPlaces evaluates FieldLookups: LookupAll and LookupAny use the
//     postings of a column, Restrict filters the candidates afterwards.
//   - PostcodeRepository: postcode area centroids.
//   - PropertyRepository: database-wide properties such as the
//     normalization fingerprint.
//   - SearchStore: the read side the searcher needs.
//   - Store: everything combined, plus transactions.
//
// # Transactions
//
// WithTransaction stores the transaction in the context it passes to fn.
// Repository calls made with that context join the transaction; calls
// with any other context run in their own.
//
// # Encoding
//
// The badger backend stores mus-encoded values; see serialization.go.
// All implementations are safe for concurrent use.
package storage
