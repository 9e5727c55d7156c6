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

// Package storage provides the persistence abstraction layer for lexgraph.
//
// This package defines repository interfaces that decouple storage implementation
// from the engine. A stored snapshot holds everything needed to republish a
// graph version without re-embedding: provisions, node vectors and baseline
// importance, plus a manifest describing them.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return interfaces:
//
//	repo, err := badger.NewSnapshotRepository(backend)  // returns storage.SnapshotRepository
//
// Internal helpers may return concrete types since they're only used within
// the implementation package.
//
// # Encoding
//
// Records are encoded with mus-go serializers (see serialization.go). Each
// value starts with a format byte so older layouts can be detected.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	repo, err := badger.NewSnapshotRepository(backend)
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemorySnapshotRepository()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
