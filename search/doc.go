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

// Package search ranks provisions for free-text and reference queries.
//
// The Searcher combines four signals over one published graph state:
//   - Baseline importance from the ingestion-time PageRank
//   - Personalized importance around the query's seeds
//   - Semantic similarity from the embedding index
//   - Lexical strength from the keyword index
//
// Each signal is scaled to [0,1] and fused into a unified relatedness score
// (URS) on a 0-100 scale. Responses are cached per graph version.
package search
