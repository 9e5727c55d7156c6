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


package core

import "errors"

// Engine error taxonomy.
//
// Only ErrGraphNotReady is ever returned from a well-formed query. The rest are
// used to tag degraded results and are surfaced as flags, not failures.
var (
	// ErrGraphNotReady indicates no ingestion pass has completed yet.
	ErrGraphNotReady = errors.New("graph not ready")

	// ErrAmbiguousToken indicates a reference token parsed in conflicting ways.
	ErrAmbiguousToken = errors.New("ambiguous reference token")

	// ErrANNUnavailable indicates the embedder or vector index could not be used.
	ErrANNUnavailable = errors.New("ann index unavailable")

	// ErrImportanceNonConvergence indicates an importance iteration hit its cap.
	ErrImportanceNonConvergence = errors.New("importance iteration did not converge")

	// ErrCacheInconsistency indicates a cache entry from another graph version or of the wrong shape.
	ErrCacheInconsistency = errors.New("cache inconsistency")
)

// Domain validation errors
var (
	// ErrInvalidProvision indicates a Provision failed validation.
	ErrInvalidProvision = errors.New("invalid provision")

	// ErrEmptyInternalID indicates the InternalID field is empty.
	ErrEmptyInternalID = errors.New("internal id cannot be empty")

	// ErrEmptyAct indicates the Act field is empty.
	ErrEmptyAct = errors.New("act cannot be empty")

	// ErrEmptyNodeType indicates the Type field is empty.
	ErrEmptyNodeType = errors.New("node type cannot be empty")

	// ErrSelfParent indicates a provision names itself as parent.
	ErrSelfParent = errors.New("provision cannot be its own parent")

	// ErrInvalidCatalog indicates the act catalog is unusable.
	ErrInvalidCatalog = errors.New("invalid act catalog")

	// ErrInvalidVector indicates an empty or dimension-mismatched vector.
	ErrInvalidVector = errors.New("invalid vector")
)
