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

import (
	"fmt"
	"math"
)

// ValidateProvision validates a Provision according to domain rules.
//
// Validation rules:
//   - InternalID must not be empty
//   - Act must not be empty
//   - Type must not be empty
//   - ParentID must not equal InternalID
//
// NOT validated (resolved while building the graph):
//   - References (unresolved targets are counted and skipped)
//   - TermsUsed (terms without a definition are ignored)
//   - RefID (derived from Act, Type and LocalID when empty)
func ValidateProvision(p *Provision) error {
	if p == nil {
		return fmt.Errorf("%w: provision is nil", ErrInvalidProvision)
	}

	if p.InternalID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidProvision, ErrEmptyInternalID)
	}

	if p.Act == "" {
		return fmt.Errorf("%w: %s: %w", ErrInvalidProvision, p.InternalID, ErrEmptyAct)
	}

	if p.Type == "" {
		return fmt.Errorf("%w: %s: %w", ErrInvalidProvision, p.InternalID, ErrEmptyNodeType)
	}

	if p.ParentID != "" && p.ParentID == p.InternalID {
		return fmt.Errorf("%w: %s: %w", ErrInvalidProvision, p.InternalID, ErrSelfParent)
	}

	return nil
}

// Normalize fills derivable fields.
// RefID is built from Act, Type and LocalID when missing and InternalID is
// derived from RefID when missing.
func (p *Provision) Normalize() {
	if p.RefID == "" && p.Act != "" && p.Type != "" && p.LocalID != "" {
		p.RefID = MakeRefID(p.Act, p.Type, p.LocalID)
	}
	if p.InternalID == "" && p.RefID != "" {
		p.InternalID = InternalIDFromRef(p.RefID)
	}
	if p.Act == "" && p.RefID != "" {
		p.Act = ActFromRef(p.RefID)
	}
}

// ValidateVector checks that a vector is non-empty, finite and of the expected dimension.
// A dim of 0 accepts any non-empty length.
func ValidateVector(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: dimension %d, expected %d", ErrInvalidVector, len(v), dim)
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: non-finite component", ErrInvalidVector)
		}
	}
	return nil
}
