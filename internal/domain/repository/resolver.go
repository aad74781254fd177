package repository

import (
	"context"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
)

// Resolver turns an item reference into current metadata and signed variant URLs.
// It owns all protocol-level interaction with the upstream source and may be slow or fail.
type Resolver interface {
	// Validate reports whether reference has a shape the upstream source recognizes.
	Validate(reference string) bool

	// CanonicalID derives the item id for reference.
	CanonicalID(reference string) (model.ItemID, error)

	// Resolve fetches live metadata and variants for reference.
	Resolve(ctx context.Context, reference string) (*model.ResolutionResult, error)
}
