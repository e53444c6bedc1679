package storage

import (
	"context"
	"fmt"

	"github.com/poiesic/docflow/core"
)

// IdentityCandidate is an external identity to be linked to a user.
type IdentityCandidate struct {
	Provider string
	Subject  string
	Email    string
}

// EnsureIdentities applies EnsureIdentity to each candidate in order.
// Running it again over the same population creates nothing new.
func EnsureIdentities(ctx context.Context, users UserRepository, candidates []IdentityCandidate) ([]*core.Identity, error) {
	identities := make([]*core.Identity, 0, len(candidates))
	for _, c := range candidates {
		identity, err := users.EnsureIdentity(ctx, c.Provider, c.Subject, c.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure identity %s/%s: %w", c.Provider, c.Subject, err)
		}
		identities = append(identities, identity)
	}
	return identities, nil
}
