package market

import (
	"fmt"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

// Registry tracks which identity owns each token. The market delegates
// all ownership changes to it; a transfer whose stated holder does not
// match the actual current owner fails, and that failure is the
// market's state-integrity signal.
type Registry interface {
	// Transfer moves a token from one holder to another. It fails if
	// from is not the current owner of the token.
	Transfer(tokenID int64, from, to models.Address) error

	// OwnerOf returns the current owner of a token.
	OwnerOf(tokenID int64) (models.Address, error)

	// BalanceOf returns how many tokens an identity currently holds.
	BalanceOf(addr models.Address) int
}

// memRegistry is the in-process Registry used by the market. The owner
// set is dense and fixed at construction, matching the catalogue.
type memRegistry struct {
	owners []models.Address
}

// NewRegistry creates a registry for a catalogue of n tokens, all
// initially owned by holder.
func NewRegistry(n int, holder models.Address) Registry {
	owners := make([]models.Address, n)
	for i := range owners {
		owners[i] = holder
	}
	return &memRegistry{owners: owners}
}

// RestoreRegistry creates a registry from a persisted owner list.
func RestoreRegistry(owners []models.Address) Registry {
	copied := make([]models.Address, len(owners))
	copy(copied, owners)
	return &memRegistry{owners: copied}
}

func (r *memRegistry) Transfer(tokenID int64, from, to models.Address) error {
	if tokenID < 0 || tokenID >= int64(len(r.owners)) {
		return fmt.Errorf("%w: unknown token %d", ErrInvalidArgument, tokenID)
	}
	if r.owners[tokenID] != from {
		return fmt.Errorf("%w: token %d is not held by %q", ErrStateIntegrity, tokenID, from)
	}
	if to.IsZero() {
		return fmt.Errorf("%w: cannot transfer token %d to the zero address", ErrInvalidArgument, tokenID)
	}
	r.owners[tokenID] = to
	return nil
}

func (r *memRegistry) OwnerOf(tokenID int64) (models.Address, error) {
	if tokenID < 0 || tokenID >= int64(len(r.owners)) {
		return models.ZeroAddress, fmt.Errorf("%w: unknown token %d", ErrInvalidArgument, tokenID)
	}
	return r.owners[tokenID], nil
}

func (r *memRegistry) BalanceOf(addr models.Address) int {
	count := 0
	for _, owner := range r.owners {
		if owner == addr {
			count++
		}
	}
	return count
}
