package services

import (
	"context"
	"errors"
	"fmt"

	"txstatus-backend/internal/models"
	"txstatus-backend/internal/repository"
	"txstatus-backend/internal/utils"
)

// UserLookup account resolution used for attribution
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	FindByWalletAddress(ctx context.Context, address string) (*models.User, error)
}

// Attribution user ids assigned to the two sides of a transaction
type Attribution struct {
	FromUserID *string
	ToUserID   *string
	// ExternalCounterparty the acting user sent to an address no account owns.
	// ToUserID then points back at the sender.
	ExternalCounterparty bool
}

// AddressAttributionResolver maps ledger from/to addresses onto user ids
type AddressAttributionResolver struct {
	users UserLookup
}

// NewAddressAttributionResolver creates a resolver over users
func NewAddressAttributionResolver(users UserLookup) *AddressAttributionResolver {
	return &AddressAttributionResolver{users: users}
}

// Classify attributes a transaction relative to the acting user's wallet:
//
//	sender    = acting wallet: from = acting user, to = owner of txTo or the acting user itself
//	recipient = acting wallet: to = acting user, from = owner of txFrom if any
//	neither:                   to = acting user, from unresolved
func (a *AddressAttributionResolver) Classify(ctx context.Context, txFrom, txTo, actingUserID, actingWallet string) (Attribution, error) {
	var out Attribution
	var acting *string
	if actingUserID != "" {
		id := actingUserID
		acting = &id
	}

	switch {
	case utils.SameAddress(txFrom, actingWallet):
		out.FromUserID = acting
		owner, err := a.ownerOf(ctx, txTo)
		if err != nil {
			return Attribution{}, err
		}
		if owner != nil {
			out.ToUserID = owner
		} else {
			out.ToUserID = acting
			out.ExternalCounterparty = true
		}

	case utils.SameAddress(txTo, actingWallet):
		out.ToUserID = acting
		owner, err := a.ownerOf(ctx, txFrom)
		if err != nil {
			return Attribution{}, err
		}
		out.FromUserID = owner

	default:
		out.ToUserID = acting
	}
	return out, nil
}

func (a *AddressAttributionResolver) ownerOf(ctx context.Context, address string) (*string, error) {
	if address == "" || address == models.PendingAddress {
		return nil, nil
	}
	user, err := a.users.FindByWalletAddress(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup wallet owner %s: %w", address, err)
	}
	id := user.ID
	return &id, nil
}
