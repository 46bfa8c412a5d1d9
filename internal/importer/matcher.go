package importer

import (
	"context"
	"errors"

	"github.com/rpattn/custimport/internal/domain"
	"github.com/rpattn/custimport/internal/repository"
)

// Matcher decides whether a staged candidate corresponds to an existing
// customer, in which case commit updates instead of creating.
type Matcher interface {
	Match(ctx context.Context, store repository.CustomerRepository, candidate domain.Customer) (domain.Customer, bool, error)
}

// ExternalIDMatcher matches on an exact external identifier. This is the
// default strategy; candidates without an external id never match.
type ExternalIDMatcher struct{}

func (ExternalIDMatcher) Match(ctx context.Context, store repository.CustomerRepository, candidate domain.Customer) (domain.Customer, bool, error) {
	if candidate.ExternalID == "" {
		return domain.Customer{}, false, nil
	}
	existing, err := store.GetByExternalID(ctx, candidate.TenantID, candidate.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Customer{}, false, nil
		}
		return domain.Customer{}, false, err
	}
	return existing, true, nil
}

// NameAddressMatcher matches on an exact (case-insensitive) name plus address
// line. No fuzzy matching.
type NameAddressMatcher struct{}

func (NameAddressMatcher) Match(ctx context.Context, store repository.CustomerRepository, candidate domain.Customer) (domain.Customer, bool, error) {
	if candidate.FirstName == "" || candidate.LastName == "" || candidate.AddressLine == "" {
		return domain.Customer{}, false, nil
	}
	existing, err := store.FindByNameAddress(ctx, candidate.TenantID, candidate.FirstName, candidate.LastName, candidate.AddressLine)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Customer{}, false, nil
		}
		return domain.Customer{}, false, err
	}
	return existing, true, nil
}

// ChainMatcher tries each matcher in order and takes the first hit.
type ChainMatcher []Matcher

func (c ChainMatcher) Match(ctx context.Context, store repository.CustomerRepository, candidate domain.Customer) (domain.Customer, bool, error) {
	for _, matcher := range c {
		existing, ok, err := matcher.Match(ctx, store, candidate)
		if err != nil || ok {
			return existing, ok, err
		}
	}
	return domain.Customer{}, false, nil
}

var (
	_ Matcher = ExternalIDMatcher{}
	_ Matcher = NameAddressMatcher{}
	_ Matcher = ChainMatcher{}
)
