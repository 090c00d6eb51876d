package registry

import (
	"context"
	"strings"

	"lumen/internal/audit"
	"lumen/internal/domain"
	"lumen/internal/ports"
)

// Service deduplicates (url, owner) pairs into stable Domain identities.
//
// Lookup is an exact string match: trailing slashes, query strings and case
// all distinguish URLs. Dedupe is lookup-before-create, so two concurrent
// submissions of the same new URL can race into duplicate Domains; readers
// tolerate that.
type Service struct {
	domains ports.DomainRepository
}

func New(domains ports.DomainRepository) *Service {
	return &Service{domains: domains}
}

// Resolve returns the Domain for (url, ownerID), creating it on first
// submission. An existing Domain is returned unchanged: device and network
// keep their first-submitted values even when the new submission differs.
func (s *Service) Resolve(ctx context.Context, rawurl, device, network, ownerID string) (domain.Domain, error) {
	dev, err := audit.ValidateTarget(rawurl, device)
	if err != nil {
		return domain.Domain{}, err
	}
	network = strings.ToLower(strings.TrimSpace(network))
	if !audit.KnownProfile(network) {
		return domain.Domain{}, &domain.ValidationError{Msg: "unknown network profile: " + network}
	}
	if ownerID == "" {
		return domain.Domain{}, domain.ErrUnauthorized
	}

	existing, found, err := s.domains.FindByURLAndOwner(ctx, rawurl, ownerID)
	if err != nil {
		return domain.Domain{}, err
	}
	if found {
		return existing, nil
	}

	return s.domains.CreateDomain(ctx, domain.Domain{
		URL:     rawurl,
		Device:  dev,
		Network: network,
		OwnerID: ownerID,
	})
}
