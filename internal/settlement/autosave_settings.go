package settlement

import (
	"context"
	"errors"

	"savings-platform/internal/autosave"
	"savings-platform/internal/store"
)

// GetAutoSavePolicy returns the user's policy, or a disabled zero policy
// when none was ever configured.
func (s *Service) GetAutoSavePolicy(ctx context.Context, userID string) (autosave.Policy, error) {
	p, err := s.store.GetAutoSavePolicy(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return autosave.Policy{UserID: userID}, nil
	}
	if err != nil {
		return autosave.Policy{}, err
	}
	return p, nil
}

// UpdateAutoSavePolicy replaces the user's policy. In-flight PENDING
// payments keep the snapshot taken at order creation.
func (s *Service) UpdateAutoSavePolicy(ctx context.Context, p autosave.Policy) (autosave.Policy, error) {
	if p.UserID == "" || !p.Valid() {
		return autosave.Policy{}, autosave.ErrInvalidPolicy
	}
	p.UpdatedAt = s.clock().UTC()
	if err := s.store.SaveAutoSavePolicy(ctx, p); err != nil {
		return autosave.Policy{}, err
	}
	return p, nil
}
