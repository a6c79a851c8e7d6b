package application

import (
	"context"

	"github.com/TRA3H/hunter/internal/model"
)

// Transition exposes the guarded status write to the external tests.
func (s *Service) Transition(ctx context.Context, id string, from, to Status) (*model.ApplicationRecord, error) {
	return s.transition(ctx, id, from, to, "test", "", "", nil)
}
