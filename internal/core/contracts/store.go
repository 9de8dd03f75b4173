package contracts

import (
	"context"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

// Transactor runs fn inside one datastore transaction carried by ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MembershipService answers whether a user belongs to a collaboration space.
type MembershipService interface {
	Membership(ctx context.Context, serverID, userID uuid.UUID) (domain.Membership, error)
}
