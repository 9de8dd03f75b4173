package contracts

import (
	"context"
	"time"
)

// RingingExpirer moves calls that rang past cutoff without an answer to missed.
type RingingExpirer interface {
	ExpireRinging(ctx context.Context, cutoff time.Time) (int, error)
}
