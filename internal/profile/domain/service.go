package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Resolver loads the profile for a user. A missing row is (nil, nil); only
// transport or server faults return an error.
type Resolver interface {
	Resolve(ctx context.Context, userID snowflake.ID) (*Profile, error)
}

type Service interface {
	Resolver
	Upsert(ctx context.Context, profile *Profile) error
	Update(ctx context.Context, userID snowflake.ID, req UpdateRequest) (*Profile, error)
}
