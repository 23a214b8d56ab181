package user

import "context"

type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByIdentifier resolves a login identifier, matching username first
	// and falling back to email.
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
}
