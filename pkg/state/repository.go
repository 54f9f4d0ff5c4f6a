package state

import "context"

// Repository persists the registration.
type Repository interface {
	// Load retrieves the last saved registration.
	// Returns an empty registration and nil error if none exists.
	Load(ctx context.Context) (Registration, error)

	// Save persists the registration atomically.
	Save(ctx context.Context, reg Registration) error
}

// NopRepository discards saves and always loads an empty registration.
type NopRepository struct{}

func (NopRepository) Load(context.Context) (Registration, error) { return Registration{}, nil }
func (NopRepository) Save(context.Context, Registration) error   { return nil }
