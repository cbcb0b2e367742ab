package account

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Repository contains all DB interactions needed by the account service.
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetPatientByUserID(ctx context.Context, userID int64) (*Patient, error)

	// CreateUserWithPatient stores both records atomically and fills in their IDs.
	CreateUserWithPatient(ctx context.Context, u *User, p *Patient) error
	// UpdateProfile writes names, email and phone atomically.
	UpdateProfile(ctx context.Context, u *User, p *Patient) error
}
