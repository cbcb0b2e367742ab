package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/validation"
)

const minPasswordLength = 8

type RegisterInput struct {
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Gender          string `json:"gender" validate:"omitempty,oneof=M F O"`
	Phone           string `json:"phone" validate:"max=20"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

type UpdateProfileInput struct {
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"max=20"`
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

type Service struct {
	repo     Repository
	tokens   *auth.Issuer
	log      *zap.Logger
	hashCost int
}

func NewService(repo Repository, tokens *auth.Issuer, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		log:      log,
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func collect(err error, into *validation.Errors) error {
	if err == nil {
		return nil
	}
	ve, ok := validation.As(err)
	if !ok {
		return err
	}
	into.Fields = append(into.Fields, ve.Fields...)
	return nil
}

// checkPassword applies the password policy and records failures on errs.
func checkPassword(password, confirm, email string, errs *validation.Errors) {
	if password != "" && confirm != "" && password != confirm {
		errs.Add("password_confirm", "mismatch", "the passwords do not match")
	}
	if password == "" {
		return
	}
	if len([]rune(password)) < minPasswordLength {
		errs.Add("password", "too_short", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	numeric := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			numeric = false
			break
		}
	}
	if numeric {
		errs.Add("password", "entirely_numeric", "the password cannot be entirely numeric")
	}
	local, _, _ := strings.Cut(email, "@")
	if len(local) >= 4 && strings.Contains(strings.ToLower(password), local) {
		errs.Add("password", "too_similar", "the password is too similar to the email")
	}
}

// Register creates an account together with its patient record.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)

	errs := &validation.Errors{}
	if err := collect(validation.Struct(in), errs); err != nil {
		return nil, err
	}
	checkPassword(in.Password, in.PasswordConfirm, in.Email, errs)

	if in.Email != "" {
		if _, err := s.repo.GetUserByEmail(ctx, in.Email); err == nil {
			errs.Add("email", "email_taken", "an account with this email already exists")
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("lookup email: %w", err)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(hash),
	}
	p := &Patient{Gender: Gender(in.Gender)}
	if in.Phone != "" {
		phone := in.Phone
		p.Phone = &phone
	}

	if err := s.repo.CreateUserWithPatient(ctx, u, p); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, validation.Single("email", "email_taken", "an account with this email already exists")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.log.Info("account registered", zap.Int64("user_id", u.ID), zap.Int64("patient_id", p.ID))
	return &Profile{User: *u, Patient: p}, nil
}

// Login checks the password and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(auth.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		ClinicPanel: u.ClinicPanel,
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, ExpiresAt: exp, User: *u}, nil
}

// Profile returns the user and, when present, the patient record.
func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	p, err := s.repo.GetPatientByUserID(ctx, userID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return &Profile{User: *u, Patient: p}, nil
}

// UpdateProfile edits names, email and phone of a patient account.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*Profile, error) {
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	prof, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prof.Patient == nil {
		return nil, ErrPatientNotFound
	}

	if in.Email != prof.User.Email {
		other, err := s.repo.GetUserByEmail(ctx, in.Email)
		if err == nil && other.ID != userID {
			return nil, validation.Single("email", "email_taken", "an account with this email already exists")
		}
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("lookup email: %w", err)
		}
	}

	u := prof.User
	u.Email = in.Email
	u.FirstName = strings.TrimSpace(in.FirstName)
	u.LastName = strings.TrimSpace(in.LastName)

	p := *prof.Patient
	p.Phone = nil
	if in.Phone != "" {
		phone := in.Phone
		p.Phone = &phone
	}

	if err := s.repo.UpdateProfile(ctx, &u, &p); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, validation.Single("email", "email_taken", "an account with this email already exists")
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return &Profile{User: u, Patient: &p}, nil
}
