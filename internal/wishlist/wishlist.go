// Package wishlist records early-access waitlist signups.
package wishlist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrValidation is returned when the waitlist form is incomplete.
var ErrValidation = errors.New("validation error")

// ValidationError wraps a validation message so callers can distinguish
// client errors from internal failures.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Entry is one waitlist row.
type Entry struct {
	ID                uuid.UUID `db:"id" json:"id"`
	FullName          string    `db:"full_name" json:"full_name"`
	Email             string    `db:"email" json:"email"`
	Occupation        *string   `db:"occupation" json:"occupation,omitempty"`
	FavouriteGames    *string   `db:"favourite_games" json:"favourite_games,omitempty"`
	AdditionalMessage *string   `db:"additional_message" json:"additional_message,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Input is the submitted waitlist form.
type Input struct {
	FullName          string `validate:"required,max=120"`
	Email             string `validate:"required,email"`
	Occupation        string `validate:"max=120"`
	FavouriteGames    string `validate:"max=500"`
	AdditionalMessage string `validate:"max=2000"`
}

// Repository persists waitlist entries.
type Repository interface {
	Create(ctx context.Context, entry Entry) (Entry, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service validates and stores waitlist signups.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a Service with the provided repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates input and stores a new entry. Repository errors are
// returned unchanged so the backend's message reaches the user.
func (s *Service) Create(ctx context.Context, input Input) (Entry, error) {
	input = input.normalize()
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:                uuid.New(),
		FullName:          input.FullName,
		Email:             input.Email,
		Occupation:        optional(input.Occupation),
		FavouriteGames:    optional(input.FavouriteGames),
		AdditionalMessage: optional(input.AdditionalMessage),
		CreatedAt:         s.now().UTC(),
	}
	return s.repo.Create(ctx, entry)
}

func (in Input) normalize() Input {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Occupation = strings.TrimSpace(in.Occupation)
	in.FavouriteGames = strings.TrimSpace(in.FavouriteGames)
	in.AdditionalMessage = strings.TrimSpace(in.AdditionalMessage)
	return in
}

// Validate checks the required fields and email format.
func (in Input) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	switch {
	case fe.Tag() == "required" && fe.Field() == "FullName":
		return &ValidationError{Message: "Full name is required"}
	case fe.Tag() == "required":
		return &ValidationError{Message: "Email is required"}
	case fe.Tag() == "email":
		return &ValidationError{Message: "Please enter a valid email address"}
	default:
		return &ValidationError{Message: fe.Field() + " is too long"}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
