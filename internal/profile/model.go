package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"rigshare/internal/auth"
)

// ErrValidation is returned when profile input or a fetched row is malformed.
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

// Profile is the user-editable row keyed by the auth user id. Every display
// field is optional; a nil pointer means the column is absent or unknown.
type Profile struct {
	ID           string     `db:"id" json:"id" validate:"required"`
	Username     *string    `db:"username" json:"username,omitempty" validate:"omitempty,max=32"`
	FirstName    *string    `db:"first_name" json:"first_name,omitempty" validate:"omitempty,max=60"`
	LastName     *string    `db:"last_name" json:"last_name,omitempty" validate:"omitempty,max=60"`
	DateOfBirth  *string    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Country      *string    `db:"country" json:"country,omitempty" validate:"omitempty,max=80"`
	MobileNumber *string    `db:"mobile_number" json:"mobile_number,omitempty" validate:"omitempty,max=32"`
	Bio          *string    `db:"bio" json:"bio,omitempty" validate:"omitempty,max=500"`
	AvatarURL    *string    `db:"avatar_url" json:"avatar_url,omitempty" validate:"omitempty,max=2048"`
	Email        *string    `db:"email" json:"email,omitempty"`
	Status       *string    `db:"status" json:"status,omitempty" validate:"omitempty,max=32"`
	CreatedAt    *time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Repository persists profile rows. Get returns (nil, nil) when the row does
// not exist yet. Upsert writes every non-nil field and returns the stored row.
type Repository interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, p Profile) (Profile, error)
	Delete(ctx context.Context, userID string) error
}

// DateLayout is the wire format of date_of_birth.
const DateLayout = "2006-01-02"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a row read from the backend.
func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Message: fmt.Sprintf("profile field %s failed %q", fe.Field(), fe.Tag())}
		}
		return err
	}
	if dob := Value(p.DateOfBirth); dob != "" {
		if _, err := time.Parse(DateLayout, dob); err != nil {
			return &ValidationError{Message: fmt.Sprintf("profile date_of_birth %q is not a date", dob)}
		}
	}
	return nil
}

// Decode parses a single profile row from JSON. A JSON null decodes to (nil, nil).
func Decode(data []byte) (*Profile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("decode profile: %v", err)}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Merge returns a copy of p with every non-nil field of update applied.
func (p Profile) Merge(update Profile) Profile {
	out := p
	if update.ID != "" {
		out.ID = update.ID
	}
	mergeString(&out.Username, update.Username)
	mergeString(&out.FirstName, update.FirstName)
	mergeString(&out.LastName, update.LastName)
	mergeString(&out.DateOfBirth, update.DateOfBirth)
	mergeString(&out.Country, update.Country)
	mergeString(&out.MobileNumber, update.MobileNumber)
	mergeString(&out.Bio, update.Bio)
	mergeString(&out.AvatarURL, update.AvatarURL)
	mergeString(&out.Email, update.Email)
	mergeString(&out.Status, update.Status)
	if update.CreatedAt != nil {
		t := *update.CreatedAt
		out.CreatedAt = &t
	}
	if update.UpdatedAt != nil {
		t := *update.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

func mergeString(dst **string, src *string) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}

// Value dereferences an optional field.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	return &s
}

// FullName joins first and last name.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(Value(p.FirstName) + " " + Value(p.LastName))
}

// DisplayName picks the name shown in the navigation bar: the profile
// username, then the signup username, then a full name, then the part of the
// email before the @.
func DisplayName(p *Profile, user *auth.User) string {
	if p != nil {
		if name := strings.TrimSpace(Value(p.Username)); name != "" {
			return name
		}
	}
	if user != nil && strings.TrimSpace(user.Metadata.Username) != "" {
		return strings.TrimSpace(user.Metadata.Username)
	}
	if name := p.FullName(); name != "" {
		return name
	}
	if user != nil {
		if name := strings.TrimSpace(user.Metadata.FullName); name != "" {
			return name
		}
		if local, _, _ := strings.Cut(user.Email, "@"); local != "" {
			return local
		}
	}
	return "Player"
}

// Username returns the name the account-deletion gate compares against: the
// profile username when set, otherwise the signup username.
func Username(p *Profile, user *auth.User) string {
	if p != nil && p.Username != nil && *p.Username != "" {
		return *p.Username
	}
	if user != nil {
		return user.Metadata.Username
	}
	return ""
}
