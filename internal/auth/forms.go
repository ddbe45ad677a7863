package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MinPasswordLength is the shortest password the signup and reset forms accept.
const MinPasswordLength = 6

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoginForm is the submitted login form.
type LoginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// SignupForm is the submitted signup form.
type SignupForm struct {
	Username        string `validate:"required,max=32"`
	FullName        string `validate:"required,max=120"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string
}

// ForgotPasswordForm requests a password reset link.
type ForgotPasswordForm struct {
	Email string `validate:"required,email"`
}

// ResetPasswordForm sets a new password for a recovering session.
type ResetPasswordForm struct {
	Password        string `validate:"required,min=6"`
	ConfirmPassword string
}

// Validate checks the login form before any network call.
func (f LoginForm) Validate() error {
	return formError(validate.Struct(f))
}

// Validate checks the signup form. A password mismatch is reported before any other problem.
func (f SignupForm) Validate() error {
	if f.Password != f.ConfirmPassword {
		return errors.New("Passwords do not match")
	}
	return formError(validate.Struct(f))
}

// Credentials returns the login payload for the backend.
func (f LoginForm) Credentials() Credentials {
	return Credentials{Email: strings.TrimSpace(f.Email), Password: f.Password}
}

// Params returns the signup payload for the backend.
func (f SignupForm) Params(redirectTo string) SignUpParams {
	return SignUpParams{
		Email:    strings.TrimSpace(f.Email),
		Password: f.Password,
		Data: Metadata{
			Username: strings.TrimSpace(f.Username),
			FullName: strings.TrimSpace(f.FullName),
		},
		EmailRedirectTo: redirectTo,
	}
}

// Validate checks the forgot-password form.
func (f ForgotPasswordForm) Validate() error {
	return formError(validate.Struct(f))
}

// Validate checks the reset-password form. A password mismatch is reported first.
func (f ResetPasswordForm) Validate() error {
	if f.Password != f.ConfirmPassword {
		return errors.New("Passwords do not match")
	}
	return formError(validate.Struct(f))
}

func formError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return errors.New(fieldMessage(fieldErrs[0]))
}

func fieldMessage(fe validator.FieldError) string {
	label := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Please enter a valid email address"
	case "min":
		if fe.Field() == "Password" {
			return "Password must be at least 6 characters"
		}
		return label + " is too short"
	case "max":
		return label + " is too long"
	default:
		return label + " is invalid"
	}
}

func fieldLabel(field string) string {
	switch field {
	case "FullName":
		return "Full name"
	case "ConfirmPassword":
		return "Password confirmation"
	default:
		return field
	}
}
