package profile

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Form is the settings form. Save always sends every field, changed or not.
type Form struct {
	Username     string `validate:"max=32"`
	FirstName    string `validate:"max=60"`
	LastName     string `validate:"max=60"`
	DateOfBirth  string `validate:"omitempty,datetime=2006-01-02"`
	Country      string `validate:"max=80"`
	MobileNumber string `validate:"max=32"`
	Bio          string `validate:"max=500"`
}

// FormFrom prefills the settings form from the cached row.
func FormFrom(p *Profile) Form {
	if p == nil {
		return Form{}
	}
	return Form{
		Username:     Value(p.Username),
		FirstName:    Value(p.FirstName),
		LastName:     Value(p.LastName),
		DateOfBirth:  Value(p.DateOfBirth),
		Country:      Value(p.Country),
		MobileNumber: Value(p.MobileNumber),
		Bio:          Value(p.Bio),
	}
}

// Normalize trims surrounding whitespace from every field except the bio.
func (f Form) Normalize() Form {
	f.Username = strings.TrimSpace(f.Username)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.DateOfBirth = strings.TrimSpace(f.DateOfBirth)
	f.Country = strings.TrimSpace(f.Country)
	f.MobileNumber = strings.TrimSpace(f.MobileNumber)
	return f
}

// Validate runs before any network call.
func (f Form) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "datetime":
		return &ValidationError{Message: "Date of birth must be a valid date"}
	case "max":
		return &ValidationError{Message: formLabel(fe.Field()) + " is too long"}
	default:
		return &ValidationError{Message: formLabel(fe.Field()) + " is invalid"}
	}
}

// Snapshot converts the whole form into a row update. Empty strings are sent
// as empty values so a cleared field is cleared server-side too.
func (f Form) Snapshot(userID string) Profile {
	return Profile{
		ID:           userID,
		Username:     ptr(f.Username),
		FirstName:    ptr(f.FirstName),
		LastName:     ptr(f.LastName),
		DateOfBirth:  ptr(f.DateOfBirth),
		Country:      ptr(f.Country),
		MobileNumber: ptr(f.MobileNumber),
		Bio:          ptr(f.Bio),
	}
}

func formLabel(field string) string {
	switch field {
	case "FirstName":
		return "First name"
	case "LastName":
		return "Last name"
	case "MobileNumber":
		return "Mobile number"
	default:
		return field
	}
}
