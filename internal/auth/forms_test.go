package auth

import "testing"

func TestSignupFormReportsMismatchFirst(t *testing.T) {
	form := SignupForm{
		Username:        "rigrunner",
		FullName:        "Rig Runner",
		Email:           "runner@example.com",
		Password:        "abc",
		ConfirmPassword: "abcd",
	}

	err := form.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if err.Error() != "Passwords do not match" {
		t.Fatalf("expected mismatch message, got %q", err.Error())
	}
}

func TestSignupFormRequiresMinimumLength(t *testing.T) {
	form := SignupForm{
		Username:        "rigrunner",
		FullName:        "Rig Runner",
		Email:           "runner@example.com",
		Password:        "abc",
		ConfirmPassword: "abc",
	}

	err := form.Validate()
	if err == nil || err.Error() != "Password must be at least 6 characters" {
		t.Fatalf("expected min length error, got %v", err)
	}
}

func TestSignupFormRequiresFields(t *testing.T) {
	form := SignupForm{
		Email:           "runner@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}

	err := form.Validate()
	if err == nil || err.Error() != "Username is required" {
		t.Fatalf("expected username required error, got %v", err)
	}
}

func TestSignupFormParamsCarryMetadata(t *testing.T) {
	form := SignupForm{
		Username:        " rigrunner ",
		FullName:        "Rig Runner",
		Email:           " runner@example.com ",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
	if err := form.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	params := form.Params("http://localhost/auth/confirm")
	if params.Email != "runner@example.com" {
		t.Fatalf("expected trimmed email, got %q", params.Email)
	}
	if params.Data.Username != "rigrunner" || params.Data.FullName != "Rig Runner" {
		t.Fatalf("unexpected metadata: %+v", params.Data)
	}
	if params.EmailRedirectTo != "http://localhost/auth/confirm" {
		t.Fatalf("unexpected redirect: %q", params.EmailRedirectTo)
	}
}

func TestLoginFormRejectsInvalidEmail(t *testing.T) {
	err := LoginForm{Email: "not-an-email", Password: "x"}.Validate()
	if err == nil || err.Error() != "Please enter a valid email address" {
		t.Fatalf("expected email error, got %v", err)
	}
}

func TestResetPasswordFormMismatch(t *testing.T) {
	err := ResetPasswordForm{Password: "secret1", ConfirmPassword: "secret2"}.Validate()
	if err == nil || err.Error() != "Passwords do not match" {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if err := (ResetPasswordForm{Password: "secret1", ConfirmPassword: "secret1"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
