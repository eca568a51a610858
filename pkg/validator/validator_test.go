package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"password"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Name:     "alice",
		Email:    "alice@example.com",
		Password: "correct1horse",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Name:     "",
		Email:    "invalid",
		Password: "short",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundEmail := false
	for _, v := range vErrs {
		if v.Field == "email" {
			foundEmail = true
		}
	}

	if !foundEmail {
		t.Fatal("expected email field to be present in validation errors")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("launchpad", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "launchpad"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"launchpad"`
	}

	if err := ValidateStruct(custom{Value: "launchpad"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}

func TestIsStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"":              false,
		"abcdefgh":      false,
		"12345678":      false,
		"abc1":          false,
		"abcdefg1":      true,
		"pässwörd9":     true,
	}
	for input, want := range cases {
		if got := IsStrongPassword(input); got != want {
			t.Fatalf("IsStrongPassword(%q) = %v, want %v", input, got, want)
		}
	}
}
