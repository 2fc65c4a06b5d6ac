package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateIdentifierClasses(t *testing.T) {
	cases := []struct {
		name  string
		fn    func(string) error
		value string
		ok    bool
	}{
		{"username simple", ValidateUsername, "bob", true},
		{"username dash digits", ValidateUsername, "xkrato42-b", true},
		{"username max length", ValidateUsername, strings.Repeat("a", MaxUsernameLen), true},
		{"username too long", ValidateUsername, strings.Repeat("a", MaxUsernameLen+1), false},
		{"username empty", ValidateUsername, "", false},
		{"username space", ValidateUsername, "bo b", false},
		{"username underscore", ValidateUsername, "bo_b", false},
		{"channel simple", ValidateChannel, "general", true},
		{"channel bang", ValidateChannel, "bad!channel", false},
		{"secret long ok", ValidateSecret, strings.Repeat("0-", MaxSecretLen/2), true},
		{"secret too long", ValidateSecret, strings.Repeat("x", MaxSecretLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn(tc.value)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected violation for %q", tc.value)
			}
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	if err := ValidateDisplayName("Bob_77!"); err != nil {
		t.Fatalf("printable display name rejected: %v", err)
	}
	if err := ValidateDisplayName("Bo b"); err == nil {
		t.Fatalf("space in display name accepted")
	}
	if err := ValidateDisplayName(""); err == nil {
		t.Fatalf("empty display name accepted")
	}
	if err := ValidateDisplayName(strings.Repeat("x", MaxDisplayNameLen+1)); err == nil {
		t.Fatalf("oversized display name accepted")
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("hello there\ngeneral"); err != nil {
		t.Fatalf("newline in content rejected: %v", err)
	}
	if err := ValidateContent("tab\there"); err == nil {
		t.Fatalf("tab in content accepted")
	}
	if err := ValidateContent(strings.Repeat("y", MaxContentLen)); err != nil {
		t.Fatalf("max-length content rejected: %v", err)
	}
	if err := ValidateContent(strings.Repeat("y", MaxContentLen+1)); err == nil {
		t.Fatalf("oversized content accepted")
	}
}

func TestFieldViolationUnwrapsToMalformed(t *testing.T) {
	err := ValidateUsername("no spaces")
	if err == nil {
		t.Fatalf("expected violation")
	}
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("violation does not unwrap to ErrMalformed: %v", err)
	}
	var fv FieldViolationError
	if !errors.As(err, &fv) {
		t.Fatalf("violation is not a FieldViolationError: %v", err)
	}
	if fv.Field != "username" {
		t.Fatalf("unexpected field name %q", fv.Field)
	}
}

func TestCommandValidate(t *testing.T) {
	ok := AuthCommand{Username: "bob", DisplayName: "Bob", Secret: "secret"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid auth rejected: %v", err)
	}
	bad := AuthCommand{Username: "bob", DisplayName: "B b", Secret: "secret"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("auth with bad display name accepted")
	}
	if err := (JoinCommand{Channel: "bad!channel", DisplayName: "Bob"}).Validate(); err == nil {
		t.Fatalf("join with bad channel accepted")
	}
	if err := (MsgCommand{DisplayName: "Bob", Content: "hi"}).Validate(); err != nil {
		t.Fatalf("valid msg rejected: %v", err)
	}
}
