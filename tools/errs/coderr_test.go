package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapMsgKeepsCode(t *testing.T) {
	err := ErrAlreadyBound.WrapMsg("conn", "c-1", "user", "alice")
	if !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("wrapped error lost its code: %v", err)
	}
	if errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("wrapped error matches wrong code")
	}
	if !strings.Contains(err.Error(), "c-1") {
		t.Fatalf("detail missing from %q", err.Error())
	}
}

func TestCodeExtraction(t *testing.T) {
	if got := Code(ErrPersistenceFailure.WrapMsg("store down")); got != CodePersistenceFailure {
		t.Fatalf("Code = %d, want %d", got, CodePersistenceFailure)
	}
	if got := Code(errors.New("plain")); got != CodeInternal {
		t.Fatalf("Code(plain) = %d, want %d", got, CodeInternal)
	}
}

func TestWithDetailDoesNotMutate(t *testing.T) {
	base := NewCodeError(9999, "base")
	d1 := base.WithDetail("one")
	d2 := base.WithDetail("two")
	if base.Detail != "" {
		t.Fatalf("base mutated: %q", base.Detail)
	}
	if d1.Detail != "one" || d2.Detail != "two" {
		t.Fatalf("details = %q, %q", d1.Detail, d2.Detail)
	}
}
