package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapMsgKeepsCode(t *testing.T) {
	err := ErrDuplicateSequence.WrapMsg("append", "conv", "p2p:a_b", "seq", 100001)
	if !errors.Is(err, ErrDuplicateSequence) {
		t.Fatalf("wrapped error should match by code")
	}
	if errors.Is(err, ErrWriteConflict) {
		t.Fatalf("different code should not match")
	}
	if !strings.Contains(err.Error(), "conv=p2p:a_b") {
		t.Fatalf("detail kv missing: %s", err.Error())
	}
}

func TestWithDetailDoesNotMutateBase(t *testing.T) {
	_ = ErrArgs.WithDetail("first")
	if ErrArgs.Detail != "" {
		t.Fatalf("base error mutated: %q", ErrArgs.Detail)
	}
}

func TestUnwrapCodeError(t *testing.T) {
	err := Wrap(ErrCheckpointInvalid.WrapMsg("resume"))
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		t.Fatalf("should unwrap to CodeError")
	}
	if codeErr.Code != CheckpointInvalidError {
		t.Fatalf("code = %d, want %d", codeErr.Code, CheckpointInvalidError)
	}
}
