package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New(PhaseMarshal, KindTypeMismatch).
		Path("tags").
		HostType("int").
		FieldType("text").
		Detail("cannot convert").
		Build()

	msg := err.Error()
	if !strings.Contains(msg, "[marshal]") {
		t.Errorf("missing phase in %q", msg)
	}
	if !strings.Contains(msg, "type_mismatch") {
		t.Errorf("missing kind in %q", msg)
	}
	if !strings.Contains(msg, "tags") {
		t.Errorf("missing path in %q", msg)
	}
}

func TestErrorCode(t *testing.T) {
	if got := ParseFailed(3, "bad").Code(); got != "query_parse_error" {
		t.Errorf("Code() = %q", got)
	}
	if got := RangeOverflow(nil, 300, "u8").Code(); got != "range_error" {
		t.Errorf("Code() = %q", got)
	}
}

func TestErrorIs(t *testing.T) {
	err := RangeOverflow([]string{"rating"}, 300, "u8")

	if !stderrors.Is(err, &Error{Kind: KindRangeError}) {
		t.Error("expected match on kind alone")
	}
	if !stderrors.Is(err, &Error{Phase: PhaseMarshal, Kind: KindRangeError}) {
		t.Error("expected match on phase+kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseQuery, Kind: KindRangeError}) {
		t.Error("should not match a different phase")
	}
	if stderrors.Is(err, &Error{Kind: KindTypeMismatch}) {
		t.Error("should not match a different kind")
	}
}

func TestIsKindUnwraps(t *testing.T) {
	inner := IO("open segment", stderrors.New("disk gone"))
	wrapped := fmt.Errorf("commit: %w", inner)

	if !IsKind(wrapped, KindIO) {
		t.Error("IsKind should see through fmt wrapping")
	}
	if IsKind(wrapped, KindQueryParse) {
		t.Error("wrong kind matched")
	}
	if IsKind(nil, KindIO) {
		t.Error("nil must not match")
	}
}

func TestParsePosition(t *testing.T) {
	err := ParseFailed(42, "unbalanced parenthesis")
	if err.Position != 42 {
		t.Fatalf("Position = %d, want 42", err.Position)
	}
	if !strings.Contains(err.Error(), "byte 42") {
		t.Errorf("position missing from message %q", err.Error())
	}

	if io := IO("stat", stderrors.New("x")); io.Position != NoPosition {
		t.Errorf("non-parse error should carry NoPosition, got %d", io.Position)
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root")
	err := Wrap(PhaseEngine, KindIO, cause, "flush")
	if !stderrors.Is(err, cause) {
		t.Error("cause should be reachable via Unwrap")
	}
}
