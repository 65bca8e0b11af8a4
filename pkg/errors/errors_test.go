package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusUnprocessableEntity, publicMsg: "validation failed", detailsOK: true},
		{code: CodeBadRequest, status: http.StatusBadRequest, publicMsg: "malformed request", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "duplicate idempotency key with different payload"},
		{code: CodeInvalidTransition, status: http.StatusBadRequest, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientBalance, status: http.StatusUnprocessableEntity, publicMsg: "insufficient balance", detailsOK: true},
		{code: CodeInvalidAmount, status: http.StatusUnprocessableEntity, publicMsg: "invalid amount"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeNotFound, "order not found")
	if base.Code() != CodeNotFound {
		t.Fatalf("expected not found code, got %s", base.Code())
	}
	if base.Message() != "order not found" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeInternal, cause, "loading order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("wrapped error should unwrap to its cause")
	}
	if wrapped.Error() != "INTERNAL_ERROR: loading order: connection reset" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestAsAndHasCodeFollowChain(t *testing.T) {
	err := fmt.Errorf("transition: %w", New(CodeInvalidTransition, "shipped -> pending"))
	if !HasCode(err, CodeInvalidTransition) {
		t.Fatal("expected code to be found through fmt wrapping")
	}
	if HasCode(err, CodeConflict) {
		t.Fatal("unexpected conflict code")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("plain errors carry no typed error")
	}
}

func TestInternalPassesTypedErrorsThrough(t *testing.T) {
	typed := New(CodeForbidden, "not your order")
	if got := Internal(typed, "ignored"); got != typed {
		t.Fatalf("expected typed error to pass through, got %v", got)
	}
	got := Internal(stdErrors.New("disk full"), "saving order")
	if !HasCode(got, CodeInternal) {
		t.Fatalf("expected internal code, got %v", got)
	}
	if Internal(nil, "noop") != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestFieldErrorsCollectsEveryField(t *testing.T) {
	fields := FieldErrors{}
	fields.Add("items", "at least one item is required")
	fields.Add("payment_method", "is required")
	fields.Add("items", "second message is ignored")

	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields["items"] != "at least one item is required" {
		t.Fatalf("first message should win, got %q", fields["items"])
	}

	err := fields.AsError()
	if !HasCode(err, CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	extracted := FieldErrorsOf(err)
	if len(extracted) != 2 || extracted["payment_method"] != "is required" {
		t.Fatalf("unexpected extracted fields %v", extracted)
	}
	if (FieldErrors{}).AsError() != nil {
		t.Fatal("empty field errors should not produce an error")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite locked", err: stdErrors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestDumpIncludesPostgresFields(t *testing.T) {
	err := Wrap(CodeConflict, &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_client_provided_id", TableName: "orders"}, "insert order")
	dump := Dump(err)
	if dump.Code != CodeConflict {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "ux_orders_client_provided_id" || dump.PGTable != "orders" {
		t.Fatalf("unexpected pg fields %+v", dump)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
}
