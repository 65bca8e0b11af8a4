package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusCreated {
		t.Fatalf("expected status 201 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success flag")
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorValidationCarriesFieldMap(t *testing.T) {
	w := httptest.NewRecorder()
	fields := pkgerrors.FieldErrors{}
	fields.Add("items", "at least one item is required")
	fields.Add("payment_method", "is required")
	WriteError(context.Background(), logger.Nop(), w, fields.AsError())

	if got := w.Code; got != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 but got %d", got)
	}
	body := decodeError(t, w)
	if body["success"] != false || body["code"] != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected envelope %v", body)
	}
	errs, ok := body["errors"].(map[string]any)
	if !ok || errs["payment_method"] != "is required" || len(errs) != 2 {
		t.Fatalf("unexpected errors %v", body["errors"])
	}
}

func TestWriteErrorUsesFixedConflictMessages(t *testing.T) {
	cases := map[pkgerrors.Code]string{
		pkgerrors.CodeInsufficientStock: "insufficient stock",
		pkgerrors.CodeIdempotency:       "duplicate idempotency key with different payload",
	}
	for code, want := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), nil, w, pkgerrors.New(code, "internal detail for p12"))
		if w.Code != http.StatusConflict {
			t.Fatalf("%s: expected 409, got %d", code, w.Code)
		}
		if got := decodeError(t, w)["message"]; got != want {
			t.Fatalf("%s: expected message %q, got %v", code, want, got)
		}
	}
}

func TestWriteErrorPassesTypedMessageForClientErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), logger.Nop(), w, pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move order from shipped to pending"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decodeError(t, w)["message"]; got != "cannot move order from shipped to pending" {
		t.Fatalf("unexpected message %v", got)
	}
}

func TestWriteErrorDefaultsToInternalForUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), logger.Nop(), w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}
	body := decodeError(t, w)
	if body["code"] != string(pkgerrors.CodeInternal) || body["message"] != "internal server error" {
		t.Fatalf("unexpected envelope %v", body)
	}
	if _, ok := body["errors"]; ok {
		t.Fatal("errors should be omitted for internal errors")
	}
}

func TestWriteSuccessFallsBackWhenPayloadCannotEncode(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"bad": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if got := decodeError(t, w)["code"]; got != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %v", got)
	}
}
