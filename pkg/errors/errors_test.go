package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stripe/stripe-go/v84"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
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
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsChain(t *testing.T) {
	sentinel := stdErrors.New("voucher is not valid")
	typed := Wrap(CodeValidation, sentinel, "voucher SPRING is not valid")
	outer := fmtWrap(typed)

	if !IsCode(outer, CodeValidation) {
		t.Fatalf("expected validation code through wrapping")
	}
	if IsCode(outer, CodeConflict) {
		t.Fatalf("did not expect conflict code")
	}
	if !stdErrors.Is(outer, sentinel) {
		t.Fatalf("expected sentinel to be reachable")
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	if got := PublicMessage(stdErrors.New("pq: connection refused")); got != "internal server error" {
		t.Fatalf("unexpected public message %q", got)
	}
	if got := PublicMessage(New(CodeConflict, "insufficient stock for Tea")); got != "insufficient stock for Tea" {
		t.Fatalf("unexpected public message %q", got)
	}
	if got := PublicMessage(Wrap(CodeDependency, stdErrors.New("stripe down"), "gateway")); got != "dependency unavailable" {
		t.Fatalf("unexpected public message %q", got)
	}
}

type wrapped struct{ err error }

func (w wrapped) Error() string { return "outer: " + w.err.Error() }
func (w wrapped) Unwrap() error { return w.err }

func fmtWrap(err error) error { return wrapped{err: err} }

func TestLogFieldsExtractsPostgresAndGatewayDetails(t *testing.T) {
	pgErr := Wrap(CodeInternal, fmt.Errorf("insert order: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "orders_pkey",
		TableName:      "orders",
	}), "create order failed")

	fields := LogFields(pgErr)
	if fields["error_code"] != string(CodeInternal) {
		t.Fatalf("unexpected code %v", fields["error_code"])
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "orders_pkey" {
		t.Fatalf("missing postgres fields: %v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatalf("empty values must be omitted")
	}
	if chain, ok := fields["error_chain"].([]string); !ok || len(chain) != 3 {
		t.Fatalf("expected three-link chain, got %v", fields["error_chain"])
	}

	gwErr := Wrap(CodeDependency, &stripe.Error{
		Type:           stripe.ErrorTypeInvalidRequest,
		HTTPStatusCode: 400,
		Param:          "line_items",
	}, "create checkout session")
	fields = LogFields(gwErr)
	if fields["gateway_error_type"] != "invalid_request_error" || fields["gateway_status"] != 400 {
		t.Fatalf("missing gateway fields: %v", fields)
	}
	if LogFields(nil) != nil {
		t.Fatalf("nil error should yield no fields")
	}
}
