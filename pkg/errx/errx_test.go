package errx_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/identra-io/identra/pkg/errx"
)

func TestNew(t *testing.T) {
	err := errx.New("something broke", errx.TypeInternal)

	if err.Type != errx.TypeInternal || err.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("wrong classification: %+v", err)
	}
	if !strings.Contains(err.Error(), "something broke") {
		t.Fatalf("message lost: %s", err.Error())
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := errx.Wrap(cause, "failed to load tenant", errx.TypeInternal)

	if !errors.Is(err, cause) {
		t.Fatal("cause must be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("cause not rendered: %s", err.Error())
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := errx.Wrap(nil, "nothing", errx.TypeInternal); err != nil {
		t.Fatalf("wrapping nil must return nil, got %v", err)
	}
}

func TestWrap_PreservesRegisteredCode(t *testing.T) {
	reg := errx.NewRegistry("WIDGET")
	code := reg.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Widget not found")

	inner := reg.New(code).WithDetail("widget_id", "w-1")
	wrapped := errx.Wrap(inner, "lookup failed", errx.TypeNotFound)

	if wrapped.Code != "WIDGET_NOT_FOUND" {
		t.Fatalf("registered code lost on wrap: %s", wrapped.Code)
	}
	if wrapped.Details["widget_id"] != "w-1" {
		t.Fatalf("details lost on wrap: %v", wrapped.Details)
	}
}

func TestIsType(t *testing.T) {
	err := errx.New("nope", errx.TypeNotFound)

	if !errx.IsType(err, errx.TypeNotFound) {
		t.Fatal("direct type match failed")
	}
	if errx.IsType(err, errx.TypeConflict) {
		t.Fatal("wrong type matched")
	}
	if errx.IsType(errors.New("plain"), errx.TypeInternal) {
		t.Fatal("plain error must not match any type")
	}

	wrapped := errx.Wrap(err, "outer", errx.TypeInternal)
	if !errx.IsType(wrapped, errx.TypeInternal) {
		t.Fatal("outermost type must win")
	}
}

func TestRegistry(t *testing.T) {
	reg := errx.NewRegistry("WIDGET")
	code := reg.Register("TOO_BIG", errx.TypeValidation, http.StatusBadRequest, "Widget too big")

	err := reg.New(code)
	if err.Code != "WIDGET_TOO_BIG" {
		t.Fatalf("prefix not applied: %s", err.Code)
	}
	if err.HTTPStatus != http.StatusBadRequest || err.Type != errx.TypeValidation {
		t.Fatalf("wrong classification: %+v", err)
	}

	custom := reg.NewWithMessage(code, "4 meters is too big")
	if custom.Message != "4 meters is too big" || custom.Code != "WIDGET_TOO_BIG" {
		t.Fatalf("custom message handling wrong: %+v", custom)
	}

	cause := errors.New("boom")
	withCause := reg.NewWithCause(code, cause)
	if !errors.Is(withCause, cause) {
		t.Fatal("cause must be reachable")
	}

	if _, ok := reg.Get("TOO_BIG"); !ok {
		t.Fatal("registered code must be retrievable")
	}
	if _, ok := reg.Get("MISSING"); ok {
		t.Fatal("unregistered code must not resolve")
	}
}

func TestWithDetails(t *testing.T) {
	err := errx.New("bad input", errx.TypeValidation).
		WithDetail("field", "email").
		WithDetails(map[string]interface{}{"min": 3, "max": 64})

	if err.Details["field"] != "email" || err.Details["min"] != 3 || err.Details["max"] != 64 {
		t.Fatalf("details not merged: %v", err.Details)
	}
}
