package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
)

type addItemBody struct {
	SparePartID string `json:"spare_part_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity" validate:"gte=0,max=99"`
}

func TestDecodeJSONBodyValidatesFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"spare_part_id":"nope","quantity":120}`))

	var body addItemBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["spare_part_id"] != "must be a valid uuid" {
		t.Fatalf("unexpected spare_part_id message %q", details["spare_part_id"])
	}
	if details["quantity"] != "must be at most 99" {
		t.Fatalf("unexpected quantity message %q", details["quantity"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"spare_part_id":"`+uuid.NewString()+`","price":"1.00"}`))

	var body addItemBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyNamesUnknownField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"spare_part_id":"`+uuid.NewString()+`","price":"1.00"}`))

	var body addItemBody
	err := DecodeJSONBody(req, &body)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["price"] != "is not allowed" {
		t.Fatalf("expected price to be flagged, got %v", pkgerrors.As(err).Details())
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":     ``,
		"truncated": `{"spare_part_id":`,
		"syntax":    `{"spare_part_id" "x"}`,
		"trailing":  `{"quantity":1} {"quantity":2}`,
		"type":      `{"spare_part_id":"` + uuid.NewString() + `","quantity":"two"}`,
		"oversized": `{"spare_part_id":"` + strings.Repeat("a", int(MaxBodyBytes)) + `"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
			var body addItemBody
			if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

type syncBody struct {
	Items []addItemBody `json:"items" validate:"max=2,dive"`
}

func TestDecodeJSONBodyReportsNestedPaths(t *testing.T) {
	payload := `{"items":[{"spare_part_id":"` + uuid.NewString() + `","quantity":1},{"spare_part_id":"bad","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))

	var body syncBody
	err := DecodeJSONBody(req, &body)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["items[1].spare_part_id"] != "must be a valid uuid" {
		t.Fatalf("unexpected details %v", details)
	}

	tooMany := `{"items":[{"spare_part_id":"` + uuid.NewString() + `"},{"spare_part_id":"` + uuid.NewString() + `"},{"spare_part_id":"` + uuid.NewString() + `"}]}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tooMany)), &syncBody{})
	details, _ = pkgerrors.As(err).Details().(map[string]string)
	if details["items"] != "must have at most 2 entries" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"spare_part_id":"`+id+`","quantity":2}`))

	var body addItemBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.SparePartID != id || body.Quantity != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("itemId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "itemId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ParseUUIDParam(withParam("abc"), "itemId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseUUIDParam(withParam(""), "itemId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}
