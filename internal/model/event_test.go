package model

import (
	"errors"
	"testing"
)

func TestStatusCanTransition(t *testing.T) {
	for _, tc := range []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusPending, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessed, StatusPending, false},
		{StatusProcessed, StatusProcessing, false},
		{StatusProcessed, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusProcessed, false},
	} {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Error("pending/processing must not be terminal")
	}
	if !StatusProcessed.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("processed/failed must be terminal")
	}
	if Status("DONE").IsValid() {
		t.Error("unknown status reported valid")
	}
}

func TestEventResource(t *testing.T) {
	e := Event{ID: "evt_1"}
	if got := e.Resource(); got != "evt_1" {
		t.Errorf("Resource() = %q, want event id", got)
	}
	e.ResourceID = "ord_9"
	if got := e.Resource(); got != "ord_9" {
		t.Errorf("Resource() = %q, want ord_9", got)
	}
}

func TestClassFor(t *testing.T) {
	for _, tc := range []struct {
		typ  string
		want JobClass
		ok   bool
	}{
		{TypePaymentConfirmed, ClassPayments, true},
		{"payment.disputed", ClassPayments, true},
		{TypeImageVariantsRequested, ClassImages, true},
		{TypeMenuImportRequested, ClassMenuImport, true},
		{"order.created", "", false},
		{"", "", false},
	} {
		got, ok := ClassFor(tc.typ)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ClassFor(%q) = (%q, %v), want (%q, %v)", tc.typ, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseJobClass(t *testing.T) {
	if c, ok := ParseJobClass("Menu-Import"); !ok || c != ClassMenuImport {
		t.Errorf("ParseJobClass(Menu-Import) = (%q, %v)", c, ok)
	}
	if _, ok := ParseJobClass("laundry"); ok {
		t.Error("expected unknown class to fail")
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(TypePaymentRefunded, []byte(`{"payment_id":"pay_1","order_id":"ord_1","amount_minor":1250,"currency":"EUR"}`))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	pp, ok := p.(*PaymentPayload)
	if !ok {
		t.Fatalf("got %T, want *PaymentPayload", p)
	}
	if pp.EventType() != TypePaymentRefunded || pp.AmountMinor != 1250 || pp.OrderID != "ord_1" {
		t.Errorf("unexpected payload %+v", pp)
	}

	img, err := DecodePayload(TypeImageVariantsRequested, []byte(`{"image_id":"img_1","source_key":"k","widths":[320,640]}`))
	if err != nil {
		t.Fatalf("DecodePayload(image): %v", err)
	}
	if got := img.(*ImageVariantsPayload).Widths; len(got) != 2 || got[1] != 640 {
		t.Errorf("widths = %v", got)
	}

	if _, err := DecodePayload("order.created", []byte(`{}`)); !errors.Is(err, ErrUnknownPayload) {
		t.Errorf("expected ErrUnknownPayload, got %v", err)
	}
	if _, err := DecodePayload(TypeMenuImportRequested, []byte(`[1,2]`)); err == nil {
		t.Error("expected decode error for wrong shape")
	}
	if _, err := DecodePayload(TypeMenuImportRequested, nil); err == nil {
		t.Error("expected error for empty payload")
	}
}
