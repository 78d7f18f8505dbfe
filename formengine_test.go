package formengine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/submission"
)

func TestEngineOpensEveryRegisteredForm(t *testing.T) {
	t.Parallel()

	engine, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	for _, kind := range []FormKind{FormKindSportsComplex, FormKindYouthHouse, FormKindInvestment, FormKindSignup} {
		sess, err := engine.Open(kind)
		if err != nil {
			t.Fatalf("Open(%s) returned error: %v", kind, err)
		}
		if sess.Kind() != kind {
			t.Fatalf("expected kind %s, got %s", kind, sess.Kind())
		}
		if len(sess.Visible()) == 0 {
			t.Fatalf("expected %s to show fields", kind)
		}
	}

	if _, err := engine.Open("parking"); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := engine.FieldSpec(FormKindSignup, "email"); err != nil {
		t.Fatalf("FieldSpec returned error: %v", err)
	}
}

func TestEngineSubmitSignup(t *testing.T) {
	t.Parallel()

	engine, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	sess, err := engine.Open(FormKindSignup)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	var sent submission.Payload
	transport := submission.TransportFunc(func(_ context.Context, payload submission.Payload) (submission.Receipt, error) {
		sent = payload
		return submission.Receipt{Status: 201, Reference: "ACC-1"}, nil
	})

	_, err = engine.Submit(context.Background(), sess, transport)
	if !errors.Is(err, submission.ErrValidation) {
		t.Fatalf("expected validation failure on an empty form, got %v", err)
	}

	for _, edit := range []struct {
		key   string
		value any
	}{
		{"accountType", "delegate"},
		{"delegateName", "Lirie Gashi"},
		{"delegateRole", "secretary"},
		{"organizationCode", "4411"},
		{"email", "lirie@example.org"},
		{"phone", "+383 49 555 111"},
		{"password", "long-enough"},
		{"municipality", "peja"},
		{"attachment", &model.FileRef{Name: "id.png", Size: 2048, MIMEType: "image/png", Data: []byte("png")}},
		{"acceptTerms", true},
	} {
		if err := sess.Set(edit.key, edit.value); err != nil {
			t.Fatalf("Set(%s) returned error: %v", edit.key, err)
		}
	}

	outcome, err := engine.Submit(context.Background(), sess, transport)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if outcome.Receipt.Reference != "ACC-1" {
		t.Fatalf("unexpected receipt %+v", outcome.Receipt)
	}
	if diff := cmp.Diff("Lirie Gashi", sent.Fields["delegateName"]); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if len(sent.Attachments) != 1 || sent.Attachments[0].Field != "attachment" {
		t.Fatalf("expected one attachment, got %+v", sent.Attachments)
	}
}
