package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/goliatone/go-formengine/pkg/clientstate"
	"github.com/goliatone/go-formengine/pkg/config"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/submission"
)

func TestRunListsForms(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), options{list: true}, &out); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	got := strings.Fields(out.String())
	want := map[string]bool{"sportsComplex": true, "youthHouse": true, "investment": true, "signup": true}
	seen := map[string]bool{}
	for _, kind := range got {
		seen[kind] = true
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("listed forms mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRequiresForm(t *testing.T) {
	err := run(context.Background(), options{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "-form is required") {
		t.Fatalf("expected missing form error, got %v", err)
	}
}

func TestPrintPayloadOmitsAttachmentBytes(t *testing.T) {
	var out bytes.Buffer
	payload := submission.Payload{
		SubmissionID: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		Kind:         model.FormKindInvestment,
		Fields:       map[string]string{"title": "Roof"},
		Attachments:  []submission.Attachment{{Field: "plan", Name: "plan.pdf", MIMEType: "application/pdf", Size: 3, Data: []byte("pdf")}},
	}
	if err := printPayload(&out, payload); err != nil {
		t.Fatalf("printPayload returned error: %v", err)
	}
	text := out.String()
	for _, want := range []string{`"kind": "investment"`, `"title": "Roof"`, `"name": "plan.pdf"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %s in output, got %s", want, text)
		}
	}
	if strings.Contains(text, "cGRm") {
		t.Fatalf("attachment bytes leaked into output: %s", text)
	}
}

func TestRunListsFormsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	doc := "kind: parking\nfields:\n  - key: plate\n    type: text\n"
	if err := os.WriteFile(filepath.Join(dir, "parking.yaml"), []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), options{list: true, formsDir: dir}, &out); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "parking" {
		t.Fatalf("expected only parking, got %q", got)
	}
}

func TestNewTransportUsesRunLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cfg := config.Config{API: config.APIConfig{BaseURL: server.URL, Timeout: time.Second}}
	transport, err := newTransport(context.Background(), cfg, clientstate.NewMemoryStore(clientstate.Default()), logger, false, io.Discard)
	if err != nil {
		t.Fatalf("newTransport returned error: %v", err)
	}

	_, err = transport.SubmitForm(context.Background(), submission.Payload{
		SubmissionID: uuid.New(),
		Kind:         model.FormKindSportsComplex,
		Fields:       map[string]string{"fullName": "Arta Krasniqi"},
	})
	if err == nil {
		t.Fatalf("expected a transport error for a 500 response")
	}
	if !strings.Contains(logs.String(), "httptransport.operation=submitForm") {
		t.Fatalf("transport did not log through the configured logger, got %q", logs.String())
	}
}
