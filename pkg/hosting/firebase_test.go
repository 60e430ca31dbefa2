package hosting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

func newTestFirebase(t *testing.T, srv *httptest.Server) *firebaseClient {
	t.Helper()

	c, err := NewFirebase(srv.URL, "test-token")
	if err != nil {
		t.Fatalf("NewFirebase: %v", err)
	}
	fc := c.(*firebaseClient)
	fc.backoff = wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 3}
	return fc
}

func TestNewFirebaseRequiresToken(t *testing.T) {
	if _, err := NewFirebase("https://api.example.com", ""); err == nil {
		t.Error("expected a configuration error for a missing token")
	}
}

func TestAttachIssuesToken(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		var d domainResource
		_ = json.NewDecoder(r.Body).Decode(&d)

		out := domainResource{DomainName: d.DomainName, Status: "DOMAIN_CHANGE_REQUIRED"}
		out.Provisioning.ExpectedTXT = "tok-abc123"
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	result, err := newTestFirebase(t, srv).Attach(context.Background(), "asoos-site", "asoos.2100.cool")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if gotPath != "/v1beta1/sites/asoos-site/domains" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if result.AlreadyVerified {
		t.Error("fresh attach should not be already verified")
	}
	if result.Token != "tok-abc123" {
		t.Errorf("unexpected token %q", result.Token)
	}
}

func TestAttachAlreadyVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domainResource{Status: "DOMAIN_ACTIVE"})
	}))
	defer srv.Close()

	result, err := newTestFirebase(t, srv).Attach(context.Background(), "asoos-site", "asoos.2100.cool")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !result.AlreadyVerified {
		t.Error("expected AlreadyVerified")
	}
	if result.Token != "" {
		t.Errorf("verified attach must not carry a token, got %q", result.Token)
	}
}

func TestAttachConflictFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			return
		}
		out := domainResource{Status: "DOMAIN_CHANGE_REQUIRED"}
		out.Provisioning.ExpectedTXT = "tok-existing"
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	result, err := newTestFirebase(t, srv).Attach(context.Background(), "asoos-site", "asoos.2100.cool")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if result.Token != "tok-existing" {
		t.Errorf("expected the existing token from the status read, got %q", result.Token)
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := domainResource{Status: "DOMAIN_ACTIVE"}
		out.Provisioning.CertStatus = "ACTIVE"
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	status, err := newTestFirebase(t, srv).Status(context.Background(), "asoos-site", "asoos.2100.cool")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Verified {
		t.Error("expected verified")
	}
	if status.SSLState != "ACTIVE" {
		t.Errorf("unexpected ssl state %q", status.SSLState)
	}
}
