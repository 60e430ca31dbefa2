package registrar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asoos/domain-sync/pkg/model"
	"github.com/asoos/domain-sync/pkg/provider"
	"k8s.io/apimachinery/pkg/util/wait"
)

func newTestREST(t *testing.T, srv *httptest.Server) *restClient {
	t.Helper()

	c, err := NewREST(srv.URL, "test-key", "test-secret")
	if err != nil {
		t.Fatalf("NewREST: %v", err)
	}
	rc := c.(*restClient)
	rc.backoff = wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 3}
	return rc
}

func TestNewRESTRequiresCredentials(t *testing.T) {
	if _, err := NewREST("https://api.example.com", "", ""); err == nil {
		t.Error("expected a configuration error for missing credentials")
	}
}

func TestRecordsTreats404AsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	records, err := newTestREST(t, srv).Records(context.Background(), "2100.cool", "asoos", model.RecordTypeA)
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %v", records)
	}
}

func TestRecordsDecodesAndAuthenticates(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]model.Record{
			{Name: "asoos", Type: "A", Data: "151.101.1.195", TTL: 600},
		})
	}))
	defer srv.Close()

	records, err := newTestREST(t, srv).Records(context.Background(), "2100.cool", "asoos", model.RecordTypeA)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if gotPath != "/v1/domains/2100.cool/records/A/asoos" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "sso-key test-key:test-secret" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if len(records) != 1 || records[0].Data != "151.101.1.195" {
		t.Errorf("unexpected records %v", records)
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]model.Record{})
	}))
	defer srv.Close()

	if _, err := newTestREST(t, srv).Records(context.Background(), "2100.cool", "asoos", model.RecordTypeA); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := newTestREST(t, srv).SetRecords(context.Background(), "2100.cool", "asoos", model.RecordTypeA,
		[]model.Record{{Name: "asoos", Type: "A", Data: "151.101.1.195"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !provider.IsPermanent(err) {
		t.Errorf("4xx should be permanent, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("4xx must not be retried, saw %d attempts", got)
	}
}

func TestRateLimitIsTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestREST(t, srv).SetRecords(context.Background(), "2100.cool", "asoos", model.RecordTypeA,
		[]model.Record{{Name: "asoos", Type: "A", Data: "151.101.1.195"}})
	if err == nil {
		t.Fatal("expected an error after retry exhaustion")
	}
	if provider.IsPermanent(err) {
		t.Errorf("429 should be transient, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts for a rate limit, got %d", got)
	}
}

func TestSetRecordsEmptySliceDeletes(t *testing.T) {
	var gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	if err := newTestREST(t, srv).SetRecords(context.Background(), "2100.cool", "asoos", model.RecordTypeCname, nil); err != nil {
		t.Fatalf("SetRecords: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("expected PUT, got %s", gotMethod)
	}
	if gotBody != "[]" {
		t.Errorf("empty record set must serialize as [], got %q", gotBody)
	}
}
