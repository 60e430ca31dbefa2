package verifier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/model"
	"github.com/sirupsen/logrus"
)

type fakeStore struct {
	mu     sync.Mutex
	states map[string]db.DomainState
	saved  []model.Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]db.DomainState)}
}

func (f *fakeStore) GetState(fqdn string) (db.DomainState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[fqdn], nil
}

func (f *fakeStore) SaveStatus(site string, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, status)
	f.states[status.Domain] = db.DomainState{
		ID:           uint(len(f.saved)),
		FQDN:         status.Domain,
		HostingSite:  site,
		OverallState: string(status.OverallState),
	}
	return nil
}

func newTestVerifier(store *fakeStore, a []string, txt []string, httpStatus int) *Verifier {
	v := New("", []string{"151.101.1.195"}, "firebase=", 2, store, nil,
		logrus.WithField("test", "verifier"))
	v.lookupA = func(ctx context.Context, fqdn string) []string { return a }
	v.lookupTXT = func(ctx context.Context, fqdn string) []string { return txt }
	v.probeHTTPS = func(ctx context.Context, fqdn string) int { return httpStatus }
	return v
}

var testTarget = model.Target{
	RootDomain:  "2100.cool",
	Subdomain:   "asoos",
	HostingSite: "asoos-site",
}

func TestVerifyScenario(t *testing.T) {
	store := newFakeStore()

	// freshly reconciled: A record correct, no TXT yet, HTTPS down
	v := newTestVerifier(store, []string{"151.101.1.195"}, nil, 0)
	status := v.Verify(context.Background(), testTarget, "run-1")
	if status.OverallState != model.StateVerificationPending {
		t.Fatalf("expected VERIFICATION_PENDING, got %v", status.OverallState)
	}
	if !status.DNSResolved || status.TXTPresent {
		t.Errorf("unexpected probe fields: %+v", status)
	}

	// token written externally, certificate still provisioning
	v = newTestVerifier(store, []string{"151.101.1.195"}, []string{"firebase=tok-1"}, 0)
	status = v.Verify(context.Background(), testTarget, "run-2")
	if status.OverallState != model.StateSSLPending {
		t.Fatalf("expected SSL_PENDING, got %v", status.OverallState)
	}

	// HTTPS comes up
	v = newTestVerifier(store, []string{"151.101.1.195"}, []string{"firebase=tok-1"}, 200)
	status = v.Verify(context.Background(), testTarget, "run-3")
	if status.OverallState != model.StateLive {
		t.Fatalf("expected LIVE, got %v", status.OverallState)
	}

	// and later regresses
	v = newTestVerifier(store, []string{"151.101.1.195"}, []string{"firebase=tok-1"}, 503)
	status = v.Verify(context.Background(), testTarget, "run-4")
	if status.OverallState != model.StateDegraded {
		t.Fatalf("expected DEGRADED, got %v", status.OverallState)
	}

	if len(store.saved) != 4 {
		t.Errorf("every pass must be recorded, got %d", len(store.saved))
	}
}

func TestVerifyIgnoresForeignTXTRecords(t *testing.T) {
	store := newFakeStore()
	v := newTestVerifier(store, []string{"151.101.1.195"}, []string{"v=spf1 -all"}, 200)

	status := v.Verify(context.Background(), testTarget, "run-1")
	if status.TXTPresent {
		t.Error("unrelated TXT records must not count as verification")
	}
	if status.OverallState != model.StateVerificationPending {
		t.Errorf("expected VERIFICATION_PENDING, got %v", status.OverallState)
	}
}

func TestVerifyAllRecordsRunID(t *testing.T) {
	store := newFakeStore()
	v := newTestVerifier(store, []string{"151.101.1.195"}, []string{"firebase=tok"}, 200)

	targets := []model.Target{
		testTarget,
		{RootDomain: "coaching2100.com", Subdomain: "www", HostingSite: "coaching-site"},
	}
	statuses := v.VerifyAll(context.Background(), targets, "run-7")

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	for _, status := range statuses {
		if status.RunID != "run-7" {
			t.Errorf("status %s missing run id: %+v", status.Domain, status)
		}
		if status.OverallState != model.StateLive {
			t.Errorf("expected LIVE for %s, got %v", status.Domain, status.OverallState)
		}
	}
}

func TestVerifyAllMidRunCancellation(t *testing.T) {
	store := newFakeStore()
	v := newTestVerifier(store, nil, nil, 0)

	// the first probe cancels the run while other workers are still
	// writing their result slots
	ctx, cancel := context.WithCancel(context.Background())
	v.lookupA = func(c context.Context, fqdn string) []string {
		cancel()
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	targets := make([]model.Target, 6)
	for i := range targets {
		targets[i] = model.Target{
			RootDomain:  fmt.Sprintf("d%d.example", i),
			HostingSite: "site",
		}
	}

	statuses := v.VerifyAll(ctx, targets, "run-1")
	if len(statuses) == len(targets) {
		t.Error("a run cancelled mid-batch must not start every domain")
	}
	for _, status := range statuses {
		if status.Domain == "" {
			t.Errorf("domains that did start must produce complete results: %+v", statuses)
		}
	}
}

func TestVerifyAllStopsAtCancellation(t *testing.T) {
	store := newFakeStore()
	v := newTestVerifier(store, nil, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	statuses := v.VerifyAll(ctx, []model.Target{testTarget}, "run-1")
	if len(statuses) != 0 {
		t.Errorf("a cancelled run must not start new domains, got %d statuses", len(statuses))
	}
}
