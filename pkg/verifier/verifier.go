// Package verifier probes DNS resolution, verification TXT records, and
// HTTPS reachability for each target and classifies its lifecycle
// state.
package verifier

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/model"
	"github.com/asoos/domain-sync/pkg/statuslog"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	DefaultResolver = "8.8.8.8:53"
	DefaultWorkers  = 4

	probeTimeout = 10 * time.Second
)

// StatusStore is the latest-status view the verifier reads previous
// states from and writes fresh ones into.
type StatusStore interface {
	GetState(fqdn string) (db.DomainState, error)
	SaveStatus(site string, status model.Status) error
}

type Verifier struct {
	resolver   string
	hostingIPs map[string]bool
	txtPrefix  string
	workers    int
	store      StatusStore
	journal    *statuslog.Log
	log        *logrus.Entry

	dnsClient  *dns.Client
	httpClient *http.Client

	// swapped out in tests
	lookupA    func(ctx context.Context, fqdn string) []string
	lookupTXT  func(ctx context.Context, fqdn string) []string
	probeHTTPS func(ctx context.Context, fqdn string) int
}

func New(resolver string, hostingIPs []string, txtPrefix string, workers int, store StatusStore, journal *statuslog.Log, log *logrus.Entry) *Verifier {
	if resolver == "" {
		resolver = DefaultResolver
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ips := make(map[string]bool, len(hostingIPs))
	for _, ip := range hostingIPs {
		ips[ip] = true
	}

	v := &Verifier{
		resolver:   resolver,
		hostingIPs: ips,
		txtPrefix:  txtPrefix,
		workers:    workers,
		store:      store,
		journal:    journal,
		log:        log,
		dnsClient: &dns.Client{
			Timeout: probeTimeout,
		},
		httpClient: &http.Client{
			Timeout: probeTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// the status code is the probe outcome; content behind
				// redirects is irrelevant
				return http.ErrUseLastResponse
			},
		},
	}
	v.lookupA = v.resolveA
	v.lookupTXT = v.resolveTXT
	v.probeHTTPS = v.httpsStatus

	return v
}

// VerifyAll probes every target with bounded parallelism, appends each
// outcome to the journal, and updates the latest-status view. Probe
// failures are states, not errors; the returned statuses are complete
// even when domains are down.
func (v *Verifier) VerifyAll(ctx context.Context, targets []model.Target, runID string) []model.Status {
	statuses := make([]model.Status, len(targets))

	sem := make(chan struct{}, v.workers)
	var wg sync.WaitGroup
	started := len(targets)
	for i, t := range targets {
		if ctx.Err() != nil {
			// abandoned by the run deadline; domains already started
			// still finish and their results stand, the rest are simply
			// not probed
			started = i
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t model.Target) {
			defer wg.Done()
			defer func() { <-sem }()
			statuses[i] = v.Verify(ctx, t, runID)
		}(i, t)
	}
	wg.Wait()

	// truncate only after every started worker has written its slot
	return statuses[:started]
}

// Verify runs one pass for one target and records the outcome.
func (v *Verifier) Verify(ctx context.Context, t model.Target, runID string) model.Status {
	fqdn := t.FQDN()
	log := v.log.WithField("fqdn", fqdn)

	previous := model.OverallState("")
	if state, err := v.store.GetState(fqdn); err != nil {
		log.WithError(err).Warn("failed to load previous state")
	} else if state.ID != 0 {
		previous = model.OverallState(state.OverallState)
	}

	probes := Probes{}
	probes.ARecords = v.lookupA(ctx, fqdn)
	for _, ip := range probes.ARecords {
		if v.hostingIPs[ip] {
			probes.DNSResolved = true
			break
		}
	}
	for _, txt := range v.lookupTXT(ctx, fqdn) {
		if strings.HasPrefix(txt, v.txtPrefix) {
			probes.TXTPresent = true
			break
		}
	}
	probes.HTTPStatus = v.probeHTTPS(ctx, fqdn)

	status := model.Status{
		Domain:       fqdn,
		Timestamp:    time.Now().UTC(),
		DNSResolved:  probes.DNSResolved,
		TXTPresent:   probes.TXTPresent,
		HTTPStatus:   probes.HTTPStatus,
		OverallState: Classify(probes, previous),
		RunID:        runID,
	}

	log.WithFields(logrus.Fields{
		"state": status.OverallState,
		"dns":   status.DNSResolved,
		"txt":   status.TXTPresent,
		"http":  status.HTTPStatus,
	}).Info("verified domain")

	if v.journal != nil {
		if err := v.journal.Append(status); err != nil {
			log.WithError(err).Error("failed to append to verification log")
		}
	}
	if err := v.store.SaveStatus(t.HostingSite, status); err != nil {
		log.WithError(err).Error("failed to save latest status")
	}

	return status
}

func (v *Verifier) resolveA(ctx context.Context, fqdn string) []string {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeA)

	reply, _, err := v.dnsClient.ExchangeContext(ctx, msg, v.resolver)
	if err != nil || reply == nil {
		return nil
	}

	var ips []string
	for _, answer := range reply.Answer {
		if a, ok := answer.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips
}

func (v *Verifier) resolveTXT(ctx context.Context, fqdn string) []string {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)

	reply, _, err := v.dnsClient.ExchangeContext(ctx, msg, v.resolver)
	if err != nil || reply == nil {
		return nil
	}

	var values []string
	for _, answer := range reply.Answer {
		if txt, ok := answer.(*dns.TXT); ok {
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values
}

// httpsStatus returns the status code of a GET against the domain, or 0
// when the probe times out or the connection is refused.
func (v *Verifier) httpsStatus(ctx context.Context, fqdn string) int {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, "https://"+fqdn, nil)
	if err != nil {
		return 0
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	return resp.StatusCode
}
