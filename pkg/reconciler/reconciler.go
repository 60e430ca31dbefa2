// Package reconciler diffs each target's desired records against the
// registrar and issues the minimal set of corrective writes.
package reconciler

import (
	"context"
	"fmt"
	"sync"

	"github.com/asoos/domain-sync/pkg/hosting"
	"github.com/asoos/domain-sync/pkg/model"
	"github.com/asoos/domain-sync/pkg/registrar"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const DefaultWorkers = 4

// TokenStore persists verification tokens across runs. The hosting
// provider only hands a token out once, on attach.
type TokenStore interface {
	GetToken(fqdn string) (string, error)
	SaveToken(fqdn, site, token string) error
	TouchReconciled(fqdn, site string) error
}

type Reconciler struct {
	registrar  registrar.Client
	hosting    hosting.Client
	tokens     TokenStore
	hostingIPs []string
	txtPrefix  string
	ttl        int
	workers    int
	log        *logrus.Entry
}

func New(reg registrar.Client, host hosting.Client, tokens TokenStore, hostingIPs []string, txtPrefix string, ttl, workers int, log *logrus.Entry) *Reconciler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Reconciler{
		registrar:  reg,
		hosting:    host,
		tokens:     tokens,
		hostingIPs: hostingIPs,
		txtPrefix:  txtPrefix,
		ttl:        ttl,
		workers:    workers,
		log:        log,
	}
}

// ReconcileAll processes every target with bounded parallelism. Each
// target is an independent unit of work: one failure never blocks the
// rest, and cancellation is honored only at target boundaries.
func (r *Reconciler) ReconcileAll(ctx context.Context, targets []model.Target) []model.ReconcileResult {
	results := make([]model.ReconcileResult, len(targets))

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			results[i] = model.ReconcileResult{
				FQDN: t.FQDN(),
				Err:  fmt.Errorf("run cancelled before reconciling %s: %w", t.FQDN(), err),
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t model.Target) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.Reconcile(ctx, t)
		}(i, t)
	}
	wg.Wait()

	return results
}

// Reconcile drives one target toward its desired records. It is
// idempotent: a second run against unchanged registrar state issues no
// writes.
func (r *Reconciler) Reconcile(ctx context.Context, t model.Target) model.ReconcileResult {
	log := r.log.WithField("fqdn", t.FQDN())
	result := model.ReconcileResult{FQDN: t.FQDN()}
	name := t.RecordName()

	// A and CNAME are mutually exclusive for a name: any CNAME has to
	// go before the A record can be written.
	cnames, err := r.registrar.Records(ctx, t.RootDomain, name, model.RecordTypeCname)
	if err != nil {
		result.Err = err
		return result
	}
	if len(cnames) > 0 {
		if err := r.registrar.SetRecords(ctx, t.RootDomain, name, model.RecordTypeCname, nil); err != nil {
			result.Err = err
			return result
		}
		result.Changed = true
		result.Actions = append(result.Actions, "deleted conflicting CNAME")
		log.WithField("cname", cnames[0].Data).Info("deleted conflicting CNAME record")
	}

	aRecords, err := r.registrar.Records(ctx, t.RootDomain, name, model.RecordTypeA)
	if err != nil {
		result.Err = err
		return result
	}
	if !sameRecordSet(aRecords, r.hostingIPs) {
		desired := make([]model.Record, 0, len(r.hostingIPs))
		for _, ip := range r.hostingIPs {
			desired = append(desired, model.Record{
				Name: name,
				Type: model.RecordTypeA,
				Data: ip,
				TTL:  r.ttl,
			})
		}
		if err := r.registrar.SetRecords(ctx, t.RootDomain, name, model.RecordTypeA, desired); err != nil {
			result.Err = err
			return result
		}
		result.Changed = true
		result.Actions = append(result.Actions, "upserted A record")
		log.WithField("ips", r.hostingIPs).Info("upserted A record")
	}

	if err := r.ensureVerificationTXT(ctx, t, &result, log); err != nil {
		result.Err = err
		return result
	}

	if err := r.tokens.TouchReconciled(t.FQDN(), t.HostingSite); err != nil {
		log.WithError(err).Warn("failed to record reconcile time")
	}

	return result
}

// ensureVerificationTXT makes sure the hosting provider's ownership
// token is present as a TXT record. The token is fetched from the
// store, or issued by attaching the domain on first contact.
func (r *Reconciler) ensureVerificationTXT(ctx context.Context, t model.Target, result *model.ReconcileResult, log *logrus.Entry) error {
	token, err := r.tokens.GetToken(t.FQDN())
	if err != nil {
		return err
	}

	fresh := false
	if token == "" {
		fresh = true
		attach, err := r.hosting.Attach(ctx, t.HostingSite, t.FQDN())
		if err != nil {
			return err
		}
		if attach.AlreadyVerified {
			log.Debug("domain already verified, no TXT record needed")
			return nil
		}
		token = attach.Token
		if token == "" {
			return fmt.Errorf("hosting provider issued no verification token for %s", t.FQDN())
		}
		if err := r.tokens.SaveToken(t.FQDN(), t.HostingSite, token); err != nil {
			return err
		}
		log.Info("verification token issued")
	}

	want := r.txtPrefix + token
	txts, err := r.registrar.Records(ctx, t.RootDomain, t.RecordName(), model.RecordTypeTxt)
	if err != nil {
		return err
	}
	for _, rec := range txts {
		if rec.Data == want {
			return nil
		}
	}

	// The record is missing for a token issued on an earlier run.
	// Providers commonly allow TXT cleanup once ownership is confirmed;
	// ask before resurrecting it.
	if !fresh {
		status, err := r.hosting.Status(ctx, t.HostingSite, t.FQDN())
		if err != nil {
			log.WithError(err).Warn("failed to read hosting domain status")
		} else if status.Verified {
			log.Debug("ownership already confirmed, not rewriting the TXT record")
			return nil
		}
	}

	// PUT replaces the whole TXT set, so carry unrelated values along.
	desired := make([]model.Record, 0, len(txts)+1)
	for _, rec := range txts {
		desired = append(desired, rec)
	}
	desired = append(desired, model.Record{
		Name: t.RecordName(),
		Type: model.RecordTypeTxt,
		Data: want,
		TTL:  r.ttl,
	})
	if err := r.registrar.SetRecords(ctx, t.RootDomain, t.RecordName(), model.RecordTypeTxt, desired); err != nil {
		return err
	}
	result.Changed = true
	result.Actions = append(result.Actions, "upserted verification TXT record")
	log.Info("upserted verification TXT record")

	return nil
}

// sameRecordSet reports whether the observed A records carry exactly
// the expected IP set, ignoring order and duplicates.
func sameRecordSet(records []model.Record, ips []string) bool {
	got := make(map[string]bool, len(records))
	for _, rec := range records {
		got[rec.Data] = true
	}
	want := make(map[string]bool, len(ips))
	for _, ip := range ips {
		want[ip] = true
	}
	return maps.Equal(got, want)
}
