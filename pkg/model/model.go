package model

import (
	"fmt"
	"time"
)

const (
	RecordTypeA     = "A"
	RecordTypeCname = "CNAME"
	RecordTypeTxt   = "TXT"
)

func IsValidRecordType(rt string) error {
	switch rt {
	case RecordTypeA, RecordTypeCname, RecordTypeTxt:
		return nil
	}

	return fmt.Errorf("invalid record type")
}

// Record is a single registrar record as observed or desired.
type Record struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	Data string `json:"data,omitempty"`
	TTL  int    `json:"ttl,omitempty"`
}

// Target is one desired binding from the registry: a (root, subdomain)
// pair served by exactly one hosting site.
type Target struct {
	RootDomain  string `json:"rootDomain"`
	Subdomain   string `json:"subdomain,omitempty"`
	HostingSite string `json:"hostingSite"`
}

// FQDN returns the fully qualified name for the target. An empty
// subdomain means the apex.
func (t Target) FQDN() string {
	if t.Subdomain == "" {
		return t.RootDomain
	}
	return t.Subdomain + "." + t.RootDomain
}

// RecordName is the registrar-side label for the target. Registrars use
// "@" for apex records.
func (t Target) RecordName() string {
	if t.Subdomain == "" {
		return "@"
	}
	return t.Subdomain
}

type OverallState string

const (
	StateUnconfigured        OverallState = "UNCONFIGURED"
	StateDNSPending          OverallState = "DNS_PENDING"
	StateVerificationPending OverallState = "VERIFICATION_PENDING"
	StateSSLPending          OverallState = "SSL_PENDING"
	StateLive                OverallState = "LIVE"
	StateDegraded            OverallState = "DEGRADED"
)

// Status is the derived outcome of one verification pass for one domain.
// It is recomputed every pass and only ever logged, never treated as a
// source of truth.
type Status struct {
	Domain       string       `json:"domain"`
	Timestamp    time.Time    `json:"timestamp"`
	DNSResolved  bool         `json:"dns"`
	TXTPresent   bool         `json:"txt"`
	HTTPStatus   int          `json:"http"`
	OverallState OverallState `json:"overallState"`
	RunID        string       `json:"runId,omitempty"`
}

// ReconcileResult reports what the reconciler did for one target.
type ReconcileResult struct {
	FQDN    string   `json:"fqdn"`
	Changed bool     `json:"changed"`
	Actions []string `json:"actions,omitempty"`
	Err     error    `json:"-"`
}
