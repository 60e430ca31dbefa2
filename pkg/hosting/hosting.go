// Package hosting talks to the static-hosting provider that serves the
// fleet's sites and issues domain ownership verification tokens.
package hosting

import "context"

// AttachResult is the outcome of attaching a custom domain to a site.
// Either a verification token is issued or the provider reports the
// domain as already verified.
type AttachResult struct {
	Token           string
	AlreadyVerified bool
}

// DomainStatus is the provider's view of an attached domain.
type DomainStatus struct {
	Verified bool
	// SSL provisioning state as reported by the provider, e.g.
	// "PENDING" or "ACTIVE". Provisioning is polled, never driven.
	SSLState string
}

type Client interface {
	Attach(ctx context.Context, site, fqdn string) (AttachResult, error)
	Status(ctx context.Context, site, fqdn string) (DomainStatus, error)
}
