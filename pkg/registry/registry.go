// Package registry loads and validates the desired-state registry: the
// declarative list of domains the engine drives toward their hosting
// sites.
package registry

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/asoos/domain-sync/pkg/model"
	"gopkg.in/yaml.v3"
)

const (
	BackendREST    = "rest"
	BackendRoute53 = "route53"

	defaultTxtPrefix = "firebase="
	defaultTTL       = 600
)

// File is the YAML schema of the registry file.
type File struct {
	// Registrar backend: "rest" (default) or "route53".
	Registrar string `yaml:"registrar"`
	// HostingIPs is the hosting provider's published IP set that every
	// A record must point at. The binding strategy is A-record-only;
	// the operator supplies the IPs, the engine never guesses.
	HostingIPs []string `yaml:"hostingIPs"`
	// TxtPrefix prefixes verification tokens in TXT records.
	TxtPrefix string   `yaml:"txtPrefix"`
	TTL       int      `yaml:"ttl"`
	Domains   []Domain `yaml:"domains"`
}

type Domain struct {
	RootDomain string      `yaml:"rootDomain"`
	Subdomains []Subdomain `yaml:"subdomains"`
}

type Subdomain struct {
	// Name is the subdomain label; empty means the apex.
	Name        string `yaml:"name"`
	HostingSite string `yaml:"hostingSite"`
}

// Registry is the validated, flattened desired state.
type Registry struct {
	Registrar  string
	HostingIPs []string
	TxtPrefix  string
	TTL        int

	targets []model.Target
	byFQDN  map[string]model.Target
}

// Load reads, parses, and validates a registry file. Any problem here
// is a configuration error: the caller must abort before touching any
// domain.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}

	return New(f)
}

// New validates a parsed registry file and applies defaults.
func New(f File) (*Registry, error) {
	r := &Registry{
		Registrar:  f.Registrar,
		HostingIPs: f.HostingIPs,
		TxtPrefix:  f.TxtPrefix,
		TTL:        f.TTL,
		byFQDN:     make(map[string]model.Target),
	}

	if r.Registrar == "" {
		r.Registrar = BackendREST
	}
	if r.Registrar != BackendREST && r.Registrar != BackendRoute53 {
		return nil, fmt.Errorf("unknown registrar backend %q", r.Registrar)
	}
	if r.TxtPrefix == "" {
		r.TxtPrefix = defaultTxtPrefix
	}
	if r.TTL == 0 {
		r.TTL = defaultTTL
	}
	if r.TTL < 0 {
		return nil, fmt.Errorf("ttl must be positive, got %d", r.TTL)
	}

	if len(r.HostingIPs) == 0 {
		return nil, fmt.Errorf("hostingIPs must not be empty")
	}
	for _, ip := range r.HostingIPs {
		parsed := net.ParseIP(ip)
		if parsed == nil || strings.Contains(ip, ":") {
			return nil, fmt.Errorf("hosting IP %q is not a valid IPv4 address", ip)
		}
	}

	if len(f.Domains) == 0 {
		return nil, fmt.Errorf("registry contains no domains")
	}
	for _, d := range f.Domains {
		if d.RootDomain == "" {
			return nil, fmt.Errorf("registry entry with empty rootDomain")
		}
		if len(d.Subdomains) == 0 {
			return nil, fmt.Errorf("root domain %q has no subdomains", d.RootDomain)
		}
		for _, s := range d.Subdomains {
			if s.HostingSite == "" {
				return nil, fmt.Errorf("subdomain %q of %q has no hostingSite", s.Name, d.RootDomain)
			}
			t := model.Target{
				RootDomain:  d.RootDomain,
				Subdomain:   s.Name,
				HostingSite: s.HostingSite,
			}
			// exactly one hosting site per (root, subdomain) pair
			if prev, ok := r.byFQDN[t.FQDN()]; ok {
				return nil, fmt.Errorf("duplicate target %q (sites %q and %q)",
					t.FQDN(), prev.HostingSite, s.HostingSite)
			}
			r.byFQDN[t.FQDN()] = t
			r.targets = append(r.targets, t)
		}
	}

	return r, nil
}

// Targets returns every desired binding, in file order.
func (r *Registry) Targets() []model.Target {
	return r.targets
}

// Target looks up a binding by its fully qualified name.
func (r *Registry) Target(fqdn string) (model.Target, bool) {
	t, ok := r.byFQDN[fqdn]
	return t, ok
}

// RootDomains returns the distinct root domains, for backends that need
// to resolve zones up front.
func (r *Registry) RootDomains() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, t := range r.targets {
		if !seen[t.RootDomain] {
			seen[t.RootDomain] = true
			roots = append(roots, t.RootDomain)
		}
	}
	return roots
}
