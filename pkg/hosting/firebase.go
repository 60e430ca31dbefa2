package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/asoos/domain-sync/pkg/provider"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	firebaseRequestTimeout = 30 * time.Second
	sslStateActive         = "ACTIVE"
)

type firebaseClient struct {
	baseURL string
	token   string
	http    *http.Client
	backoff wait.Backoff
	log     *logrus.Entry
}

// NewFirebase builds a client for a Firebase-hosting style custom
// domain API. A missing access token is a configuration error.
func NewFirebase(baseURL, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("hosting API token is not set")
	}

	return &firebaseClient{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: firebaseRequestTimeout,
		},
		backoff: provider.DefaultBackoff(),
		log:     logrus.WithField("component", "hosting"),
	}, nil
}

type domainResource struct {
	DomainName   string `json:"domainName,omitempty"`
	Status       string `json:"status,omitempty"`
	Provisioning struct {
		DNSStatus  string `json:"dnsStatus,omitempty"`
		CertStatus string `json:"certStatus,omitempty"`
		// ownership verification token the provider expects to find in
		// a TXT record
		ExpectedTXT string `json:"expectedTxt,omitempty"`
	} `json:"provisioning,omitempty"`
}

func (c *firebaseClient) Attach(ctx context.Context, site, fqdn string) (AttachResult, error) {
	body, err := json.Marshal(domainResource{DomainName: fqdn})
	if err != nil {
		return AttachResult{}, err
	}

	var out AttachResult
	err = provider.Retry(ctx, c.log, c.backoff, func() error {
		url := fmt.Sprintf("%s/v1beta1/sites/%s/domains", c.baseURL, site)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 409 means the domain is already attached to the site. Fall
		// through to a status read to pick up the token or the
		// verified flag.
		if resp.StatusCode == http.StatusConflict {
			io.Copy(io.Discard, resp.Body)
			return c.readDomain(ctx, site, fqdn, &out)
		}
		if resp.StatusCode >= 400 {
			return responseError(resp)
		}

		var d domainResource
		if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
			return err
		}
		out = attachResultFrom(d)
		return nil
	})
	if err != nil {
		return AttachResult{}, fmt.Errorf("failed to attach %s to site %s: %w", fqdn, site, err)
	}

	return out, nil
}

func (c *firebaseClient) Status(ctx context.Context, site, fqdn string) (DomainStatus, error) {
	var status DomainStatus
	err := provider.Retry(ctx, c.log, c.backoff, func() error {
		var d domainResource
		if err := c.getDomain(ctx, site, fqdn, &d); err != nil {
			return err
		}
		status = DomainStatus{
			Verified: isVerified(d),
			SSLState: d.Provisioning.CertStatus,
		}
		return nil
	})
	if err != nil {
		return DomainStatus{}, fmt.Errorf("failed to read status of %s on site %s: %w", fqdn, site, err)
	}

	return status, nil
}

func (c *firebaseClient) readDomain(ctx context.Context, site, fqdn string, out *AttachResult) error {
	var d domainResource
	if err := c.getDomain(ctx, site, fqdn, &d); err != nil {
		return err
	}
	*out = attachResultFrom(d)
	return nil
}

func (c *firebaseClient) getDomain(ctx context.Context, site, fqdn string, d *domainResource) error {
	url := fmt.Sprintf("%s/v1beta1/sites/%s/domains/%s", c.baseURL, site, fqdn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(d)
}

func (c *firebaseClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

func attachResultFrom(d domainResource) AttachResult {
	if isVerified(d) {
		return AttachResult{AlreadyVerified: true}
	}
	return AttachResult{Token: d.Provisioning.ExpectedTXT}
}

func isVerified(d domainResource) bool {
	return strings.EqualFold(d.Status, "DOMAIN_ACTIVE") ||
		strings.EqualFold(d.Provisioning.DNSStatus, sslStateActive)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &provider.Error{
		Status: resp.StatusCode,
		Body:   string(bytes.TrimSpace(body)),
	}
}
