package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/asoos/domain-sync/pkg/model"
	"github.com/asoos/domain-sync/pkg/provider"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	restRequestTimeout = 30 * time.Second
	maxErrorBodyBytes  = 2048
)

type restClient struct {
	baseURL string
	key     string
	secret  string
	http    *http.Client
	backoff wait.Backoff
	log     *logrus.Entry
}

// NewREST builds a client for a registrar exposing record sets at
// /v1/domains/{root}/records/{type}/{name}, authenticated with an
// sso-key header. Missing credentials are a configuration error.
func NewREST(baseURL, key, secret string) (Client, error) {
	if key == "" || secret == "" {
		return nil, fmt.Errorf("registrar credentials are not set")
	}

	return &restClient{
		baseURL: baseURL,
		key:     key,
		secret:  secret,
		http: &http.Client{
			Timeout: restRequestTimeout,
		},
		backoff: provider.DefaultBackoff(),
		log:     logrus.WithField("component", "registrar"),
	}, nil
}

func (c *restClient) Records(ctx context.Context, root, name, rType string) ([]model.Record, error) {
	if err := model.IsValidRecordType(rType); err != nil {
		return nil, err
	}

	var records []model.Record
	err := provider.Retry(ctx, c.log, c.backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(root, rType, name), nil)
		if err != nil {
			return err
		}

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 404 means the record set does not exist, which is a normal
		// observation for the reconciler, not a failure.
		if resp.StatusCode == http.StatusNotFound {
			records = nil
			return nil
		}
		if resp.StatusCode >= 400 {
			return responseError(resp)
		}

		records = nil
		return json.NewDecoder(resp.Body).Decode(&records)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records for %s.%s: %w", rType, name, root, err)
	}

	return records, nil
}

func (c *restClient) SetRecords(ctx context.Context, root, name, rType string, records []model.Record) error {
	if err := model.IsValidRecordType(rType); err != nil {
		return err
	}

	if records == nil {
		records = []model.Record{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return err
	}

	return provider.Retry(ctx, c.log, c.backoff, func() error {
		// A write, once issued, runs to completion on its own deadline
		// even if the surrounding run is cancelled. Cancelling mid-PUT
		// could leave the registrar half-applied.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restRequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(wctx, http.MethodPut, c.recordURL(root, rType, name), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return responseError(resp)
		}
		io.Copy(io.Discard, resp.Body)
		return nil
	})
}

func (c *restClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", fmt.Sprintf("sso-key %s:%s", c.key, c.secret))
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

func (c *restClient) recordURL(root, rType, name string) string {
	return fmt.Sprintf("%s/v1/domains/%s/records/%s/%s", c.baseURL, root, rType, name)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &provider.Error{
		Status: resp.StatusCode,
		Body:   string(bytes.TrimSpace(body)),
	}
}
