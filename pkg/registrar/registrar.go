// Package registrar talks to the DNS registrar that owns the fleet's
// zones. Two backends exist: the path-per-record REST API and Route53.
package registrar

import (
	"context"

	"github.com/asoos/domain-sync/pkg/model"
)

// Client is the record CRUD surface the reconciler needs.
//
// Records returns the live records for (root, name, type); an absent
// record set is an empty slice, not an error. SetRecords replaces the
// full record set for (root, name, type); an empty slice deletes it.
type Client interface {
	Records(ctx context.Context, root, name, rType string) ([]model.Record, error)
	SetRecords(ctx context.Context, root, name, rType string, records []model.Record) error
}
