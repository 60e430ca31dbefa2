package db

import (
	"github.com/asoos/domain-sync/pkg/model"
)

type Database interface {
	GetState(fqdn string) (DomainState, error)
	ListStates() ([]DomainState, error)
	SaveStatus(site string, status model.Status) error
	GetToken(fqdn string) (string, error)
	SaveToken(fqdn, site, token string) error
	TouchReconciled(fqdn, site string) error
	RecordRun(run Run) error
}
