package db

import (
	"context"
	"fmt"
	"time"

	"github.com/asoos/domain-sync/pkg/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type database struct {
	db *gorm.DB
}

// New creates a new database connection
func New(ctx context.Context, dialect string, dsn string, config *gorm.Config) (Database, error) {
	if config == nil {
		config = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}

	var db *gorm.DB
	var err error

	if dialect == "sqlite" {
		db, err = gorm.Open(sqlite.Open(dsn), config)
	} else if dialect == "mysql" {
		db, err = gorm.Open(mysql.Open(dsn), config)
	} else {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	if err != nil {
		return nil, err
	}

	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&DomainState{},
		&Run{},
	); err != nil {
		return nil, err
	}

	d := &database{
		db: db,
	}
	return d, nil
}

func (d *database) GetState(fqdn string) (DomainState, error) {
	state := DomainState{}
	sql := d.db.Where("fqdn = ?", fqdn).Limit(1).Find(&state)
	return state, sql.Error
}

func (d *database) ListStates() ([]DomainState, error) {
	var states []DomainState
	sql := d.db.Order("fqdn").Find(&states)
	return states, sql.Error
}

func (d *database) SaveStatus(site string, status model.Status) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		state, err := d.getStateTx(tx, status.Domain)
		if err != nil {
			return err
		}

		state.FQDN = status.Domain
		state.HostingSite = site
		state.OverallState = string(status.OverallState)
		state.DNSResolved = status.DNSResolved
		state.TXTPresent = status.TXTPresent
		state.HTTPStatus = status.HTTPStatus
		state.LastVerified = status.Timestamp

		if state.ID == 0 {
			sql := tx.Create(&state)
			return sql.Error
		}
		sql := tx.Save(&state)
		return sql.Error
	})
}

func (d *database) GetToken(fqdn string) (string, error) {
	state, err := d.GetState(fqdn)
	if err != nil {
		return "", err
	}
	return state.VerificationToken, nil
}

func (d *database) SaveToken(fqdn, site, token string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		state, err := d.getStateTx(tx, fqdn)
		if err != nil {
			return err
		}

		state.FQDN = fqdn
		state.HostingSite = site
		state.VerificationToken = token

		if state.ID == 0 {
			sql := tx.Create(&state)
			return sql.Error
		}
		sql := tx.Save(&state)
		return sql.Error
	})
}

func (d *database) TouchReconciled(fqdn, site string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		state, err := d.getStateTx(tx, fqdn)
		if err != nil {
			return err
		}

		state.FQDN = fqdn
		state.HostingSite = site
		state.LastReconciled = time.Now()

		if state.ID == 0 {
			sql := tx.Create(&state)
			return sql.Error
		}
		sql := tx.Save(&state)
		return sql.Error
	})
}

func (d *database) RecordRun(run Run) error {
	sql := d.db.Create(&run)
	return sql.Error
}

func (d *database) getStateTx(tx *gorm.DB, fqdn string) (DomainState, error) {
	state := DomainState{}
	sql := tx.Where("fqdn = ?", fqdn).Limit(1).Find(&state)
	return state, sql.Error
}
