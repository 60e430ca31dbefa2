package db

import (
	"time"
)

// DomainState is the latest known state for one target. It is a cache
// of the last verification pass plus the durable verification token;
// the append-only statuslog is the full history.
type DomainState struct {
	ID                uint   `gorm:"primarykey"`
	FQDN              string `gorm:"uniqueIndex"`
	HostingSite       string
	OverallState      string
	DNSResolved       bool
	TXTPresent        bool
	HTTPStatus        int
	VerificationToken string
	LastReconciled    time.Time
	LastVerified      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Run is one scheduler-driven (or on-demand) batch run.
type Run struct {
	ID         uint   `gorm:"primarykey"`
	RunID      string `gorm:"uniqueIndex"`
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Failed     int
}
