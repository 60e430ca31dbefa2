package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/hosting"
	"github.com/asoos/domain-sync/pkg/model"
	"github.com/asoos/domain-sync/pkg/reconciler"
	"github.com/asoos/domain-sync/pkg/registrar"
	"github.com/asoos/domain-sync/pkg/registry"
	"github.com/asoos/domain-sync/pkg/statuslog"
	"github.com/asoos/domain-sync/pkg/verifier"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

const defaultRunTimeout = 5 * time.Minute

func coreFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "registry",
			Usage:   "Path to the desired-state registry file",
			EnvVars: []string{"DOMAIN_SYNC_REGISTRY", "REGISTRY_FILE"},
			Value:   "domains.yaml",
		},
		&cli.StringFlag{
			Name:    "sql-dialect",
			Usage:   "The type of sql to use, sqlite or mysql",
			EnvVars: []string{"DOMAIN_SYNC_SQL_DIALECT", "SQL_DIALECT"},
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sql-dsn",
			Usage:   "The DSN to use to connect to",
			EnvVars: []string{"DOMAIN_SYNC_SQL_DSN", "SQL_DSN"},
			Value:   "file:domain-sync.sqlite?_pragma=foreign_keys(1)",
		},
		&cli.StringFlag{
			Name:    "status-log",
			Usage:   "Path of the append-only verification log",
			EnvVars: []string{"DOMAIN_SYNC_STATUS_LOG"},
			Value:   "verification.log",
		},
		&cli.StringFlag{
			Name:    "registrar-url",
			Usage:   "Base URL of the registrar REST API",
			EnvVars: []string{"REGISTRAR_API_URL"},
			Value:   "https://api.godaddy.com",
		},
		&cli.StringFlag{
			Name:    "registrar-key",
			Usage:   "Registrar API key",
			EnvVars: []string{"REGISTRAR_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "registrar-secret",
			Usage:   "Registrar API secret",
			EnvVars: []string{"REGISTRAR_API_SECRET"},
		},
		&cli.StringFlag{
			Name:    "hosting-url",
			Usage:   "Base URL of the hosting provider API",
			EnvVars: []string{"HOSTING_API_URL"},
			Value:   "https://firebasehosting.googleapis.com",
		},
		&cli.StringFlag{
			Name:    "hosting-token",
			Usage:   "Hosting provider access token",
			EnvVars: []string{"HOSTING_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "resolver",
			Usage:   "DNS resolver used for verification probes, host:port",
			EnvVars: []string{"DOMAIN_SYNC_RESOLVER"},
			Value:   verifier.DefaultResolver,
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Concurrent domains per batch",
			EnvVars: []string{"DOMAIN_SYNC_WORKERS"},
			Value:   reconciler.DefaultWorkers,
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Global timeout for one batch run",
			EnvVars: []string{"DOMAIN_SYNC_RUN_TIMEOUT"},
			Value:   defaultRunTimeout,
		},
		&cli.StringFlag{
			Name:    "domain",
			Usage:   "Limit the operation to a single FQDN from the registry",
			Aliases: []string{"d"},
		},
	}
}

// core wires the registry, database, provider clients, reconciler, and
// verifier together. Any failure here is a configuration error: it
// happens before the first domain is touched.
type core struct {
	registry *registry.Registry
	database db.Database
	rec      *reconciler.Reconciler
	ver      *verifier.Verifier
	journal  *statuslog.Log
}

func newCore(ctx context.Context, c *cli.Context, log *logrus.Entry) (*core, error) {
	reg, err := registry.Load(c.String("registry"))
	if err != nil {
		return nil, err
	}

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return nil, err
	}

	var regClient registrar.Client
	switch reg.Registrar {
	case registry.BackendRoute53:
		regClient, err = registrar.NewRoute53(reg.RootDomains())
	default:
		regClient, err = registrar.NewREST(c.String("registrar-url"),
			c.String("registrar-key"), c.String("registrar-secret"))
	}
	if err != nil {
		return nil, err
	}

	hostClient, err := hosting.NewFirebase(c.String("hosting-url"), c.String("hosting-token"))
	if err != nil {
		return nil, err
	}

	journal, err := statuslog.Open(c.String("status-log"))
	if err != nil {
		return nil, err
	}

	workers := c.Int("workers")

	return &core{
		registry: reg,
		database: database,
		journal:  journal,
		rec: reconciler.New(regClient, hostClient, database,
			reg.HostingIPs, reg.TxtPrefix, reg.TTL, workers, log),
		ver: verifier.New(c.String("resolver"), reg.HostingIPs, reg.TxtPrefix,
			workers, database, journal, log),
	}, nil
}

func (co *core) close() {
	if co.journal != nil {
		_ = co.journal.Close()
	}
}

// targets resolves the batch for this invocation: the whole registry,
// or the single FQDN named by --domain.
func (co *core) targets(c *cli.Context) ([]model.Target, error) {
	fqdn := c.String("domain")
	if fqdn == "" {
		return co.registry.Targets(), nil
	}

	t, ok := co.registry.Target(fqdn)
	if !ok {
		return nil, fmt.Errorf("domain %q is not in the registry", fqdn)
	}
	return []model.Target{t}, nil
}
