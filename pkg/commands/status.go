package commands

import (
	"context"
	"fmt"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

type statusCommand struct{}

// Execute prints the latest recorded state per domain. It only reads
// the database; nothing is probed.
func (s *statusCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalHandler(context.Background())

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	fqdn := c.String("domain")
	var states []db.DomainState
	if fqdn != "" {
		state, err := database.GetState(fqdn)
		if err != nil {
			return err
		}
		if state.ID == 0 {
			return cli.Exit(fmt.Sprintf("no status recorded for %s", fqdn), 1)
		}
		states = append(states, state)
	} else {
		states, err = database.ListStates()
		if err != nil {
			return err
		}
	}

	if len(states) == 0 {
		logrus.Info("no domain statuses recorded yet, run verify first")
		return nil
	}

	for _, state := range states {
		fmt.Printf("%-40s %-22s site=%s dns=%v txt=%v http=%d verified=%s\n",
			state.FQDN, state.OverallState, state.HostingSite,
			state.DNSResolved, state.TXTPresent, state.HTTPStatus,
			state.LastVerified.Format("2006-01-02T15:04:05Z07:00"))
	}

	return nil
}

func statusCommandDef() *cli.Command {
	cmd := statusCommand{}

	return &cli.Command{
		Name:   "status",
		Usage:  "Show the latest recorded state per domain",
		Action: cmd.Execute,
		Flags:  append(coreFlags(), GlobalFlags()...),
		Before: Before,
	}
}
