package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/model"
	"github.com/google/uuid"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type verifyCommand struct{}

func (s *verifyCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalHandler(context.Background())
	log := logrus.WithField("command", "verify")

	co, err := newCore(ctx, c, log)
	if err != nil {
		return err
	}
	defer co.close()

	targets, err := co.targets(c)
	if err != nil {
		return err
	}

	vctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()

	runID := uuid.New().String()
	started := time.Now()
	statuses := co.ver.VerifyAll(vctx, targets, runID)

	for _, status := range statuses {
		fmt.Printf("%-40s %-22s dns=%v txt=%v http=%d\n",
			status.Domain, status.OverallState, status.DNSResolved, status.TXTPresent, status.HTTPStatus)
	}

	// pending states are normal outcomes; only domains the run could
	// not probe at all count as failures
	skipped := len(targets) - len(statuses)
	degraded := 0
	for _, status := range statuses {
		if status.OverallState == model.StateDegraded {
			degraded++
		}
	}

	if err := co.database.RecordRun(db.Run{
		RunID:      runID,
		Job:        "verify",
		StartedAt:  started,
		FinishedAt: time.Now(),
		Succeeded:  len(statuses),
		Failed:     skipped,
	}); err != nil {
		log.WithError(err).Warn("failed to record run")
	}

	fmt.Printf("verified %d domains, %d degraded, %d skipped\n", len(statuses), degraded, skipped)
	if skipped > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d domains were not verified before the run timed out", skipped, len(targets)), 1)
	}
	return nil
}

func verifyCommandDef() *cli.Command {
	cmd := verifyCommand{}

	return &cli.Command{
		Name:   "verify",
		Usage:  "Probe DNS, verification TXT, and HTTPS state for each domain",
		Action: cmd.Execute,
		Flags:  append(coreFlags(), GlobalFlags()...),
		Before: Before,
	}
}
