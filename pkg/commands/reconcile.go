package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/model"
	"github.com/google/uuid"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type reconcileCommand struct{}

func (s *reconcileCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalHandler(context.Background())
	log := logrus.WithField("command", "reconcile")

	co, err := newCore(ctx, c, log)
	if err != nil {
		return err
	}
	defer co.close()

	targets, err := co.targets(c)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()

	runID := uuid.New().String()
	started := time.Now()
	results := co.rec.ReconcileAll(rctx, targets)

	failed := printReconcileResults(results)

	if err := co.database.RecordRun(db.Run{
		RunID:      runID,
		Job:        "reconcile",
		StartedAt:  started,
		FinishedAt: time.Now(),
		Succeeded:  len(results) - failed,
		Failed:     failed,
	}); err != nil {
		log.WithError(err).Warn("failed to record run")
	}

	fmt.Printf("reconciled %d domains, %d failed\n", len(results), failed)
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d domains failed to reconcile", failed, len(results)), 1)
	}
	return nil
}

func printReconcileResults(results []model.ReconcileResult) int {
	failed := 0
	for _, result := range results {
		switch {
		case result.Err != nil:
			failed++
			fmt.Printf("%-40s FAILED   %v\n", result.FQDN, result.Err)
		case result.Changed:
			fmt.Printf("%-40s CHANGED  %s\n", result.FQDN, strings.Join(result.Actions, ", "))
		default:
			fmt.Printf("%-40s OK       in sync\n", result.FQDN)
		}
	}
	return failed
}

func reconcileCommandDef() *cli.Command {
	cmd := reconcileCommand{}

	return &cli.Command{
		Name:   "reconcile",
		Usage:  "Drive registrar records toward the desired state",
		Action: cmd.Execute,
		Flags:  append(coreFlags(), GlobalFlags()...),
		Before: Before,
	}
}
