package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/asoos/domain-sync/pkg/apiserver"
	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/model"
	"github.com/asoos/domain-sync/pkg/scheduler"
	"github.com/asoos/domain-sync/pkg/version"
	"github.com/google/uuid"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type scheduleCommand struct{}

func (s *scheduleCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalHandler(context.Background())
	log := logrus.WithField("command", "schedule")

	log.Infof("version: %v", version.Get())

	co, err := newCore(ctx, c, log)
	if err != nil {
		return err
	}
	defer co.close()

	timeout := c.Duration("timeout")
	reconcileJob := scheduler.NewJob("reconcile", c.Duration("reconcile-interval"), timeout, co.reconcileRun(log))
	verifyJob := scheduler.NewJob("verify", c.Duration("verify-interval"), timeout, co.verifyRun(log))

	if c.Bool("run-now") {
		// one immediate pass of both jobs, then exit
		reconcileJob.TryRun(ctx)
		verifyJob.TryRun(ctx)
		for _, job := range []*scheduler.Job{reconcileJob, verifyJob} {
			if state, _, err := job.LastOutcome(); state == scheduler.StateFailed {
				return cli.Exit(fmt.Sprintf("%s run failed: %v", job.Name(), err), 1)
			}
		}
		return nil
	}

	sched := scheduler.New(log, reconcileJob, verifyJob)

	server := apiserver.NewAPIServer(ctx, log, c.Int("port"))
	go func() {
		if err := server.Start(co.database, sched, c.String("admin-token-hash")); err != nil {
			log.WithError(err).Error("api server stopped")
		}
	}()

	sched.Start(ctx)
	return nil
}

// reconcileRun is the scheduled batch: reconcile the whole registry,
// record the run, and fail the job if any domain failed.
func (co *core) reconcileRun(log *logrus.Entry) scheduler.RunFunc {
	return func(ctx context.Context) error {
		runID := uuid.New().String()
		started := time.Now()

		results := co.rec.ReconcileAll(ctx, co.registry.Targets())

		failed := 0
		for _, result := range results {
			if result.Err != nil {
				failed++
				log.WithField("fqdn", result.FQDN).WithError(result.Err).Error("domain failed to reconcile")
			}
		}

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

		if failed > 0 {
			return fmt.Errorf("%d of %d domains failed to reconcile", failed, len(results))
		}
		return nil
	}
}

func (co *core) verifyRun(log *logrus.Entry) scheduler.RunFunc {
	return func(ctx context.Context) error {
		runID := uuid.New().String()
		started := time.Now()

		targets := co.registry.Targets()
		statuses := co.ver.VerifyAll(ctx, targets, runID)

		degraded := 0
		for _, status := range statuses {
			if status.OverallState == model.StateDegraded {
				degraded++
			}
		}
		if degraded > 0 {
			log.Warnf("%d domains are degraded", degraded)
		}

		skipped := len(targets) - len(statuses)
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

		if skipped > 0 {
			return fmt.Errorf("%d of %d domains were not verified before the run timed out", skipped, len(targets))
		}
		return nil
	}
}

func scheduleCommandDef() *cli.Command {
	cmd := scheduleCommand{}

	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:    "reconcile-interval",
			Usage:   "Cadence of the reconcile job",
			EnvVars: []string{"DOMAIN_SYNC_RECONCILE_INTERVAL"},
			Value:   5 * time.Minute,
		},
		&cli.DurationFlag{
			Name:    "verify-interval",
			Usage:   "Cadence of the verify job",
			EnvVars: []string{"DOMAIN_SYNC_VERIFY_INTERVAL"},
			Value:   10 * time.Minute,
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the admin HTTP server",
			EnvVars: []string{"DOMAIN_SYNC_PORT", "PORT"},
			Value:   4316,
		},
		&cli.StringFlag{
			Name:    "admin-token-hash",
			Usage:   "bcrypt hash of the admin API token (mint one with the token command)",
			EnvVars: []string{"DOMAIN_SYNC_ADMIN_TOKEN_HASH"},
		},
		&cli.BoolFlag{
			Name:  "run-now",
			Usage: "Run both jobs once immediately and exit",
		},
	}

	return &cli.Command{
		Name:   "schedule",
		Usage:  "Run reconcile and verify on a cadence, with an admin API",
		Action: cmd.Execute,
		Flags:  append(append(flags, coreFlags()...), GlobalFlags()...),
		Before: Before,
	}
}
