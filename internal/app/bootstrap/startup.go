// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/afgang/gangmail/internal/app/store/assignments"
	"github.com/afgang/gangmail/internal/app/store/exchanges"
	"github.com/afgang/gangmail/internal/app/store/notifications"
	"github.com/afgang/gangmail/internal/app/store/participants"
	"github.com/afgang/gangmail/internal/app/system/delivery"
	"github.com/afgang/gangmail/internal/app/system/draw"
	"github.com/afgang/gangmail/internal/app/system/mailer"
	"github.com/afgang/gangmail/internal/app/system/notify"
	"github.com/afgang/gangmail/internal/app/system/tasks"
	"github.com/afgang/gangmail/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// runtime holds the long-lived components built during Startup so that
// BuildHandler and Shutdown can reach them.
type runtime struct {
	orchestrator *draw.Orchestrator
	delivery     *delivery.Manager
	dispatcher   *notify.Dispatcher
	runner       *workers.Runner
}

var rt runtime

// Startup builds the draw orchestrator, notification dispatcher, delivery
// manager, and background job runner, and starts the background work.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.GangMailMongoDatabase

	exchangeStore := exchanges.New(db)
	participantStore := participants.New(db)
	assignmentStore := assignments.New(db)
	notificationStore := notifications.New(db)

	sender := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	})

	rt.dispatcher = notify.New(notificationStore, sender, notify.Config{
		SiteName:    appCfg.SiteName,
		BaseURL:     appCfg.BaseURL,
		Workers:     appCfg.NotifyWorkers,
		MaxAttempts: appCfg.NotifyMaxAttempts,
		BackoffBase: appCfg.NotifyBackoffBase,
	}, logger)
	rt.dispatcher.Start()

	rt.orchestrator = &draw.Orchestrator{
		Exchanges:       exchangeStore,
		Participants:    participantStore,
		Assignments:     assignmentStore,
		Notifier:        rt.dispatcher,
		Log:             logger,
		DefaultLookback: appCfg.DrawLookbackWindow,
		MaxAttempts:     appCfg.DrawMaxAttempts,
	}

	rt.delivery = &delivery.Manager{
		Assignments: assignmentStore,
		Exchanges:   exchangeStore,
		Notifier:    rt.dispatcher,
		Log:         logger,
	}

	rt.runner = workers.NewRunner(logger,
		tasks.DueDrawJob(rt.orchestrator, logger, appCfg.DrawSweepInterval),
		tasks.ReconcileJob(assignmentStore, exchangeStore, notificationStore, rt.dispatcher, logger, appCfg.ReconcileInterval, appCfg.ReconcileGrace),
	)
	rt.runner.Start()

	logger.Info("background workers started",
		zap.Duration("draw_sweep_interval", appCfg.DrawSweepInterval),
		zap.Duration("reconcile_interval", appCfg.ReconcileInterval))

	return nil
}
