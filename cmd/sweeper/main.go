// Command sweeper runs the message lifecycle sweep exactly once. Point an
// external cron at it when SWEEP_CRON is off in the server.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"go-securechat/internal/config"
	"go-securechat/internal/db"
	"go-securechat/internal/sweeper"
)

func main() {
	cfg, err := config.LoadForSweeper()
	if err != nil {
		logrus.Fatalf("❌ Config: %v", err)
	}
	cfg.SetupLogging()

	if err := run(cfg.DSN); err != nil {
		logrus.WithError(err).Error("❌ Sweep finished with errors")
		os.Exit(1)
	}
}

func run(dsn string) error {
	database, err := db.NewDatabase(dsn)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := sweeper.New(sweeper.NewRepository(database.Conn)).Run(ctx)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"expired":      report.Expired,
		"soft_deleted": report.SoftDeleted,
	}).Info("✅ Sweep done")
	return nil
}
