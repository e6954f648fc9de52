package main

import (
	"context"
	"fmt"

	"permitflow/internal/seed"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Seed the database with sample applications",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := context.Background()
		logger := logrus.StandardLogger()

		rt, err := newRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.close()

		logrus.Info("Seeding applications...")
		if err := seed.SeedApplications(ctx, rt.apps, logger, cfg.PermitFee); err != nil {
			return fmt.Errorf("failed to seed applications: %w", err)
		}

		logrus.Info("Applications seeded successfully")

		return nil
	},
}
