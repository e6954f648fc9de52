package main

import (
	"context"
	"errors"
	"fmt"

	"permitflow/pkg/types"

	"github.com/k0kubun/pp/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "Pretty-print an application by id or application number",
	ArgsUsage: "<id|application-number>",
	Action: func(c *cli.Context) error {
		key := c.Args().First()
		if key == "" {
			return fmt.Errorf("an application id or number is required")
		}

		cfg, err := loadConfig(c)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := context.Background()

		rt, err := newRuntime(ctx, cfg, logrus.StandardLogger())
		if err != nil {
			return err
		}
		defer rt.close()

		app, err := rt.apps.Application(ctx, key)
		if errors.Is(err, types.ErrApplicationNotFound) {
			app, err = rt.apps.ApplicationByNumber(ctx, key)
		}
		if err != nil {
			return err
		}

		pp.Println(types.NewApplicationView(app))
		return nil
	},
}
