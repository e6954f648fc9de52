package main

import (
	"context"
	"fmt"
	"strings"

	"permitflow/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"
)

func loadConfig(cCtx *cli.Context) (*types.Config, error) {
	c := new(types.Config)
	if err := envconfig.Process(cCtx.String("env-prefix"), c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	c.StoreDriver = strings.ToLower(c.StoreDriver)
	c.BlobDriver = strings.ToLower(c.BlobDriver)

	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("set DATABASE_URL")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.BlobDriver {
	case "s3", "memory":
	default:
		return nil, fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}

	if c.Production() {
		if c.OtpPepper == "" {
			return nil, fmt.Errorf("set OTP_PEPPER")
		}
		if c.SigningKeyPEM == "" {
			return nil, fmt.Errorf("set SIGNING_KEY_PEM")
		}
		if c.StoreDriver == "memory" {
			return nil, fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 10
	}

	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 15
	}

	return c, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	config, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}
