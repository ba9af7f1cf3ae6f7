/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/leadforge/siteapi/internal/app"
	"github.com/leadforge/siteapi/log"
)

const flagConfig = "config"

func newCommand() *cli.Command {
	// Root flags are inherited by the subcommands.
	configFlag := &cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "path to the YAML or JSON config file, only defaults and SITEAPI_* environment variables are used if empty",
		Sources: cli.NewValueSourceChain(
			cli.EnvVar(app.EnvVarsPrefix + "_CONFIG"),
		),
	}
	return &cli.Command{
		Name:    "siteapi",
		Usage:   "API of the marketing site: upstream lookups, contact form and response cache",
		Version: versionString(),
		Flags:   []cli.Flag{configFlag},
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server (default)",
				Action: runServe,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the config, then print the effective values",
				Action: runCheckConfig,
			},
		},
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := app.LoadConfig(cmd.String(flagConfig))
	if err != nil {
		return err
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	application, err := app.New(cfg, logger, app.Opts{})
	if err != nil {
		logger.Error("failed to create application", log.Error(err))
		return err
	}
	if err = application.Run(ctx); err != nil {
		logger.Error("application stopped with error", log.Error(err))
		return err
	}
	return nil
}

func runCheckConfig(_ context.Context, cmd *cli.Command) error {
	cfg, err := app.LoadConfig(cmd.String(flagConfig))
	if err != nil {
		return err
	}
	return printConfig(cmd.Root().Writer, cfg)
}

// printConfig writes the effective config as JSON, secrets are omitted by the json tags.
func printConfig(w io.Writer, cfg *app.Config) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
