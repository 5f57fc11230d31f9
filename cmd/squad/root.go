// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SquadModules/pkg/logging"
	"github.com/AleutianAI/SquadModules/pkg/ux"
	"github.com/AleutianAI/SquadModules/services/squad/app"
	"github.com/AleutianAI/SquadModules/services/squad/config"
)

// cli holds global flags and injectable collaborators.
type cli struct {
	configPath string
	output     string
	logLevel   string
	yes        bool

	confirm ux.Confirmer
	appOpts []app.Option
}

func newCLI() *cli {
	return &cli{confirm: ux.HuhConfirm}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "squad",
		Short:         "Run and administer the Squad Modules runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "squad.yaml", "config file (optional)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "", "output style: styled, plain or machine (default: detect)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newBootCmd(c),
		newServeCmd(c),
		newMemoryCmd(c),
		newExtensionsCmd(c),
		newAssetsCmd(c),
		newCacheCmd(c),
	)
	return root
}

func (c *cli) printer(cmd *cobra.Command) *ux.Printer {
	return ux.NewPrinter(cmd.OutOrStdout(), ux.ParseLevel(c.output))
}

func (c *cli) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "squad",
		JSON:    cfg.Logging.JSON,
		Output:  w,
	})
}

// session is a booted App plus its cleanup.
type session struct {
	app    *app.App
	logger *logging.Logger
}

// close shuts the App down, persisting pending settings, then closes the
// log file.
func (s *session) close(ctx context.Context) error {
	err := s.app.Shutdown(ctx)
	return errors.Join(err, s.logger.Close())
}

// boot loads config, builds the App and boots it.
func (c *cli) boot(cmd *cobra.Command, mutate func(*config.Config)) (*session, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	opts := append([]app.Option{app.WithLogger(logger.Slog())}, c.appOpts...)
	a, err := app.New(cmd.Context(), cfg, opts...)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("build app: %w", err)
	}
	if err := a.Boot(cmd.Context()); err != nil {
		_ = a.Shutdown(cmd.Context())
		_ = logger.Close()
		return nil, fmt.Errorf("boot: %w", err)
	}
	return &session{app: a, logger: logger}, nil
}

// withSession runs fn on a booted App and always shuts it down.
func (c *cli) withSession(cmd *cobra.Command, fn func(*app.App, *ux.Printer) error) (err error) {
	s, err := c.boot(cmd, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close(context.WithoutCancel(cmd.Context())))
	}()
	return fn(s.app, c.printer(cmd))
}
