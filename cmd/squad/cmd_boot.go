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
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/SquadModules/pkg/ux"
	"github.com/AleutianAI/SquadModules/services/squad/api"
	"github.com/AleutianAI/SquadModules/services/squad/app"
	"github.com/AleutianAI/SquadModules/services/squad/config"
	"github.com/AleutianAI/SquadModules/services/squad/telemetry"
)

func newBootCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Boot the runtime once and print what loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				printBootSummary(a, p)
				return nil
			})
		},
	}
}

func printBootSummary(a *app.App, p *ux.Printer) {
	cfg := a.Config()
	p.Title("Squad Modules " + cfg.Version)
	p.KeyValues(map[string]string{
		"prefix":  cfg.Prefix,
		"storage": cfg.Storage.Driver,
		"cache":   cfg.Cache.Backend,
		"assets":  cfg.Assets.BaseURL,
		"phase":   string(a.Phase()),
	})

	if a.Degraded() {
		p.WarningBox("Limited mode", a.Requirements().Notice())
		return
	}

	report := a.LoadReport()
	for _, name := range report.Loaded {
		p.Success(name + " loaded")
	}
	for _, name := range sortedKeys(report.Skipped) {
		p.Status(ux.IconPending, name+" skipped: "+report.Skipped[name])
	}
	for _, name := range sortedKeys(report.Failed) {
		p.Error(name + " failed: " + report.Failed[name])
	}
}

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			s, err := c.boot(cmd, func(cfg *config.Config) {
				if addr != "" {
					cfg.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(ctx))

			cfg := s.app.Config()
			shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
				ServiceName:    "squad",
				ServiceVersion: cfg.Version,
				Environment:    cfg.Telemetry.Environment,
				TraceExporter:  cfg.Telemetry.TraceExporter,
				MetricExporter: cfg.Telemetry.MetricExporter,
				OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
				OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer shutdownTelemetry(context.WithoutCancel(ctx))

			if cfg.Logging.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			p := c.printer(cmd)
			printBootSummary(s.app, p)
			p.Muted("admin api on http://" + cfg.Server.Addr + "/v1/squad/health")
			return api.NewServer(s.app, cfg.Server).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinOrDash(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}
