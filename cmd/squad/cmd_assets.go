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
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SquadModules/pkg/ux"
	"github.com/AleutianAI/SquadModules/services/squad/app"
	"github.com/AleutianAI/SquadModules/services/squad/assets"
)

func newAssetsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Resolve asset paths and watch the build output",
	}
	cmd.AddCommand(newAssetsResolveCmd(c), newAssetsWatchCmd(c))
	return cmd
}

func newAssetsResolveCmd(c *cli) *cobra.Command {
	var (
		d    assets.Descriptor
		mode string
	)
	cmd := &cobra.Command{
		Use:   "resolve FILE",
		Short: "Resolve a descriptor to its URL, version and dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d.File = args[0]
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				r := a.Resolver()
				res, err := r.Process(d, nil)
				if err != nil {
					return err
				}
				m := assets.ParseMode(mode)
				target, err := r.ResolvePath(d, m)
				if err != nil {
					return err
				}
				p.KeyValues(map[string]string{
					m.String():     target,
					"version":      res.Version,
					"dependencies": joinOrDash(res.Dependencies),
					"minified":     strconv.FormatBool(res.Minified),
					"exists":       strconv.FormatBool(r.Exists(d)),
				})
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&mode, "mode", "url", "url, local or logical")
	f.StringVar(&d.DevFile, "dev-file", "", "file used in dev mode")
	f.StringVar(&d.ProdFile, "prod-file", "", "file used outside dev mode when present")
	f.StringVar(&d.Path, "path", "", "sub-directory under the type prefix")
	f.StringVar(&d.Pattern, "pattern", "", "path pattern (default "+assets.DefaultPattern+")")
	f.StringVar(&d.Ext, "ext", "", "extension without dot (default: from FILE)")
	f.StringSliceVar(&d.Deps, "dep", nil, "dependency handle (repeatable)")
	f.BoolVar(&d.External, "external", false, "file lives outside the build directory")
	return cmd
}

func newAssetsWatchCmd(c *cli) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the build directory and report resolver invalidations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				r := a.Resolver()
				root := buildRoot(r)
				w, err := assets.NewWatcher(root, debounce, func() {
					r.Invalidate()
					p.Status(ux.IconBullet, "build changed, resolver invalidated")
				}, a.Logger().With(slog.String("root", root)))
				if err != nil {
					return fmt.Errorf("create watcher: %w", err)
				}
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("start watcher: %w", err)
				}
				defer w.Stop()

				p.Muted("watching " + root + " (ctrl+c to stop)")
				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", assets.DefaultDebounce, "quiet period before invalidating")
	return cmd
}

func buildRoot(r *assets.Resolver) string {
	cfg := r.Config()
	return filepath.Join(cfg.RootDir, filepath.FromSlash(cfg.BuildDir))
}
