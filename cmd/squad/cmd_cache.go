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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SquadModules/pkg/ux"
	"github.com/AleutianAI/SquadModules/services/squad/app"
)

func newCacheCmd(c *cli) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the object cache",
	}
	cmd.PersistentFlags().StringVar(&group, "group", "", "cache group (default: the configured default group)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache counters for a boot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				cc := a.Cache()
				s := cc.Stats()
				p.KeyValues(map[string]string{
					"hits":     strconv.FormatInt(s.Hits, 10),
					"misses":   strconv.FormatInt(s.Misses, 10),
					"writes":   strconv.FormatInt(s.Writes, 10),
					"deletes":  strconv.FormatInt(s.Deletes, 10),
					"hit_rate": strconv.FormatFloat(s.HitRate(), 'f', 2, 64),
					"external": strconv.FormatBool(cc.IsUsingExternalCache()),
					"group":    cc.DefaultGroupName(),
				})
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print a cached value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(a *app.App, _ *ux.Printer) error {
				v, ok := a.Cache().Get(cmd.Context(), args[0], group, false)
				if !ok {
					return fmt.Errorf("key %q not cached", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), encodeValue(v))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete KEY",
		Short: "Evict a cached value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				if a.Cache().Delete(cmd.Context(), args[0], group) {
					p.Success(args[0] + " evicted")
				} else {
					p.Muted(args[0] + " not cached")
				}
				return nil
			})
		},
	})

	return cmd
}
