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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SquadModules/pkg/ux"
	"github.com/AleutianAI/SquadModules/services/squad/app"
)

func newExtensionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "extensions",
		Aliases: []string{"ext"},
		Short:   "List, enable and disable extensions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every extension with its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				mgr := a.Extensions()
				for _, def := range mgr.Definitions() {
					icon := ux.IconPending
					state := "inactive"
					if mgr.IsActive(def.Name) {
						icon, state = ux.IconSuccess, "active"
					}
					if _, loaded := mgr.Loaded(def.Name); loaded {
						state += ", loaded"
					}
					p.Status(icon, fmt.Sprintf("%s (%s) %s", def.Name, state, def.Label))
				}
				return nil
			})
		},
	})

	for _, activate := range []bool{true, false} {
		verb := "disable"
		if activate {
			verb = "enable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   verb + " NAME",
			Short: verb + " an extension",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
					name := args[0]
					mgr := a.Extensions()
					if _, ok := mgr.Definition(name); !ok {
						return fmt.Errorf("unknown extension %q", name)
					}
					var changed bool
					if activate {
						changed = mgr.Enable(name)
					} else {
						changed = mgr.Disable(name)
					}
					if changed {
						p.Success(name + " " + verb + "d")
					} else {
						p.Muted(name + " already " + verb + "d")
					}
					return nil
				})
			},
		})
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore every extension to its default state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ux.Confirm(c.confirm, c.yes, "Reset extensions to defaults?",
				"Every enable and disable you made is discarded."); err != nil {
				return err
			}
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				mgr := a.Extensions()
				if mgr.ResetToDefault() {
					p.Success("extensions reset")
				} else {
					p.Muted("extensions already at defaults")
				}
				p.KeyValues(map[string]string{
					"active":   joinOrDash(mgr.Active()),
					"inactive": joinOrDash(mgr.Inactive()),
				})
				return nil
			})
		},
	}
	reset.Flags().BoolVarP(&c.yes, "yes", "y", false, "skip confirmation")
	cmd.AddCommand(reset)

	return cmd
}
