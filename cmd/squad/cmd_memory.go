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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SquadModules/pkg/ux"
	"github.com/AleutianAI/SquadModules/services/squad/app"
)

func newMemoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit the settings document",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every key and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				pairs := map[string]string{}
				for k, v := range a.Memory().All() {
					pairs[k] = encodeValue(v)
				}
				p.KeyValues(pairs)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print one value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(a *app.App, _ *ux.Printer) error {
				if !a.Memory().Has(args[0]) {
					return fmt.Errorf("key %q not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), encodeValue(a.Memory().Get(args[0], nil)))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a value; VALUE is parsed as JSON, else taken as a string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				if a.Memory().Set(args[0], decodeValue(args[1])) {
					p.Success(args[0] + " updated")
				} else {
					p.Muted(args[0] + " unchanged")
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete KEY",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				if a.Memory().Delete(args[0]) {
					p.Success(args[0] + " deleted")
				} else {
					p.Muted(args[0] + " not set")
				}
				return nil
			})
		},
	})

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase the whole settings document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ux.Confirm(c.confirm, c.yes, "Erase all Squad settings?",
				"Extension state and every stored option will be lost."); err != nil {
				return err
			}
			return c.withSession(cmd, func(a *app.App, p *ux.Printer) error {
				if !a.Memory().ClearAll(cmd.Context()) {
					return fmt.Errorf("settings could not be deleted from storage")
				}
				p.Success("settings cleared")
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&c.yes, "yes", "y", false, "skip confirmation")
	cmd.AddCommand(clearCmd)

	return cmd
}

func encodeValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func decodeValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
