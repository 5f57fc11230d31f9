// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command squad runs and administers the Squad Modules runtime.
//
// Usage:
//
//	squad boot                       # boot once and print a summary
//	squad serve --addr :8787         # run the admin API
//	squad memory get form_id_original_42
//	squad extensions enable svg_upload
//	squad assets resolve divider.js --mode url
//	squad cache stats
//
// Configuration comes from --config (default squad.yaml, optional) and
// SQUAD_* environment variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newCLI()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
