// =============================================================================
// SEPA Direct Debit Export - Main Entry Point
// =============================================================================
//
// This is the main entry point for the sepaexport CLI application.
// It initializes the Cobra CLI framework and delegates command execution to
// the cmd package.
//
// USAGE:
//   sepaexport export      - Build a pain.008.002.02 file from the member list
//   sepaexport validate    - Validate the club configuration without exporting
//   sepaexport serve       - Serve the export form and download endpoints
//   sepaexport version     - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Core business logic and member/config adapters
//   - pkg/           : Shared utilities (export file store)
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/sepa-export/cmd"
)

// main is the entry point of the application.
func main() {
	cmd.Execute()
}
