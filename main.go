// Command indexadvisor is the CLI entry point for the autonomous index
// advisor: telemetry ingestion, candidate scoring, the constraint
// optimizer, the safety gate, the mutation executor, the query
// interceptor, and schema evolution, all wired together through the
// commands in cmd/.
package main

import "github.com/nethalo/indexadvisor/cmd"

func main() {
	cmd.Execute()
}
