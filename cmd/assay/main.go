// Command assay is a deterministic CI-gate evaluation and policy-enforcement
// engine for agentic/LLM pipelines. See cmd/assay/cmd for its subcommands.
package main

import "github.com/assay-dev/assay/cmd/assay/cmd"

func main() {
	cmd.Execute()
}
